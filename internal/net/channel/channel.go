package channel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dep2p/go-p2pnet/config"
	"github.com/dep2p/go-p2pnet/internal/core/eventbus"
	"github.com/dep2p/go-p2pnet/internal/core/lifecycle"
	"github.com/dep2p/go-p2pnet/internal/core/metrics"
	"github.com/dep2p/go-p2pnet/internal/net/messages"
	"github.com/dep2p/go-p2pnet/pkg/lib/log"
)

var logger = log.Logger("net/channel")

// Channel 点对点消息通道
type Channel struct {
	id        uuid.UUID
	conn      net.Conn
	addr      string
	settings  *config.Settings
	metrics   *metrics.Metrics
	direction string

	// 读半部只被接收循环持有
	readMu sync.Mutex
	reader *bufio.Reader

	// 写半部，每次 Send 独占
	writeMu sync.Mutex

	router  *MessageRouter
	stops   *eventbus.Notifier[error]
	receive *lifecycle.CancellableTask

	// stateMu 串行化 Start 与停止标志的转换
	stateMu sync.Mutex
	started bool
	stopped atomic.Bool
	done    chan struct{}
}

// New 包装一条已建立的连接
//
// 返回的通道处于 Created 状态，订阅可以在 Start 之前建立。
func New(conn net.Conn, settings *config.Settings, opts ...Option) *Channel {
	c := &Channel{
		id:        uuid.New(),
		conn:      conn,
		addr:      remoteAddr(conn),
		settings:  settings,
		direction: DirectionOutbound,
		reader:    bufio.NewReader(conn),
		router:    NewMessageRouter(),
		stops:     eventbus.NewLatchedNotifier[error](),
		receive:   lifecycle.NewCancellableTask(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID 返回通道 ID（日志用）
func (c *Channel) ID() uuid.UUID {
	return c.id
}

// Address 返回对端地址
func (c *Channel) Address() string {
	return c.addr
}

// Direction 返回通道方向
func (c *Channel) Direction() string {
	return c.direction
}

// Stopped 报告通道是否已停止
func (c *Channel) Stopped() bool {
	return c.stopped.Load()
}

// Done 在停止拆除完成后关闭
//
// 接收循环的终止广播可能晚于 Done；需要等待它时调用 Stop。
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 启动接收循环
//
// 第二次调用返回 lifecycle.ErrAlreadyStarted，停止后调用返回 ErrChannelStopped。
func (c *Channel) Start(ctx context.Context) error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.stopped.Load() {
		return ErrChannelStopped
	}
	if c.started {
		return lifecycle.ErrAlreadyStarted
	}
	c.started = true
	c.metrics.ChannelStarted(c.direction)

	if err := c.receive.Start(ctx, c.receiveLoop, c.handleStop, ErrServiceStopped); err != nil {
		return err
	}
	logger.Debug("channel started", "id", c.id, "addr", c.addr, "direction", c.direction)
	return nil
}

// Stop 停止通道
//
// 并发安全，可多次调用。返回时连接已关闭，接收循环已退出，终止错误已广播。
// 不能在 MessageSubscription 的投递路径上同步调用（投递本身不会调用 Stop）。
func (c *Channel) Stop() {
	c.halt(true)
	c.receive.Stop()
	<-c.done
}

// halt 执行停止拆除，不等待接收循环
//
// 只有第一个调用者执行拆除并返回 true。接收循环以 cancelReceive=false
// 停止自身，保留自己的错误作为终止结果。
func (c *Channel) halt(cancelReceive bool) bool {
	c.stateMu.Lock()
	if !c.stopped.CompareAndSwap(false, true) {
		c.stateMu.Unlock()
		return false
	}
	started := c.started
	c.stateMu.Unlock()

	defer close(c.done)

	c.stops.Notify(ErrChannelStopped)

	if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Debug("close connection failed", "id", c.id, "addr", c.addr, "error", err)
	}

	if !started {
		// 接收循环从未运行，由这里广播终止错误
		c.router.NotifyError(ErrChannelStopped)
	} else if cancelReceive {
		c.receive.Cancel()
	}

	logger.Debug("channel stopped", "id", c.id, "addr", c.addr)
	return true
}

// ============================================================================
//                              订阅
// ============================================================================

// SubscribeMsg 订阅指定类型的消息
func (c *Channel) SubscribeMsg(kind messages.PacketType) *MessageSubscription {
	return c.router.Subscribe(kind)
}

// SubscribeStop 订阅停止事件
//
// 每个订阅恰好收到一次 ErrChannelStopped，停止之后订阅的也会收到。
func (c *Channel) SubscribeStop() *eventbus.Subscription[error] {
	return c.stops.Subscribe()
}

// ============================================================================
//                              发送
// ============================================================================

// Send 发送一条消息
//
// 写失败时通道被停止，返回 ErrChannelStopped。
func (c *Channel) Send(ctx context.Context, msg messages.Message) error {
	if c.stopped.Load() {
		return ErrChannelStopped
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := c.write(ctx, msg); err != nil {
		if c.stopped.Load() {
			return ErrChannelStopped
		}
		logger.Error("channel send failed", "id", c.id, "addr", c.addr, "packet", msg.PacketType(), "error", err)
		c.metrics.SendError()
		c.Stop()
		return ErrChannelStopped
	}

	c.metrics.MessageSent(msg.PacketType().String())
	return nil
}

func (c *Channel) write(ctx context.Context, msg messages.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.stopped.Load() {
		return ErrChannelStopped
	}

	deadline := time.Now().Add(c.settings.ChannelWriteTimeout.Duration())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	// ctx 取消时让阻塞的写立即超时
	release := context.AfterFunc(ctx, func() {
		_ = c.conn.SetWriteDeadline(time.Unix(1, 0))
	})
	defer release()

	return messages.Send(c.conn, msg)
}

// ============================================================================
//                              接收
// ============================================================================

func (c *Channel) receiveLoop(ctx context.Context) error {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	// 父 ctx 取消时关闭连接，打断阻塞的读
	release := context.AfterFunc(ctx, func() { c.halt(true) })
	defer release()

	for {
		msg, err := messages.Receive(c.reader, c.settings.MaxMessageSize)
		if err != nil {
			if c.stopped.Load() {
				return ErrChannelStopped
			}
			if isDisconnect(err) {
				logger.Info("channel disconnected", "id", c.id, "addr", c.addr)
			} else {
				logger.Error("channel receive failed", "id", c.id, "addr", c.addr, "error", err)
			}
			c.halt(false)
			return fmt.Errorf("%w: %w", ErrChannelStopped, err)
		}

		c.metrics.MessageReceived(msg.PacketType().String())
		c.router.Notify(msg)
	}
}

// handleStop 接收循环的完成回调，恰好执行一次
func (c *Channel) handleStop(err error) {
	if err == nil {
		panic("channel: receive loop completed without error")
	}
	c.metrics.ChannelStopped()
	c.router.NotifyError(err)
}

func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

package transport

import (
	"context"
	"errors"
	"net"
	"sync"

	tec "github.com/jbenet/go-temp-err-catcher"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-p2pnet/config"
	"github.com/dep2p/go-p2pnet/internal/core/eventbus"
	"github.com/dep2p/go-p2pnet/internal/core/lifecycle"
	"github.com/dep2p/go-p2pnet/internal/core/metrics"
	"github.com/dep2p/go-p2pnet/internal/net/channel"
)

// ============================================================================
//                              Acceptor 实现
// ============================================================================

// Acceptor 入站连接接受器
//
// 每个接受的连接被包装为未启动的通道，发布给 SubscribeChannels 的订阅者；
// 没有订阅者时连接立即关闭。
type Acceptor struct {
	settings *config.Settings
	metrics  *metrics.Metrics
	limiter  *rate.Limiter
	catcher  tec.TempErrCatcher

	channels *eventbus.Notifier[*channel.Channel]

	mu       sync.Mutex
	listener net.Listener
	accept   *lifecycle.CancellableTask
}

// AcceptorOption 接受器选项
type AcceptorOption func(*Acceptor)

// WithAcceptorMetrics 设置新建通道使用的指标收集器
func WithAcceptorMetrics(m *metrics.Metrics) AcceptorOption {
	return func(a *Acceptor) {
		a.metrics = m
	}
}

// NewAcceptor 创建接受器
//
// AcceptRate > 0 时按 AcceptRate/AcceptBurst 限制接受速率。
func NewAcceptor(settings *config.Settings, opts ...AcceptorOption) *Acceptor {
	a := &Acceptor{
		settings: settings,
		channels: eventbus.NewNotifier[*channel.Channel](),
		accept:   lifecycle.NewCancellableTask(),
	}
	if settings.AcceptRate > 0 {
		burst := settings.AcceptBurst
		if burst < 1 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(rate.Limit(settings.AcceptRate), burst)
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SubscribeChannels 订阅入站通道
func (a *Acceptor) SubscribeChannels() *eventbus.Subscription[*channel.Channel] {
	return a.channels.Subscribe()
}

// Listen 监听 addr 并启动接受循环
func (a *Acceptor) Listen(ctx context.Context, addr string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.listener != nil {
		return ErrAlreadyListening
	}

	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	if err := a.accept.Start(ctx, func(ctx context.Context) error {
		return a.acceptLoop(ctx, l)
	}, a.handleStop, ErrAcceptorStopped); err != nil {
		_ = l.Close()
		return err
	}

	a.listener = l
	logger.Info("listening", "addr", l.Addr().String())
	return nil
}

// Addr 返回实际监听地址，未监听时返回 nil
func (a *Acceptor) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Stop 关闭监听并等待接受循环退出
//
// 已发布的通道不受影响。
func (a *Acceptor) Stop() {
	a.accept.Stop()
}

func (a *Acceptor) acceptLoop(ctx context.Context, l net.Listener) error {
	release := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer release()
	defer l.Close()

	for {
		if a.limiter != nil {
			if err := a.limiter.Wait(ctx); err != nil {
				return ErrAcceptorStopped
			}
		}

		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ErrAcceptorStopped
			}
			if a.catcher.IsTemporary(err) {
				logger.Warn("temporary accept error", "error", err)
				continue
			}
			return err
		}

		ch := channel.New(conn, a.settings,
			channel.WithMetrics(a.metrics),
			channel.WithDirection(channel.DirectionInbound),
		)
		if a.channels.Notify(ch) == 0 {
			logger.Debug("no subscriber for inbound channel", "addr", ch.Address())
			ch.Stop()
			continue
		}
		logger.Debug("accepted", "addr", ch.Address())
	}
}

func (a *Acceptor) handleStop(err error) {
	if errors.Is(err, ErrAcceptorStopped) {
		logger.Debug("acceptor stopped")
		return
	}
	logger.Error("accept loop failed", "error", err)
}

package protocols

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-p2pnet/internal/core/lifecycle"
	"github.com/dep2p/go-p2pnet/internal/net/channel"
	"github.com/dep2p/go-p2pnet/pkg/lib/log"
)

var logger = log.Logger("net/protocols")

// Protocol 后台运行的协议
type Protocol interface {
	// Start 启动协议，不阻塞
	Start(ctx context.Context) error

	// Stop 结束协议并等待后台循环退出，可多次调用
	Stop()
}

// loops 一组随通道停止而结束的后台循环
type loops struct {
	name  string
	ch    *channel.Channel
	tasks []*lifecycle.CancellableTask
}

func (l *loops) start(ctx context.Context, ops ...func(ctx context.Context) error) error {
	for _, op := range ops {
		task := lifecycle.NewCancellableTask()
		if err := task.Start(ctx, op, l.finished, ErrProtocolStopped); err != nil {
			l.stop()
			return err
		}
		l.tasks = append(l.tasks, task)
	}
	return nil
}

func (l *loops) stop() {
	for _, task := range l.tasks {
		task.Stop()
	}
}

func (l *loops) finished(err error) {
	switch {
	case errors.Is(err, ErrProtocolStopped), errors.Is(err, channel.ErrChannelStopped):
		logger.Debug("protocol loop ended", "protocol", l.name, "addr", l.ch.Address(), "reason", err)
	default:
		logger.Warn("protocol loop failed", "protocol", l.name, "addr", l.ch.Address(), "error", err)
	}
}

// truncate 限制单条消息中的地址数
func truncate(addrs []string, max int) []string {
	if max > 0 && len(addrs) > max {
		return addrs[:max]
	}
	return addrs
}

// withTimeout 返回按 clk 计时的超时 ctx，到期时 context.Cause 为 cause
func withTimeout(ctx context.Context, clk clock.Clock, d time.Duration, cause error) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(ctx)
	timer := clk.Timer(d)
	go func() {
		select {
		case <-timer.C:
			cancel(cause)
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		timer.Stop()
		cancel(nil)
	}
}

// timedOut 把 withTimeout 到期造成的错误替换为 cause
func timedOut(ctx context.Context, err error, cause error) error {
	if errors.Is(context.Cause(ctx), cause) {
		return cause
	}
	return err
}

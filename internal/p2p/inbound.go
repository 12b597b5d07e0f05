package p2p

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/dep2p/go-p2pnet/internal/core/eventbus"
	"github.com/dep2p/go-p2pnet/internal/core/lifecycle"
	"github.com/dep2p/go-p2pnet/internal/net/channel"
	"github.com/dep2p/go-p2pnet/internal/net/protocols"
	"github.com/dep2p/go-p2pnet/internal/net/transport"
)

// ============================================================================
//                              InboundSession
// ============================================================================

// InboundSession 入站会话
//
// 监听 InboundAddr，注册每个入站通道并挂载 Ping 与地址服务。
// 入站通道在对端断开、Ping 超时或 P2p 停止时结束。
type InboundSession struct {
	ref   backref
	serve *lifecycle.CancellableTask

	mu       sync.Mutex
	acceptor *transport.Acceptor
	accepted *eventbus.Subscription[*channel.Channel]
}

// NewInboundSession 创建入站会话
func NewInboundSession(p *P2p) *InboundSession {
	return &InboundSession{
		ref:   newBackref(p),
		serve: lifecycle.NewCancellableTask(),
	}
}

func (*InboundSession) session() {}

// Start 开始监听，不阻塞
func (s *InboundSession) Start(ctx context.Context) error {
	p, err := s.ref.resolve()
	if err != nil {
		return err
	}

	acceptor := transport.NewAcceptor(p.settings, transport.WithAcceptorMetrics(p.metrics))
	accepted := acceptor.SubscribeChannels()
	if err := acceptor.Listen(ctx, p.settings.InboundAddr); err != nil {
		accepted.Unsubscribe()
		return err
	}

	s.mu.Lock()
	s.acceptor = acceptor
	s.accepted = accepted
	s.mu.Unlock()

	err = s.serve.Start(ctx, func(ctx context.Context) error {
		return s.loop(ctx, accepted)
	}, func(err error) {
		if !errors.Is(err, ErrSessionStopped) && !errors.Is(err, context.Canceled) {
			logger.Warn("inbound session ended", "error", err)
		}
	}, ErrSessionStopped)
	if err != nil {
		acceptor.Stop()
		accepted.Unsubscribe()
	}
	return err
}

// Stop 停止监听
//
// 已注册的通道由 P2p 停止；已接受但尚未注册的通道在这里停止。
func (s *InboundSession) Stop() {
	s.serve.Stop()

	s.mu.Lock()
	acceptor, accepted := s.acceptor, s.accepted
	s.mu.Unlock()
	if acceptor != nil {
		acceptor.Stop()
		if n := stopQueued(accepted); n > 0 {
			logger.Debug("stopped unregistered inbound channels", "count", n)
		}
		accepted.Unsubscribe()
	}
}

// stopQueued 取出并停止订阅中排队的通道
//
// 调用时不能再有其它消费者。
func stopQueued(accepted *eventbus.Subscription[*channel.Channel]) int {
	done, cancel := context.WithCancel(context.Background())
	cancel()

	n := 0
	for {
		ch, err := accepted.Receive(done)
		if err != nil {
			return n
		}
		ch.Stop()
		n++
	}
}

// Addr 返回实际监听地址
func (s *InboundSession) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acceptor == nil {
		return nil
	}
	return s.acceptor.Addr()
}

func (s *InboundSession) loop(ctx context.Context, accepted *eventbus.Subscription[*channel.Channel]) error {
	for {
		ch, err := accepted.Receive(ctx)
		if err != nil {
			return err
		}

		p, err := s.ref.resolve()
		if err != nil {
			ch.Stop()
			return err
		}
		if err := s.attach(ctx, p, ch); err != nil {
			logger.Warn("inbound channel rejected", "addr", ch.Address(), "error", err)
		}
	}
}

func (s *InboundSession) attach(ctx context.Context, p *P2p, ch *channel.Channel) error {
	if err := p.RegisterChannel(ctx, ch); err != nil {
		return err
	}
	if _, err := attachPing(ctx, p, ch); err != nil {
		ch.Stop()
		return err
	}
	if err := protocols.NewProtocolAddress(ch, p.settings, p.hosts).Start(ctx); err != nil {
		ch.Stop()
		return err
	}
	logger.Info("inbound channel accepted", "addr", ch.Address())
	return nil
}

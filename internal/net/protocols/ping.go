package protocols

import (
	"bytes"
	"context"
	"errors"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/dep2p/go-p2pnet/config"
	"github.com/dep2p/go-p2pnet/internal/net/channel"
	"github.com/dep2p/go-p2pnet/internal/net/messages"
)

// ProtocolPing 存活探测
//
// 响应对端的 Ping；每隔 PingInterval 发送一个带随机 nonce 的 Ping，
// PingTimeout 内未收到对应 Pong 时停止通道。
type ProtocolPing struct {
	ch       *channel.Channel
	settings *config.Settings
	clock    clock.Clock
	loops    loops
}

var _ Protocol = (*ProtocolPing)(nil)

// NewProtocolPing 创建存活探测
func NewProtocolPing(ch *channel.Channel, settings *config.Settings, opts ...Option) *ProtocolPing {
	o := newOptions(opts)
	return &ProtocolPing{
		ch:       ch,
		settings: settings,
		clock:    o.clock,
		loops:    loops{name: "ping", ch: ch},
	}
}

// Start 启动响应与探测循环
func (p *ProtocolPing) Start(ctx context.Context) error {
	pings := p.ch.SubscribeMsg(messages.PacketPing)
	pongs := p.ch.SubscribeMsg(messages.PacketPong)

	err := p.loops.start(ctx,
		func(ctx context.Context) error { return p.respond(ctx, pings) },
		func(ctx context.Context) error { return p.probe(ctx, pongs) },
	)
	if err != nil {
		pings.Unsubscribe()
		pongs.Unsubscribe()
	}
	return err
}

// Stop 结束循环
func (p *ProtocolPing) Stop() {
	p.loops.stop()
}

func (p *ProtocolPing) respond(ctx context.Context, pings *channel.MessageSubscription) error {
	defer pings.Unsubscribe()

	for {
		ping, err := channel.ReceiveAs[*messages.Ping](ctx, pings)
		if err != nil {
			return err
		}
		if err := p.ch.Send(ctx, &messages.Pong{Nonce: ping.Nonce}); err != nil {
			return err
		}
	}
}

func (p *ProtocolPing) probe(ctx context.Context, pongs *channel.MessageSubscription) error {
	defer pongs.Unsubscribe()

	ticker := p.clock.Ticker(p.settings.PingInterval.Duration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.ch.Done():
			return channel.ErrChannelStopped
		case <-ticker.C:
		}

		nonce := uuid.New()
		if err := p.ch.Send(ctx, &messages.Ping{Nonce: nonce[:]}); err != nil {
			return err
		}

		err := p.awaitPong(ctx, pongs, nonce[:])
		if errors.Is(err, ErrPingTimeout) {
			logger.Warn("ping timeout, stopping channel", "addr", p.ch.Address(), "timeout", p.settings.PingTimeout.Duration())
			p.ch.Stop()
			return err
		}
		if err != nil {
			return err
		}
	}
}

func (p *ProtocolPing) awaitPong(ctx context.Context, pongs *channel.MessageSubscription, nonce []byte) error {
	ctx, cancel := withTimeout(ctx, p.clock, p.settings.PingTimeout.Duration(), ErrPingTimeout)
	defer cancel()

	for {
		pong, err := channel.ReceiveAs[*messages.Pong](ctx, pongs)
		if err != nil {
			return timedOut(ctx, err, ErrPingTimeout)
		}
		// 过期的 Pong 直接丢弃
		if bytes.Equal(pong.Nonce, nonce) {
			return nil
		}
	}
}

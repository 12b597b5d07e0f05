package protocols

import (
	"context"

	"github.com/dep2p/go-p2pnet/config"
	"github.com/dep2p/go-p2pnet/internal/net/channel"
	"github.com/dep2p/go-p2pnet/internal/net/hosts"
	"github.com/dep2p/go-p2pnet/internal/net/messages"
)

// ProtocolAddress 地址服务
//
// 用地址簿中的随机地址响应 GetAddrs，记录对端发来的 Addrs。
type ProtocolAddress struct {
	ch       *channel.Channel
	settings *config.Settings
	hosts    *hosts.Hosts
	loops    loops
}

var _ Protocol = (*ProtocolAddress)(nil)

// NewProtocolAddress 创建地址服务
func NewProtocolAddress(ch *channel.Channel, settings *config.Settings, h *hosts.Hosts) *ProtocolAddress {
	return &ProtocolAddress{
		ch:       ch,
		settings: settings,
		hosts:    h,
		loops:    loops{name: "address", ch: ch},
	}
}

// Start 启动服务循环
func (p *ProtocolAddress) Start(ctx context.Context) error {
	queries := p.ch.SubscribeMsg(messages.PacketGetAddrs)
	announces := p.ch.SubscribeMsg(messages.PacketAddrs)

	err := p.loops.start(ctx,
		func(ctx context.Context) error { return p.serve(ctx, queries) },
		func(ctx context.Context) error { return p.record(ctx, announces) },
	)
	if err != nil {
		queries.Unsubscribe()
		announces.Unsubscribe()
	}
	return err
}

// Stop 结束循环
func (p *ProtocolAddress) Stop() {
	p.loops.stop()
}

func (p *ProtocolAddress) serve(ctx context.Context, queries *channel.MessageSubscription) error {
	defer queries.Unsubscribe()

	for {
		if _, err := queries.Receive(ctx); err != nil {
			return err
		}
		addrs := p.hosts.Random(p.settings.MaxAddrsPerMessage)
		if err := p.ch.Send(ctx, &messages.Addrs{Addrs: addrs}); err != nil {
			return err
		}
		logger.Debug("served addresses", "addr", p.ch.Address(), "count", len(addrs))
	}
}

func (p *ProtocolAddress) record(ctx context.Context, announces *channel.MessageSubscription) error {
	defer announces.Unsubscribe()

	for {
		msg, err := channel.ReceiveAs[*messages.Addrs](ctx, announces)
		if err != nil {
			return err
		}
		addrs := truncate(msg.Addrs, p.settings.MaxAddrsPerMessage)
		if added := p.hosts.Store(addrs...); added > 0 {
			logger.Debug("recorded addresses", "addr", p.ch.Address(), "new", added)
		}
	}
}

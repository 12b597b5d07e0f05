package protocols

import (
	"context"
	"fmt"
	"slices"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-p2pnet/config"
	"github.com/dep2p/go-p2pnet/internal/net/channel"
	"github.com/dep2p/go-p2pnet/internal/net/hosts"
	"github.com/dep2p/go-p2pnet/internal/net/messages"
)

// ProtocolSeed 种子查询
//
// 向种子公布 ExternalAddr（若设置），请求地址列表，
// 把返回的地址（除自身 ExternalAddr）存入地址簿。
type ProtocolSeed struct {
	ch       *channel.Channel
	settings *config.Settings
	hosts    *hosts.Hosts
	clock    clock.Clock
}

// NewProtocolSeed 创建种子查询
func NewProtocolSeed(ch *channel.Channel, settings *config.Settings, h *hosts.Hosts, opts ...Option) *ProtocolSeed {
	o := newOptions(opts)
	return &ProtocolSeed{
		ch:       ch,
		settings: settings,
		hosts:    h,
		clock:    o.clock,
	}
}

// Start 执行一次查询，阻塞直到收到地址或 SeedQueryTimeout 到期
func (p *ProtocolSeed) Start(ctx context.Context) error {
	replies := p.ch.SubscribeMsg(messages.PacketAddrs)
	defer replies.Unsubscribe()

	if p.settings.ExternalAddr != "" {
		if err := p.ch.Send(ctx, &messages.Addrs{Addrs: []string{p.settings.ExternalAddr}}); err != nil {
			return fmt.Errorf("announce to %s: %w", p.ch.Address(), err)
		}
	}
	if err := p.ch.Send(ctx, &messages.GetAddrs{}); err != nil {
		return fmt.Errorf("query %s: %w", p.ch.Address(), err)
	}

	ctx, cancel := withTimeout(ctx, p.clock, p.settings.SeedQueryTimeout.Duration(), ErrSeedQueryTimeout)
	defer cancel()

	reply, err := channel.ReceiveAs[*messages.Addrs](ctx, replies)
	if err != nil {
		return fmt.Errorf("query %s: %w", p.ch.Address(), timedOut(ctx, err, ErrSeedQueryTimeout))
	}

	addrs := truncate(reply.Addrs, p.settings.MaxAddrsPerMessage)
	if self := p.settings.ExternalAddr; self != "" {
		addrs = slices.DeleteFunc(slices.Clone(addrs), func(a string) bool { return a == self })
	}
	added := p.hosts.Store(addrs...)
	logger.Info("seed returned addresses", "addr", p.ch.Address(), "received", len(addrs), "new", added)
	return nil
}

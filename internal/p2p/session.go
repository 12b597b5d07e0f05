package p2p

import (
	"context"
	"fmt"
	"weak"

	"github.com/dep2p/go-p2pnet/internal/net/channel"
	"github.com/dep2p/go-p2pnet/internal/net/protocols"
)

// Session 连接生命周期策略
//
// 实现集合是封闭的：SeedSession 与 InboundSession。
type Session interface {
	// Start 启动会话
	Start(ctx context.Context) error

	// Stop 结束会话，可多次调用
	Stop()

	session()
}

var (
	_ Session = (*SeedSession)(nil)
	_ Session = (*InboundSession)(nil)
)

// backref 会话到 P2p 的弱引用
type backref struct {
	p2p weak.Pointer[P2p]
}

func newBackref(p *P2p) backref {
	return backref{p2p: weak.Make(p)}
}

// resolve 取得 P2p，已被回收时返回 ErrContextClosed
func (b backref) resolve() (*P2p, error) {
	p := b.p2p.Value()
	if p == nil {
		return nil, ErrContextClosed
	}
	return p, nil
}

// attachPing 为通道挂载存活探测
func attachPing(ctx context.Context, p *P2p, ch *channel.Channel) (*protocols.ProtocolPing, error) {
	ping := protocols.NewProtocolPing(ch, p.settings, p.protocolOpts...)
	if err := ping.Start(ctx); err != nil {
		return nil, fmt.Errorf("start ping on %s: %w", ch.Address(), err)
	}
	return ping, nil
}

package p2p

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/dep2p/go-p2pnet/config"
	"github.com/dep2p/go-p2pnet/internal/core/lifecycle"
	"github.com/dep2p/go-p2pnet/internal/core/metrics"
	"github.com/dep2p/go-p2pnet/internal/net/channel"
	"github.com/dep2p/go-p2pnet/internal/net/hosts"
	"github.com/dep2p/go-p2pnet/internal/net/protocols"
	"github.com/dep2p/go-p2pnet/internal/net/transport"
	"github.com/dep2p/go-p2pnet/pkg/lib/log"
)

var logger = log.Logger("p2p")

// P2p 网络上下文
type P2p struct {
	settings     *config.Settings
	hosts        *hosts.Hosts
	metrics      *metrics.Metrics
	connector    *transport.Connector
	connOpts     []transport.ConnectorOption
	protocolOpts []protocols.Option

	phases   *lifecycle.Coordinator
	started  atomic.Bool
	stopping atomic.Bool

	// ctx 覆盖后台工作（入站会话、入站通道），Stop 时取消
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	channels map[uuid.UUID]*channel.Channel
	seed     *SeedSession
	inbound  *InboundSession
}

// Option P2p 选项
type Option func(*P2p)

// WithMetrics 设置指标收集器
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *P2p) {
		p.metrics = m
	}
}

// WithDialer 替换出站拨号器
func WithDialer(d transport.Dialer) Option {
	return func(p *P2p) {
		p.connOpts = append(p.connOpts, transport.WithDialer(d))
	}
}

// WithProtocolOptions 设置会话挂载协议时使用的选项
func WithProtocolOptions(opts ...protocols.Option) Option {
	return func(p *P2p) {
		p.protocolOpts = append(p.protocolOpts, opts...)
	}
}

// New 创建网络上下文
func New(settings *config.Settings, h *hosts.Hosts, opts ...Option) *P2p {
	ctx, cancel := context.WithCancel(context.Background())
	p := &P2p{
		settings: settings,
		hosts:    h,
		phases:   lifecycle.NewCoordinator(),
		ctx:      ctx,
		cancel:   cancel,
		channels: make(map[uuid.UUID]*channel.Channel),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.connector = transport.NewConnector(settings,
		append([]transport.ConnectorOption{transport.WithConnectorMetrics(p.metrics)}, p.connOpts...)...)
	return p
}

// Settings 返回配置（只读）
func (p *P2p) Settings() *config.Settings {
	return p.settings
}

// Hosts 返回地址簿
func (p *P2p) Hosts() *hosts.Hosts {
	return p.hosts
}

// Metrics 返回指标收集器，可能为 nil
func (p *P2p) Metrics() *metrics.Metrics {
	return p.metrics
}

// Phase 返回当前生命周期阶段
func (p *P2p) Phase() lifecycle.Phase {
	return p.phases.Phase()
}

// WaitFor 等待到达指定阶段
func (p *P2p) WaitFor(ctx context.Context, phase lifecycle.Phase) error {
	return p.phases.WaitFor(ctx, phase)
}

// Channels 返回当前已注册的通道
func (p *P2p) Channels() []*channel.Channel {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*channel.Channel, 0, len(p.channels))
	for _, ch := range p.channels {
		out = append(out, ch)
	}
	return out
}

// SeedResults 返回最近一次种子同步的逐个结果，未运行时返回 nil
func (p *P2p) SeedResults() []error {
	p.mu.Lock()
	seed := p.seed
	p.mu.Unlock()
	if seed == nil {
		return nil
	}
	return seed.Results()
}

// ListenAddr 返回入站监听地址，未监听时返回 nil
func (p *P2p) ListenAddr() net.Addr {
	p.mu.Lock()
	inbound := p.inbound
	p.mu.Unlock()
	if inbound == nil {
		return nil
	}
	return inbound.Addr()
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 运行种子同步，然后在配置了 InboundAddr 时启动入站会话
//
// 种子同步阻塞直到所有种子尝试结束。只能调用一次。
func (p *P2p) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return lifecycle.ErrAlreadyStarted
	}

	if err := p.phases.AdvanceTo(lifecycle.PhaseSeeding); err != nil {
		return err
	}

	seed := NewSeedSession(p)
	p.mu.Lock()
	p.seed = seed
	p.mu.Unlock()

	if err := seed.Start(ctx); err != nil {
		return fmt.Errorf("seed session: %w", err)
	}

	if p.settings.InboundAddr != "" {
		if err := p.startInbound(); err != nil {
			return fmt.Errorf("inbound session: %w", err)
		}
	}

	logger.Info("p2p started", "hosts", p.hosts.Len(), "inbound", p.settings.InboundAddr)
	return p.phases.AdvanceTo(lifecycle.PhaseRunning)
}

// startInbound 登记并启动入站会话
//
// 登记先于监听并与 Stop 的会话快照互斥：要么被 Stop 停止，要么在这里被拒绝。
func (p *P2p) startInbound() error {
	inbound := NewInboundSession(p)

	p.mu.Lock()
	if p.phases.Reached(lifecycle.PhaseStopping) {
		p.mu.Unlock()
		return ErrContextClosed
	}
	p.inbound = inbound
	p.mu.Unlock()

	return inbound.Start(p.ctx)
}

// Stop 结束会话、停止所有通道并写回地址簿
//
// 可多次调用。
func (p *P2p) Stop() error {
	if !p.stopping.CompareAndSwap(false, true) {
		return p.phases.WaitFor(context.Background(), lifecycle.PhaseStopped)
	}

	var errs error
	errs = multierr.Append(errs, p.phases.AdvanceTo(lifecycle.PhaseStopping))

	p.cancel()

	p.mu.Lock()
	sessions := []Session{}
	if p.seed != nil {
		sessions = append(sessions, p.seed)
	}
	if p.inbound != nil {
		sessions = append(sessions, p.inbound)
	}
	p.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
	}
	for _, ch := range p.Channels() {
		ch.Stop()
	}

	if err := p.hosts.Flush(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("flush hosts: %w", err))
	}
	errs = multierr.Append(errs, p.phases.AdvanceTo(lifecycle.PhaseStopped))

	logger.Info("p2p stopped", "hosts", p.hosts.Len())
	return errs
}

// ============================================================================
//                              通道注册
// ============================================================================

// RegisterChannel 注册并启动通道
//
// 通道停止后自动从注册表移除。启动失败时通道被停止并移除。
func (p *P2p) RegisterChannel(ctx context.Context, ch *channel.Channel) error {
	stops := ch.SubscribeStop()

	// 与 Stop 的通道快照互斥：要么被快照停止，要么在这里被拒绝
	p.mu.Lock()
	if p.phases.Reached(lifecycle.PhaseStopping) {
		p.mu.Unlock()
		stops.Unsubscribe()
		ch.Stop()
		return ErrContextClosed
	}
	p.channels[ch.ID()] = ch
	p.mu.Unlock()

	go func() {
		defer stops.Unsubscribe()
		if _, err := stops.Receive(context.Background()); err != nil && !errors.Is(err, channel.ErrChannelStopped) {
			logger.Debug("stop subscription ended", "id", ch.ID(), "error", err)
		}
		p.unregister(ch)
	}()

	if err := ch.Start(ctx); err != nil {
		ch.Stop()
		return fmt.Errorf("start channel %s: %w", ch.Address(), err)
	}
	logger.Debug("channel registered", "id", ch.ID(), "addr", ch.Address(), "direction", ch.Direction())
	return nil
}

func (p *P2p) unregister(ch *channel.Channel) {
	p.mu.Lock()
	delete(p.channels, ch.ID())
	p.mu.Unlock()
}

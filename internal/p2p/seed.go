package p2p

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-p2pnet/internal/core/metrics"
	"github.com/dep2p/go-p2pnet/internal/net/protocols"
)

// ============================================================================
//                              SeedSession
// ============================================================================

// SeedSession 种子引导会话
//
// 并发连接每个配置的种子：注册并启动通道，挂载 Ping，执行种子查询，
// 然后停止通道。单个种子失败只记录日志，不影响其它种子和整体结果。
type SeedSession struct {
	ref backref

	mu      sync.Mutex
	cancel  context.CancelFunc
	results []error
}

// NewSeedSession 创建种子会话
func NewSeedSession(p *P2p) *SeedSession {
	return &SeedSession{ref: newBackref(p)}
}

func (*SeedSession) session() {}

// Start 运行种子同步，阻塞直到所有尝试结束
//
// 配置跳过时立即返回 nil；需要同步但种子列表为空时返回 ErrOperationFailed，
// 且不发起任何拨号。其它情况下总是返回 nil。
func (s *SeedSession) Start(ctx context.Context) error {
	p, err := s.ref.resolve()
	if err != nil {
		return err
	}
	settings := p.Settings()

	if settings.SkipSeedSync {
		logger.Info("seed sync skipped")
		return nil
	}
	if settings.SkipSeedSyncIfCached && p.Hosts().Len() > 0 {
		logger.Info("seed sync skipped, hosts cached", "hosts", p.Hosts().Len())
		return nil
	}
	if len(settings.Seeds) == 0 {
		return fmt.Errorf("%w: seed sync required but no seeds configured", ErrOperationFailed)
	}
	seeds := append([]string(nil), settings.Seeds...)
	limit := settings.SeedConcurrency

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	results := make([]error, len(seeds))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, addr := range seeds {
		g.Go(func() error {
			err := s.attempt(ctx, addr)
			if err != nil {
				logger.Warn("seed attempt failed", "index", i, "addr", addr, "error", err)
			}
			results[i] = err
			return nil
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	s.results = results
	s.cancel = nil
	s.mu.Unlock()

	var failed error
	for _, err := range results {
		failed = multierr.Append(failed, err)
	}
	n := len(multierr.Errors(failed))
	if n == len(seeds) {
		logger.Error("all seed attempts failed", "seeds", len(seeds), "error", failed)
	} else {
		logger.Info("seed sync finished", "seeds", len(seeds), "ok", len(seeds)-n, "failed", n)
	}
	return nil
}

// Stop 取消进行中的同步
func (s *SeedSession) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Results 返回最近一次同步的逐个结果，下标与配置的种子列表一致，成功为 nil
func (s *SeedSession) Results() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.results...)
}

func (s *SeedSession) attempt(ctx context.Context, addr string) (err error) {
	p, err := s.ref.resolve()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			p.metrics.SeedAttempt(metrics.SeedFailed)
		} else {
			p.metrics.SeedAttempt(metrics.SeedOK)
		}
	}()

	ch, err := p.connector.Connect(ctx, addr)
	if err != nil {
		return err
	}
	if err := p.RegisterChannel(ctx, ch); err != nil {
		return err
	}
	// 种子连接不保留
	defer ch.Stop()

	ping, err := attachPing(ctx, p, ch)
	if err != nil {
		return err
	}
	defer ping.Stop()

	if err := protocols.NewProtocolSeed(ch, p.settings, p.hosts, p.protocolOpts...).Start(ctx); err != nil {
		return err
	}
	logger.Info("seed synced", "addr", addr, "hosts", p.hosts.Len())
	return nil
}

package p2p

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-p2pnet/config"
	"github.com/dep2p/go-p2pnet/internal/core/metrics"
	"github.com/dep2p/go-p2pnet/internal/core/storage"
	"github.com/dep2p/go-p2pnet/internal/net/hosts"
	"github.com/dep2p/go-p2pnet/internal/net/transport"
)

// Module 返回网络核心 Fx 模块
//
// 需要外部提供 *config.Settings；可选提供 prometheus.Registerer 与 transport.Dialer。
func Module() fx.Option {
	return fx.Module("p2p",
		fx.Provide(
			provideMetrics,
			provideHosts,
			provideP2p,
		),
		fx.Invoke(registerLifecycle),
	)
}

// MetricsParams 指标依赖参数
type MetricsParams struct {
	fx.In

	Registerer prometheus.Registerer `optional:"true"`
}

func provideMetrics(params MetricsParams) *metrics.Metrics {
	return metrics.New(params.Registerer)
}

// provideHosts 打开地址簿；配置了 HostsPath 时使用 badger 持久化
func provideHosts(lc fx.Lifecycle, settings *config.Settings) (*hosts.Hosts, error) {
	if settings.HostsPath == "" {
		return hosts.Open(settings, nil)
	}

	store, err := storage.Open(settings.HostsPath)
	if err != nil {
		return nil, err
	}
	h, err := hosts.Open(settings, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return store.Close()
		},
	})
	return h, nil
}

// P2pParams P2p 依赖参数
type P2pParams struct {
	fx.In

	Settings *config.Settings
	Hosts    *hosts.Hosts
	Metrics  *metrics.Metrics
	Dialer   transport.Dialer `optional:"true"`
}

func provideP2p(params P2pParams) (*P2p, error) {
	if err := params.Settings.Validate(); err != nil {
		return nil, err
	}

	opts := []Option{WithMetrics(params.Metrics)}
	if params.Dialer != nil {
		opts = append(opts, WithDialer(params.Dialer))
	}
	return New(params.Settings, params.Hosts, opts...), nil
}

// registerLifecycle 注册生命周期钩子
//
// OnStop 先于地址簿存储的关闭执行（fx 逆序执行 OnStop）。
func registerLifecycle(lc fx.Lifecycle, p *P2p) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := p.Start(ctx); err != nil {
				return fmt.Errorf("start p2p: %w", err)
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			return p.Stop()
		},
	})
}

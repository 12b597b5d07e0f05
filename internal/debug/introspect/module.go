package introspect

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-p2pnet/config"
	"github.com/dep2p/go-p2pnet/internal/core/metrics"
	"github.com/dep2p/go-p2pnet/internal/p2p"
)

// Module 返回自省服务 Fx 模块
//
// MetricsAddr 为空时不启动服务。
func Module() fx.Option {
	return fx.Module("introspect",
		fx.Provide(NewFromParams),
		fx.Invoke(registerLifecycle),
	)
}

// IntrospectParams 自省服务依赖参数
type IntrospectParams struct {
	fx.In

	Settings *config.Settings
	Node     *p2p.P2p         `optional:"true"`
	Metrics  *metrics.Metrics `optional:"true"`
}

// IntrospectOutput 自省服务输出
type IntrospectOutput struct {
	fx.Out

	Server *Server
}

// NewFromParams 从参数创建自省服务，未配置 MetricsAddr 时 Server 为 nil
func NewFromParams(params IntrospectParams) IntrospectOutput {
	if params.Settings.MetricsAddr == "" {
		return IntrospectOutput{}
	}

	cfg := Config{
		Addr:    params.Settings.MetricsAddr,
		Metrics: params.Metrics.Handler(),
	}
	if params.Node != nil {
		cfg.Node = params.Node
	}
	return IntrospectOutput{Server: New(cfg)}
}

// registerLifecycle 注册生命周期钩子
func registerLifecycle(lc fx.Lifecycle, server *Server) {
	if server == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return server.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			return server.Stop()
		},
	})
}

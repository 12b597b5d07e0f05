package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/dep2p/go-p2pnet/config"
	"github.com/dep2p/go-p2pnet/internal/core/metrics"
	"github.com/dep2p/go-p2pnet/internal/net/channel"
	"github.com/dep2p/go-p2pnet/pkg/lib/log"
)

var logger = log.Logger("net/transport")

//go:generate mockgen -destination=mock_dialer_test.go -package=transport . Dialer

// Dialer 拨号器
//
// *net.Dialer 满足该接口；测试可以注入内存实现。
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Connector 出站连接器
type Connector struct {
	settings *config.Settings
	dialer   Dialer
	metrics  *metrics.Metrics
}

// ConnectorOption 连接器选项
type ConnectorOption func(*Connector)

// WithDialer 替换默认拨号器
func WithDialer(d Dialer) ConnectorOption {
	return func(c *Connector) {
		c.dialer = d
	}
}

// WithConnectorMetrics 设置新建通道使用的指标收集器
func WithConnectorMetrics(m *metrics.Metrics) ConnectorOption {
	return func(c *Connector) {
		c.metrics = m
	}
}

// NewConnector 创建连接器
func NewConnector(settings *config.Settings, opts ...ConnectorOption) *Connector {
	c := &Connector{
		settings: settings,
		dialer:   &net.Dialer{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect 拨号 addr 并返回未启动的通道
//
// 拨号受 ConnectTimeout 限制，失败时返回包装了 ErrConnectFailed 的错误。
func (c *Connector) Connect(ctx context.Context, addr string) (*channel.Channel, error) {
	if timeout := c.settings.ConnectTimeout.Duration(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectFailed, addr, err)
	}

	logger.Debug("connected", "addr", addr)
	return channel.New(conn, c.settings,
		channel.WithMetrics(c.metrics),
		channel.WithDirection(channel.DirectionOutbound),
	), nil
}

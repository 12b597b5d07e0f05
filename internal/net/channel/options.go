package channel

import "github.com/dep2p/go-p2pnet/internal/core/metrics"

// 通道方向（指标标签）
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Option 通道选项
type Option func(*Channel)

// WithMetrics 设置指标收集器
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Channel) {
		c.metrics = m
	}
}

// WithDirection 设置通道方向，默认 DirectionOutbound
func WithDirection(direction string) Option {
	return func(c *Channel) {
		c.direction = direction
	}
}

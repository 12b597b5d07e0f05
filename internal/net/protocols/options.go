package protocols

import "github.com/benbjohnson/clock"

// Option 协议选项
type Option func(*options)

type options struct {
	clock clock.Clock
}

func newOptions(opts []Option) options {
	o := options{clock: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock 替换时钟（测试使用 clock.NewMock）
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

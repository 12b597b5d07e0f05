package eventbus

import "errors"

var (
	// ErrSubscriptionClosed 订阅已取消
	ErrSubscriptionClosed = errors.New("subscription closed")
)

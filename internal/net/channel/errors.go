package channel

import "errors"

var (
	// ErrChannelStopped 通道已停止，不再可用
	ErrChannelStopped = errors.New("channel stopped")

	// ErrServiceStopped 接收循环因 Stop 而结束
	ErrServiceStopped = errors.New("service stopped")

	// ErrUnexpectedMessage 订阅收到的消息类型与期望不符
	ErrUnexpectedMessage = errors.New("unexpected message type")
)

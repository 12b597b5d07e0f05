package messages

import "errors"

var (
	// ErrUnknownPacket 未知消息类型
	ErrUnknownPacket = errors.New("messages: unknown packet type")

	// ErrMessageTooLarge 消息超过大小上限
	ErrMessageTooLarge = errors.New("messages: message too large")

	// ErrMalformed 负载格式错误
	ErrMalformed = errors.New("messages: malformed payload")
)

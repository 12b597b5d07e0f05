package p2p

import "errors"

var (
	// ErrOperationFailed 前置条件不满足（例如需要种子同步但未配置种子）
	ErrOperationFailed = errors.New("p2p: operation failed")

	// ErrContextClosed 会话所属的 P2p 已不可用
	ErrContextClosed = errors.New("p2p: context closed")

	// ErrSessionStopped 会话被 Stop 结束
	ErrSessionStopped = errors.New("p2p: session stopped")
)

package transport

import "errors"

var (
	// ErrConnectFailed 拨号失败
	ErrConnectFailed = errors.New("transport: connect failed")

	// ErrAlreadyListening 重复监听
	ErrAlreadyListening = errors.New("transport: already listening")

	// ErrAcceptorStopped 监听已停止
	ErrAcceptorStopped = errors.New("transport: acceptor stopped")
)

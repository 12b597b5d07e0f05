package protocols

import "errors"

var (
	// ErrPingTimeout 对端未在超时内响应 Ping
	ErrPingTimeout = errors.New("protocols: ping timeout")

	// ErrSeedQueryTimeout 种子未在超时内返回地址列表
	ErrSeedQueryTimeout = errors.New("protocols: seed query timeout")

	// ErrProtocolStopped 协议被 Stop 结束
	ErrProtocolStopped = errors.New("protocols: stopped")
)

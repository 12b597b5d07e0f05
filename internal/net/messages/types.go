package messages

import "fmt"

// PacketType 消息类型
type PacketType uint8

const (
	// PacketPing 存活探测请求
	PacketPing PacketType = iota + 1

	// PacketPong 存活探测响应
	PacketPong

	// PacketGetAddrs 请求对端已知地址
	PacketGetAddrs

	// PacketAddrs 地址列表
	PacketAddrs
)

// AllPacketTypes 返回所有已定义的消息类型
func AllPacketTypes() []PacketType {
	return []PacketType{PacketPing, PacketPong, PacketGetAddrs, PacketAddrs}
}

// String 返回消息类型名称
func (p PacketType) String() string {
	switch p {
	case PacketPing:
		return "ping"
	case PacketPong:
		return "pong"
	case PacketGetAddrs:
		return "getaddrs"
	case PacketAddrs:
		return "addrs"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(p))
	}
}

// Message 网络消息
//
// 消息类型集合是封闭的，只能由本包实现。
type Message interface {
	// PacketType 返回消息类型
	PacketType() PacketType

	appendPayload(b []byte) []byte
	decodePayload(b []byte) error
}

// New 创建指定类型的空消息
func New(p PacketType) (Message, error) {
	switch p {
	case PacketPing:
		return &Ping{}, nil
	case PacketPong:
		return &Pong{}, nil
	case PacketGetAddrs:
		return &GetAddrs{}, nil
	case PacketAddrs:
		return &Addrs{}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownPacket, uint8(p))
	}
}

// Ping 存活探测请求
type Ping struct {
	// Nonce 随机数，Pong 原样带回（字段 1）
	Nonce []byte
}

// Pong 存活探测响应
type Pong struct {
	// Nonce 对应 Ping 的随机数（字段 1）
	Nonce []byte
}

// GetAddrs 请求地址列表
type GetAddrs struct{}

// Addrs 地址列表
type Addrs struct {
	// Addrs host:port 列表（字段 1，repeated）
	Addrs []string
}

// PacketType 实现 Message 接口
func (*Ping) PacketType() PacketType { return PacketPing }

// PacketType 实现 Message 接口
func (*Pong) PacketType() PacketType { return PacketPong }

// PacketType 实现 Message 接口
func (*GetAddrs) PacketType() PacketType { return PacketGetAddrs }

// PacketType 实现 Message 接口
func (*Addrs) PacketType() PacketType { return PacketAddrs }

package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/dep2p/go-p2pnet/internal/core/eventbus"
	"github.com/dep2p/go-p2pnet/internal/net/messages"
)

// result 订阅者收到的单个结果：消息或终止错误
type result struct {
	msg messages.Message
	err error
}

// MessageRouter 按消息类型分发
//
// Notify 只投递给订阅了该类型的订阅者；NotifyError 投递给全部订阅者，
// 并封闭 Router，之后的订阅立即收到同一个错误。
type MessageRouter struct {
	router *eventbus.Router[messages.PacketType, result]
}

// NewMessageRouter 创建 MessageRouter
func NewMessageRouter() *MessageRouter {
	return &MessageRouter{
		router: eventbus.NewRouter[messages.PacketType, result](),
	}
}

// Subscribe 订阅指定类型的消息
func (r *MessageRouter) Subscribe(kind messages.PacketType) *MessageSubscription {
	return &MessageSubscription{
		kind: kind,
		sub:  r.router.Subscribe(kind),
	}
}

// Notify 投递消息，返回投递数量
func (r *MessageRouter) Notify(msg messages.Message) int {
	return r.router.Publish(msg.PacketType(), result{msg: msg})
}

// NotifyError 向所有订阅者投递终止错误，返回投递数量
//
// err 不满足 errors.Is(err, ErrChannelStopped) 时会被包装。只有第一次调用生效。
func (r *MessageRouter) NotifyError(err error) int {
	if !errors.Is(err, ErrChannelStopped) {
		err = fmt.Errorf("%w: %w", ErrChannelStopped, err)
	}
	return r.router.Seal(result{err: err})
}

// Subscribers 返回指定类型的订阅数
func (r *MessageRouter) Subscribers(kind messages.PacketType) int {
	return r.router.Len(kind)
}

// MessageSubscription 消息订阅
type MessageSubscription struct {
	kind messages.PacketType
	sub  *eventbus.Subscription[result]
}

// Kind 返回订阅的消息类型
func (s *MessageSubscription) Kind() messages.PacketType {
	return s.kind
}

// Receive 等待下一条消息或终止错误
func (s *MessageSubscription) Receive(ctx context.Context) (messages.Message, error) {
	r, err := s.sub.Receive(ctx)
	if err != nil {
		return nil, err
	}
	return r.msg, r.err
}

// Unsubscribe 取消订阅，可多次调用
func (s *MessageSubscription) Unsubscribe() {
	s.sub.Unsubscribe()
}

// ReceiveAs 接收一条消息并断言为具体类型 M
func ReceiveAs[M messages.Message](ctx context.Context, sub *MessageSubscription) (M, error) {
	var zero M
	msg, err := sub.Receive(ctx)
	if err != nil {
		return zero, err
	}
	m, ok := msg.(M)
	if !ok {
		return zero, fmt.Errorf("%w: %s on %s subscription", ErrUnexpectedMessage, msg.PacketType(), sub.kind)
	}
	return m, nil
}

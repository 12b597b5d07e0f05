package eventbus

import (
	"context"
	"sync"
)

// Subscription 订阅句柄
//
// 由 Notifier.Subscribe 或 Router.Subscribe 返回。
// Receive 与 Unsubscribe 可以在不同 goroutine 中并发调用。
type Subscription[T any] struct {
	id uint64

	mu     sync.Mutex
	queue  []T
	closed bool
	ready  chan struct{}

	detach    func()
	closeOnce sync.Once
}

func newSubscription[T any](id uint64) *Subscription[T] {
	return &Subscription[T]{
		id:    id,
		ready: make(chan struct{}, 1),
	}
}

// ID 返回订阅 ID（在所属注册表内唯一、单调递增）
func (s *Subscription[T]) ID() uint64 {
	return s.id
}

// Receive 等待下一个值
//
// ctx 取消时返回 ctx.Err()；取消订阅后返回 ErrSubscriptionClosed。
func (s *Subscription[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			v := s.queue[0]
			s.queue[0] = zero
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return v, nil
		}
		if s.closed {
			s.mu.Unlock()
			return zero, ErrSubscriptionClosed
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-s.ready:
		}
	}
}

// Pending 返回已投递但尚未取出的值数量
func (s *Subscription[T]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Unsubscribe 取消订阅
//
// 并发安全，可多次调用。返回后不再接收新值，未取出的值被丢弃，
// 阻塞中的 Receive 返回 ErrSubscriptionClosed。
func (s *Subscription[T]) Unsubscribe() {
	s.closeOnce.Do(func() {
		if s.detach != nil {
			s.detach()
		}

		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.mu.Unlock()

		s.wake()
	})
}

// deliver 入队一个值，订阅已关闭时返回 false
//
// 调用方持有所属注册表的锁。
func (s *Subscription[T]) deliver(v T) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, v)
	s.mu.Unlock()

	s.wake()
	return true
}

func (s *Subscription[T]) wake() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

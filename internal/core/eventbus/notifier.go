package eventbus

import "sync"

// Notifier 单值扇出注册表
type Notifier[T any] struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*Subscription[T]

	// latched 为 true 时记住最后一个值并回放给后加入的订阅者
	latched bool
	last    T
	hasLast bool
}

// NewNotifier 创建 Notifier
func NewNotifier[T any]() *Notifier[T] {
	return &Notifier[T]{
		subs: make(map[uint64]*Subscription[T]),
	}
}

// NewLatchedNotifier 创建锁存模式的 Notifier
func NewLatchedNotifier[T any]() *Notifier[T] {
	n := NewNotifier[T]()
	n.latched = true
	return n
}

// Subscribe 注册新的订阅
func (n *Notifier[T]) Subscribe() *Subscription[T] {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	sub := newSubscription[T](n.nextID)
	sub.detach = func() { n.remove(sub.id) }

	if n.latched && n.hasLast {
		sub.deliver(n.last)
	}
	n.subs[sub.id] = sub
	return sub
}

// Notify 投递 v 给所有当前订阅者，返回投递数量
func (n *Notifier[T]) Notify(v T) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.latched {
		n.last = v
		n.hasLast = true
	}

	delivered := 0
	for _, sub := range n.subs {
		if sub.deliver(v) {
			delivered++
		}
	}
	return delivered
}

// Len 返回当前订阅数
func (n *Notifier[T]) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

func (n *Notifier[T]) remove(id uint64) {
	n.mu.Lock()
	delete(n.subs, id)
	n.mu.Unlock()
}

package eventbus

import "sync"

// Router 按键分组的注册表
//
// 所有键共用一个注册表：Publish 按键窄播，Broadcast 忽略键。
// Seal 之后 Router 只保留终止值：新订阅立即收到该值，Publish 被丢弃。
type Router[K comparable, T any] struct {
	mu     sync.Mutex
	nextID uint64
	groups map[K]map[uint64]*Subscription[T]

	sealed bool
	final  T
}

// NewRouter 创建 Router
func NewRouter[K comparable, T any]() *Router[K, T] {
	return &Router[K, T]{
		groups: make(map[K]map[uint64]*Subscription[T]),
	}
}

// Subscribe 订阅键 k
func (r *Router[K, T]) Subscribe(k K) *Subscription[T] {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	sub := newSubscription[T](r.nextID)
	sub.detach = func() { r.remove(k, sub.id) }

	if r.sealed {
		sub.deliver(r.final)
	}

	group, ok := r.groups[k]
	if !ok {
		group = make(map[uint64]*Subscription[T])
		r.groups[k] = group
	}
	group[sub.id] = sub
	return sub
}

// Publish 投递 v 给键 k 的订阅者，返回投递数量
func (r *Router[K, T]) Publish(k K, v T) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return 0
	}

	delivered := 0
	for _, sub := range r.groups[k] {
		if sub.deliver(v) {
			delivered++
		}
	}
	return delivered
}

// Broadcast 投递 v 给所有键的全部订阅者，返回投递数量
func (r *Router[K, T]) Broadcast(v T) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return 0
	}
	return r.broadcastLocked(v)
}

// Seal 广播终止值 v 并封闭 Router
//
// 只有第一次调用生效，之后的调用返回 0。
func (r *Router[K, T]) Seal(v T) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return 0
	}
	r.sealed = true
	r.final = v
	return r.broadcastLocked(v)
}

// Sealed 报告 Router 是否已封闭
func (r *Router[K, T]) Sealed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sealed
}

func (r *Router[K, T]) broadcastLocked(v T) int {
	delivered := 0
	for _, group := range r.groups {
		for _, sub := range group {
			if sub.deliver(v) {
				delivered++
			}
		}
	}
	return delivered
}

// Len 返回键 k 的订阅数
func (r *Router[K, T]) Len(k K) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups[k])
}

func (r *Router[K, T]) remove(k K, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	group, ok := r.groups[k]
	if !ok {
		return
	}
	delete(group, id)
	if len(group) == 0 {
		delete(r.groups, k)
	}
}

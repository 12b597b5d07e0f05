// Package eventbus 实现进程内发布/订阅原语
//
// 提供两种注册表，共享同一种订阅句柄 Subscription[T]：
//   - Notifier[T]：单值扇出，每次 Notify 投递给所有当前订阅者
//   - Router[K, T]：按键分组，Publish 只投递给该键的订阅者，
//     Broadcast 投递给所有键的全部订阅者（通配广播）
//
// # 快速开始
//
//	n := eventbus.NewNotifier[error]()
//	sub := n.Subscribe()
//	defer sub.Unsubscribe()
//
//	n.Notify(io.EOF)
//	v, err := sub.Receive(ctx)
//
// # 投递语义
//
// 每个订阅持有一个无界 FIFO 队列，Notify/Publish/Broadcast 从不阻塞。
// 投递在注册表锁内完成，因此：
//   - Notify 时已注册的订阅者恰好收到一次
//   - Notify 返回后才注册的订阅者不会收到该值
//   - Unsubscribe 返回后不会再有投递
//
// 订阅之间不保证顺序；同一订阅内按 Notify 顺序出队。
//
// # 锁存模式
//
// NewLatchedNotifier 记住最后一次 Notify 的值，并在之后的 Subscribe 时
// 立即投递给新订阅者。用于「已发生的终止事件」这类状态型通知。
package eventbus

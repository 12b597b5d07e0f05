// Package channel 实现点对点消息通道
//
// Channel 包装一条已建立的连接，提供：
//   - 后台接收循环：解码消息并按类型分发给订阅者（MessageRouter）
//   - 串行化的发送：每次 Send 独占写半部，带写超时
//   - 一次性的停止：任意 goroutine 调用 Stop 都安全，只有一个调用者执行拆除
//
// # 生命周期
//
//	Created ──Start──▶ Started ──Stop / 读写失败──▶ Stopped
//	   └──────────────────Stop───────────────────────┘
//
// 停止后：
//   - 每个 SubscribeStop 订阅恰好收到一次 ErrChannelStopped（包括停止后才订阅的）
//   - 每个 SubscribeMsg 订阅收到一个满足 errors.Is(err, ErrChannelStopped) 的终止错误
//   - Send 返回 ErrChannelStopped
//
// # 使用示例
//
//	ch := channel.New(conn, settings, channel.WithMetrics(m))
//	pongs := ch.SubscribeMsg(messages.PacketPong)
//	if err := ch.Start(ctx); err != nil { ... }
//	_ = ch.Send(ctx, &messages.Ping{Nonce: nonce})
//	pong, err := channel.ReceiveAs[*messages.Pong](ctx, pongs)
package channel

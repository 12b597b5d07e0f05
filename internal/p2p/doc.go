// Package p2p 组装网络核心
//
// P2p 是进程内唯一的网络上下文，持有配置、地址簿、指标和通道注册表。
// 会话（Session）决定何时、为何建立连接：
//   - SeedSession    启动时并发连接所有种子，交换地址后断开
//   - InboundSession 监听 InboundAddr，为每个入站通道挂载 Ping 与地址服务
//
// 会话只持有 P2p 的弱引用，P2p 被回收后会话操作返回 ErrContextClosed。
//
// # 使用示例
//
//	h, _ := hosts.New(settings.HostsCapacity)
//	node := p2p.New(settings, h, p2p.WithMetrics(metrics.New(nil)))
//	if err := node.Start(ctx); err != nil { ... }
//	defer node.Stop()
package p2p

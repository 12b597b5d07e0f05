// Package introspect 提供本地自省 HTTP 服务
//
// 该服务运行在 MetricsAddr 上，提供 JSON 格式的诊断信息和 Prometheus 指标。
//
// # 端点
//
//	GET /debug/introspect          - 完整诊断报告 (JSON)
//	GET /debug/introspect/channels - 已注册通道
//	GET /debug/introspect/hosts    - 地址簿
//	GET /debug/introspect/seeds    - 最近一次种子同步结果
//	GET /debug/introspect/runtime  - 运行时信息
//	GET /debug/pprof/*             - Go pprof 端点
//	GET /metrics                   - Prometheus 指标
//	GET /health                    - 健康检查
//
// # 使用示例
//
//	server := introspect.New(introspect.Config{
//	    Addr:    "127.0.0.1:6060",
//	    Node:    node,
//	    Metrics: m.Handler(),
//	})
//	server.Start(ctx)
//	defer server.Stop()
//
// # 安全
//
// 默认只监听本地地址。如果需要远程访问，请确保配置适当的访问控制。
package introspect

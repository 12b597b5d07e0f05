// Package lib 包含基础设施工具库
//
// 本目录包含与网络组件无关的通用工具库：
//
//   - log: 按组件分级的 slog 日志封装
//
// # 使用示例
//
//	import "github.com/dep2p/go-p2pnet/pkg/lib/log"
//
//	var logger = log.Logger("net/channel")
package lib

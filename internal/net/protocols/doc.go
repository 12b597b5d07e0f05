// Package protocols 实现通道上的协议
//
// 协议只依赖 Channel 的订阅接口和 Send：
//   - ProtocolPing    存活探测，后台运行，对端无响应时停止通道
//   - ProtocolSeed    种子查询，阻塞直到收到地址列表或超时
//   - ProtocolAddress 地址服务，后台运行，响应 GetAddrs 并记录收到的 Addrs
//
// 后台协议在通道停止时自行结束（订阅收到终止错误），Stop 用于提前结束。
package protocols

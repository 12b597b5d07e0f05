// Package messages 实现网络消息编解码
//
// # 帧格式
//
//	+----------------+----------------+-----------------+
//	| packet uvarint | length uvarint | payload (length)|
//	+----------------+----------------+-----------------+
//
// payload 使用 protobuf wire 格式编码（字段号见各消息类型）。
//
// # 错误
//
// Receive 在帧边界处遇到流结束时返回 io.EOF（干净断开），
// 在帧内部遇到流结束时返回 io.ErrUnexpectedEOF。
package messages

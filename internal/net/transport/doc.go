// Package transport 建立 Channel
//
// Connector 主动拨号，Acceptor 监听并接受入站连接。两者都只负责
// 得到一个已连接的 net.Conn 并包装为未启动的 *channel.Channel，
// 启动和注册由会话负责。
package transport

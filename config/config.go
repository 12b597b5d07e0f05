// Package config 提供 p2pnet 的进程配置
//
// Settings 是一个普通结构体，按值语义只读使用：
//
//	s := config.Default()
//	s.Seeds = []string{"seed1.example.org:7700"}
//	if err := s.Validate(); err != nil { ... }
//
//	// 从文件加载（.json 或 .toml），未设置的字段保留默认值
//	s, err := config.Load("node.toml")
package config

import "time"

// Settings 网络核心配置
type Settings struct {
	// InboundAddr 入站监听地址（host:port），为空表示不接受入站连接
	InboundAddr string `json:"inbound_addr" toml:"inbound_addr"`

	// ExternalAddr 对外公布的地址，种子交换时发送给对端
	ExternalAddr string `json:"external_addr" toml:"external_addr"`

	// Seeds 种子节点地址列表（host:port）
	Seeds []string `json:"seeds" toml:"seeds"`

	// SkipSeedSync 跳过种子同步
	SkipSeedSync bool `json:"skip_seed_sync" toml:"skip_seed_sync"`

	// SkipSeedSyncIfCached 地址簿非空时跳过种子同步
	SkipSeedSyncIfCached bool `json:"skip_seed_sync_if_cached" toml:"skip_seed_sync_if_cached"`

	// SeedConcurrency 同时进行的种子连接数上限，0 表示不限制
	SeedConcurrency int `json:"seed_concurrency" toml:"seed_concurrency"`

	// ConnectTimeout 出站拨号超时
	ConnectTimeout Duration `json:"connect_timeout" toml:"connect_timeout"`

	// ChannelWriteTimeout 单次写消息超时
	ChannelWriteTimeout Duration `json:"channel_write_timeout" toml:"channel_write_timeout"`

	// PingInterval 两次 Ping 之间的间隔
	PingInterval Duration `json:"ping_interval" toml:"ping_interval"`

	// PingTimeout 等待 Pong 的超时
	PingTimeout Duration `json:"ping_timeout" toml:"ping_timeout"`

	// SeedQueryTimeout 等待种子节点返回地址列表的超时
	SeedQueryTimeout Duration `json:"seed_query_timeout" toml:"seed_query_timeout"`

	// MaxMessageSize 单条消息负载上限（字节）
	MaxMessageSize int `json:"max_message_size" toml:"max_message_size"`

	// MaxAddrsPerMessage 一条 Addrs 消息中的地址数上限
	MaxAddrsPerMessage int `json:"max_addrs_per_message" toml:"max_addrs_per_message"`

	// HostsCapacity 内存地址簿容量
	HostsCapacity int `json:"hosts_capacity" toml:"hosts_capacity"`

	// HostsPath 地址簿持久化目录，为空表示仅内存
	HostsPath string `json:"hosts_path" toml:"hosts_path"`

	// AcceptRate 每秒接受的入站连接数，0 表示不限制
	AcceptRate float64 `json:"accept_rate" toml:"accept_rate"`

	// AcceptBurst 入站连接突发上限
	AcceptBurst int `json:"accept_burst" toml:"accept_burst"`

	// MetricsAddr Prometheus 指标 HTTP 地址，为空表示不开启
	MetricsAddr string `json:"metrics_addr" toml:"metrics_addr"`
}

// Default 返回默认配置
func Default() *Settings {
	return &Settings{
		ConnectTimeout:      Duration(10 * time.Second),
		ChannelWriteTimeout: Duration(10 * time.Second),
		PingInterval:        Duration(30 * time.Second),
		PingTimeout:         Duration(10 * time.Second),
		SeedQueryTimeout:    Duration(15 * time.Second),
		MaxMessageSize:      1 << 20,
		MaxAddrsPerMessage:  1000,
		HostsCapacity:       4096,
		AcceptRate:          50,
		AcceptBurst:         100,
	}
}

// Clone 返回深拷贝
func (s *Settings) Clone() *Settings {
	c := *s
	c.Seeds = append([]string(nil), s.Seeds...)
	return &c
}

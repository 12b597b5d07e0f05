package config

import (
	"errors"
	"fmt"
	"net"
)

// ErrInvalidConfig 配置无效
var ErrInvalidConfig = errors.New("invalid config")

// Validate 校验配置
func (s *Settings) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: settings is nil", ErrInvalidConfig)
	}

	positive := []struct {
		name string
		v    Duration
	}{
		{"connect_timeout", s.ConnectTimeout},
		{"channel_write_timeout", s.ChannelWriteTimeout},
		{"ping_interval", s.PingInterval},
		{"ping_timeout", s.PingTimeout},
		{"seed_query_timeout", s.SeedQueryTimeout},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, p.name)
		}
	}

	if s.MaxMessageSize <= 0 {
		return fmt.Errorf("%w: max_message_size must be positive", ErrInvalidConfig)
	}
	if s.MaxAddrsPerMessage <= 0 {
		return fmt.Errorf("%w: max_addrs_per_message must be positive", ErrInvalidConfig)
	}
	if s.HostsCapacity <= 0 {
		return fmt.Errorf("%w: hosts_capacity must be positive", ErrInvalidConfig)
	}
	if s.SeedConcurrency < 0 {
		return fmt.Errorf("%w: seed_concurrency must not be negative", ErrInvalidConfig)
	}
	if s.AcceptRate < 0 || s.AcceptBurst < 0 {
		return fmt.Errorf("%w: accept_rate and accept_burst must not be negative", ErrInvalidConfig)
	}

	for i, seed := range s.Seeds {
		if err := ValidateAddr(seed); err != nil {
			return fmt.Errorf("%w: seeds[%d]: %v", ErrInvalidConfig, i, err)
		}
	}
	for name, addr := range map[string]string{
		"inbound_addr":  s.InboundAddr,
		"external_addr": s.ExternalAddr,
		"metrics_addr":  s.MetricsAddr,
	} {
		if addr == "" {
			continue
		}
		if err := ValidateAddr(addr); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, name, err)
		}
	}
	return nil
}

// ValidateAddr 检查 host:port 格式
func ValidateAddr(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if port == "" {
		return fmt.Errorf("missing port in %q", addr)
	}
	return nil
}

package log

import (
	"log/slog"
	"os"
	"strings"
)

// 环境变量
const (
	// EnvLevel 格式: 组件=级别,组件=级别,默认级别
	// 示例: net/channel=debug,p2p=warn,info
	EnvLevel = "P2PNET_LOG_LEVEL"

	// EnvFormat text 或 json
	EnvFormat = "P2PNET_LOG_FORMAT"
)

// Levels 日志级别配置
type Levels struct {
	// Default 默认级别
	Default slog.Level

	// Components 各组件级别，键为 Logger() 的组件名
	Components map[string]slog.Level
}

// LevelFor 获取组件级别
//
// 先精确匹配，再按 "/" 逐级匹配父组件，例如 "net/channel" 会回落到 "net"。
func (l Levels) LevelFor(component string) slog.Level {
	for c := component; c != ""; {
		if level, ok := l.Components[c]; ok {
			return level
		}
		i := strings.LastIndex(c, "/")
		if i < 0 {
			break
		}
		c = c[:i]
	}
	return l.Default
}

// ParseLevels 解析级别配置字符串
func ParseLevels(s string) Levels {
	l := Levels{Default: slog.LevelInfo, Components: map[string]slog.Level{}}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if k, v, ok := strings.Cut(part, "="); ok {
			if level, ok := ParseLevel(v); ok {
				l.Components[strings.TrimSpace(k)] = level
			}
			continue
		}
		if level, ok := ParseLevel(part); ok {
			l.Default = level
		}
	}
	return l
}

// ParseLevel 解析级别名称
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// ConfigureFromEnv 根据环境变量配置级别和输出格式
func ConfigureFromEnv() {
	if s := os.Getenv(EnvLevel); s != "" {
		SetLevels(ParseLevels(s))
	}
	if strings.EqualFold(os.Getenv(EnvFormat), "json") {
		SetOutputJSON(os.Stderr)
	}
}

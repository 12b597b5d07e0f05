// Package log 提供 p2pnet 的组件日志
//
// 基于标准库 log/slog。每个包持有一个组件 logger：
//
//	var logger = log.Logger("net/channel")
//	logger.Info("channel disconnected", "addr", addr)
//
// LazyLogger 在每次调用时解析当前的 slog.Default()，
// 因此 SetOutput / ConfigureFromEnv 在任何时刻调用都会生效。
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

// 日志级别常量
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var (
	levelsMu sync.RWMutex
	levels   = Levels{Default: slog.LevelInfo, Components: map[string]slog.Level{}}
)

// LazyLogger 懒加载组件 logger
type LazyLogger struct {
	component string
}

// Logger 返回带组件名的 LazyLogger
func Logger(component string) *LazyLogger {
	return &LazyLogger{component: component}
}

func (l *LazyLogger) logger() *slog.Logger {
	return slog.Default().With("component", l.component)
}

// Enabled 报告该组件在 level 上是否输出
func (l *LazyLogger) Enabled(level slog.Level) bool {
	return level >= levelFor(l.component)
}

func (l *LazyLogger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if !l.Enabled(level) {
		return
	}
	l.logger().Log(ctx, level, msg, args...)
}

// Debug 输出 Debug 级别日志
func (l *LazyLogger) Debug(msg string, args ...any) {
	l.log(context.Background(), slog.LevelDebug, msg, args...)
}

// Info 输出 Info 级别日志
func (l *LazyLogger) Info(msg string, args ...any) {
	l.log(context.Background(), slog.LevelInfo, msg, args...)
}

// Warn 输出 Warn 级别日志
func (l *LazyLogger) Warn(msg string, args ...any) {
	l.log(context.Background(), slog.LevelWarn, msg, args...)
}

// Error 输出 Error 级别日志
func (l *LazyLogger) Error(msg string, args ...any) {
	l.log(context.Background(), slog.LevelError, msg, args...)
}

// DebugContext 带 context 的 Debug 日志
func (l *LazyLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelDebug, msg, args...)
}

// WarnContext 带 context 的 Warn 日志
func (l *LazyLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args...)
}

// With 返回附加了属性的 *slog.Logger
func (l *LazyLogger) With(args ...any) *slog.Logger {
	return l.logger().With(args...)
}

// ============================================================================
//                              输出与级别
// ============================================================================

// SetDefault 设置默认 logger
func SetDefault(l *slog.Logger) {
	slog.SetDefault(l)
}

// SetOutput 将文本格式日志输出到 w
func SetOutput(w io.Writer) {
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

// SetOutputJSON 将 JSON 格式日志输出到 w
func SetOutputJSON(w io.Writer) {
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

// SetLevels 替换全部级别配置
func SetLevels(l Levels) {
	if l.Components == nil {
		l.Components = map[string]slog.Level{}
	}
	levelsMu.Lock()
	levels = l
	levelsMu.Unlock()
}

// SetLevel 设置单个组件的级别
func SetLevel(component string, level slog.Level) {
	levelsMu.Lock()
	levels.Components[component] = level
	levelsMu.Unlock()
}

func levelFor(component string) slog.Level {
	levelsMu.RLock()
	defer levelsMu.RUnlock()
	return levels.LevelFor(component)
}

func init() {
	SetOutput(os.Stderr)
}

// Package lifecycle 提供生命周期原语
//
//   - CancellableTask：运行一个可协作取消的后台操作，完成回调恰好一次
//   - Coordinator：追踪 P2p 上下文的阶段，提供阶段 gate
package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/dep2p/go-p2pnet/pkg/lib/log"
)

var logger = log.Logger("core/lifecycle")

// ============================================================================
//                              阶段定义
// ============================================================================

// Phase 生命周期阶段
type Phase int

const (
	// PhaseCreated 已创建，未启动
	PhaseCreated Phase = iota

	// PhaseSeeding 正在连接种子节点
	PhaseSeeding

	// PhaseRunning 种子同步结束，入站会话（若配置）已就绪
	PhaseRunning

	// PhaseStopping 正在关闭会话和通道
	PhaseStopping

	// PhaseStopped 关闭完成
	PhaseStopped
)

// String 返回阶段字符串表示
func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseSeeding:
		return "seeding"
	case PhaseRunning:
		return "running"
	case PhaseStopping:
		return "stopping"
	case PhaseStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// ============================================================================
//                              Coordinator
// ============================================================================

// Coordinator 阶段协调器
//
// 阶段只能向前推进；推进到某阶段时，它及之前所有阶段的信号都会关闭。
type Coordinator struct {
	mu      sync.RWMutex
	phase   Phase
	signals map[Phase]chan struct{}
}

// NewCoordinator 创建协调器
func NewCoordinator() *Coordinator {
	c := &Coordinator{
		phase:   PhaseCreated,
		signals: make(map[Phase]chan struct{}),
	}
	for p := PhaseCreated; p <= PhaseStopped; p++ {
		c.signals[p] = make(chan struct{})
	}
	close(c.signals[PhaseCreated])
	return c
}

// Phase 返回当前阶段
func (c *Coordinator) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// AdvanceTo 推进到 target
//
// 后退返回错误；与当前阶段相同时什么也不做。
func (c *Coordinator) AdvanceTo(target Phase) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.signals[target]; !ok {
		return fmt.Errorf("invalid phase: %d", int(target))
	}
	if target < c.phase {
		return fmt.Errorf("cannot advance backwards: current=%s target=%s", c.phase, target)
	}
	if target == c.phase {
		return nil
	}

	old := c.phase
	for p := old + 1; p <= target; p++ {
		close(c.signals[p])
	}
	c.phase = target

	logger.Debug("phase advanced", "from", old.String(), "to", target.String())
	return nil
}

// WaitFor 阻塞直到 phase 已到达或 ctx 取消
func (c *Coordinator) WaitFor(ctx context.Context, phase Phase) error {
	c.mu.RLock()
	ch, ok := c.signals[phase]
	c.mu.RUnlock()

	if !ok {
		return fmt.Errorf("invalid phase: %d", int(phase))
	}

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reached 报告 phase 是否已到达
func (c *Coordinator) Reached(phase Phase) bool {
	return c.Phase() >= phase
}

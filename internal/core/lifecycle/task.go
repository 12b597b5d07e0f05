package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jbenet/goprocess"
	goprocessctx "github.com/jbenet/goprocess/context"
)

// CancellableTask 可取消的后台任务
//
// 单次使用：Start 一次，Stop 任意次。op 作为 goprocess 子进程运行，
// Stop 即关闭进程：等待 op 返回、onComplete 执行完毕后才结束。
//
//	task := lifecycle.NewCancellableTask()
//	_ = task.Start(ctx, loop, func(err error) { ... }, ErrServiceStopped)
//	...
//	task.Stop() // 返回时 loop 已退出，回调已执行
type CancellableTask struct {
	proc goprocess.Process

	// mu 串行化 Start 的子进程登记与 Stop 的关闭
	mu       sync.Mutex
	started  atomic.Bool
	stopping atomic.Bool
	cancel   context.CancelFunc

	done      chan struct{}
	closeOnce sync.Once
}

// NewCancellableTask 创建任务
func NewCancellableTask() *CancellableTask {
	t := &CancellableTask{
		done: make(chan struct{}),
	}
	t.proc = goprocess.WithTeardown(func() error {
		t.finish()
		return nil
	})
	return t
}

// Start 在新 goroutine 中运行 op
//
// op 结束后 onComplete 恰好被调用一次：若在 op 返回前调用过 Cancel/Stop，
// 参数为 stopErr，否则为 op 的返回值。Start 不阻塞。
// 第二次调用返回 ErrAlreadyStarted；Stop 之后调用同样返回 ErrAlreadyStarted。
func (t *CancellableTask) Start(parent context.Context, op func(ctx context.Context) error, onComplete func(error), stopErr error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	// 进程关闭或 Cancel 都会取消 op 的 ctx
	ctx, cancel := context.WithCancel(goprocessctx.WithProcessClosing(parent, t.proc))
	t.cancel = cancel

	// Start 之前已经 Cancel
	if t.stopping.Load() {
		cancel()
	}

	t.proc.Go(func(goprocess.Process) {
		defer cancel()

		err := op(ctx)
		if t.stopping.Load() {
			err = stopErr
		}
		if onComplete != nil {
			onComplete(err)
		}
		t.finish()

		// op 自行结束时释放进程树；不能同步关闭，关闭会等待本函数返回
		go func() { _ = t.proc.Close() }()
	})
	return nil
}

// Cancel 发出停止信号，不等待
//
// 可以在 op 内部调用。
func (t *CancellableTask) Cancel() {
	t.stopping.Store(true)

	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Stop 发出停止信号并等待 op 退出、onComplete 执行完毕
//
// 幂等。未启动的任务立即返回，且之后不能再 Start。
// 不能在 op 或 onComplete 内部调用，否则会等待自身。
func (t *CancellableTask) Stop() {
	t.Cancel()

	// 之后的 Start 被拒绝，已登记的子进程一定先于关闭
	t.mu.Lock()
	t.started.Store(true)
	t.mu.Unlock()

	_ = t.proc.Close()
}

// Done 在 op 退出且 onComplete 执行完毕后关闭
func (t *CancellableTask) Done() <-chan struct{} {
	return t.done
}

// Running 报告任务是否已启动且尚未结束
func (t *CancellableTask) Running() bool {
	if !t.started.Load() {
		return false
	}
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

func (t *CancellableTask) finish() {
	t.closeOnce.Do(func() { close(t.done) })
}

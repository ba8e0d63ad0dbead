package reaper

import (
	"context"
	"log"
	"sync/atomic"
	"time"
)

// Sweeper 执行一轮过期桌位锁回收，返回释放数量。
type Sweeper interface {
	ReleaseStaleTables(ctx context.Context) (int, error)
}

// Reaper 周期性触发 Sweeper 的后台调度器。自持生命周期：
// Start 启动、Stop 取消并等待退出；running 标记保证同一实例的
// 两轮扫描绝不重叠（上一轮没跑完就跳过本轮）。
// 单轮失败只记日志，调度循环永不因错误退出。
type Reaper struct {
	sweeper  Sweeper
	interval time.Duration

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(sweeper Sweeper, interval time.Duration) *Reaper {
	return &Reaper{
		sweeper:  sweeper,
		interval: interval,
	}
}

// Start 启动后台循环。先立刻扫一轮（清掉进程重启前遗留的锁），
// 之后按固定间隔运行。重复 Start 是 no-op。
func (r *Reaper) Start(ctx context.Context) {
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)

		r.sweepOnce(ctx)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweepOnce(ctx)
			}
		}
	}()
}

// Stop 取消循环并等待当前一轮结束（优雅停机用）。
func (r *Reaper) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.cancel = nil
}

func (r *Reaper) sweepOnce(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		log.Printf("reaper: previous sweep still in progress, skipping")
		return
	}
	defer r.running.Store(false)

	released, err := r.sweeper.ReleaseStaleTables(ctx)
	if err != nil {
		// 只记日志，下一轮重试
		log.Printf("reaper sweep: %v", err)
		return
	}
	if released > 0 {
		log.Printf("reaper: released %d stale table(s)", released)
	}
}

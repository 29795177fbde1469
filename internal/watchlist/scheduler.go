package watchlist

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"fund-watch-server/internal/trace"
)

// 刷新间隔（毫秒），下限防止把上游打挂
const (
	DefaultRefreshMs = 30000
	MinRefreshMs     = 5000
)

// Scheduler 定时触发刷新。间隔调整和成员增删都会重置计时，
// 但不会打断在途的刷新周期，那个由 Controller 的单飞保护。
type Scheduler struct {
	ctrl  *Controller
	mgr   *Manager
	store Store

	intervalMs atomic.Int64
	rearm      chan struct{}
}

func NewScheduler(ctrl *Controller, mgr *Manager, store Store) *Scheduler {
	s := &Scheduler{
		ctrl:  ctrl,
		mgr:   mgr,
		store: store,
		rearm: make(chan struct{}, 1),
	}
	ms := int64(store.GetNumber(KeyRefreshMs, DefaultRefreshMs))
	if ms < MinRefreshMs {
		ms = DefaultRefreshMs
	}
	s.intervalMs.Store(ms)
	return s
}

// IntervalMs 当前配置的刷新间隔
func (s *Scheduler) IntervalMs() int64 {
	return s.intervalMs.Load()
}

// SetIntervalMs 更新间隔并落库，低于下限按下限算。下一次计时立即用新值，
// 正在跑的周期不受影响。
func (s *Scheduler) SetIntervalMs(ms int64) int64 {
	if ms < MinRefreshMs {
		ms = MinRefreshMs
	}
	s.intervalMs.Store(ms)
	if err := s.store.SetString(KeyRefreshMs, strconv.FormatInt(ms, 10)); err != nil {
		trace.Log(context.Background(), "watchlist: 保存刷新间隔失败 err=%v", err)
	}
	s.Rearm()
	return ms
}

// Rearm 请求重置计时器，非阻塞，重复调用会被合并
func (s *Scheduler) Rearm() {
	select {
	case s.rearm <- struct{}{}:
	default:
	}
}

// Run 计时循环，ctx 取消即退出。到点时对当前关注集合的快照发起一轮刷新，
// 刷新放在单独的 goroutine 里跑，计时循环不被网络拖住。
func (s *Scheduler) Run(ctx context.Context) {
	for {
		timer := time.NewTimer(time.Duration(s.intervalMs.Load()) * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.rearm:
			timer.Stop()
		case <-timer.C:
			codes := s.mgr.Codes()
			if len(codes) == 0 {
				continue
			}
			runCtx := trace.WithTraceID(ctx, trace.NewTraceID())
			go s.ctrl.Refresh(runCtx, codes)
		}
	}
}

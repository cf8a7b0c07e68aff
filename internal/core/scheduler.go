package core

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"cert-renewer/internal/metrics"
)

type cycleRunner interface {
	RunCycle(ctx context.Context) CycleResult
}

// Scheduler 按固定间隔执行续期周期
// 周期之间先等待 interval，周期本身不会被取消打断
type Scheduler struct {
	runner     cycleRunner
	interval   time.Duration
	runOnStart bool
	metrics    *metrics.Metrics
}

// NewScheduler 创建调度器
func NewScheduler(runner cycleRunner, interval time.Duration, runOnStart bool, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		runner:     runner,
		interval:   interval,
		runOnStart: runOnStart,
		metrics:    m,
	}
}

// Run 循环执行直到 ctx 被取消，只在等待期间响应取消
func (s *Scheduler) Run(ctx context.Context) error {
	log.Printf("[调度] 启动，检查间隔: %v", s.interval)

	if s.runOnStart {
		s.RunOnce(ctx)
	}

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[调度] 收到停止信号，退出")
			return nil
		case <-timer.C:
		}

		s.RunOnce(ctx)
		timer.Reset(s.interval)
	}
}

// RunOnce 执行一次周期，周期内的 panic 会被恢复并记录
func (s *Scheduler) RunOnce(ctx context.Context) CycleResult {
	result := s.runCycle(context.WithoutCancel(ctx))

	s.metrics.ObserveCycle(string(result.Status), result.Started.Add(result.Duration), result.Duration)
	if err := s.metrics.Flush(); err != nil {
		log.Printf("[调度] %v", err)
	}

	switch result.Status {
	case CycleIdle, CycleRenewed:
		log.Printf("[调度] 本轮结束: %s，耗时 %v", result.Status, result.Duration.Round(time.Millisecond))
	default:
		log.Printf("[调度] 本轮结束: %s，耗时 %v，错误: %v", result.Status, result.Duration.Round(time.Millisecond), result.Err)
	}
	return result
}

func (s *Scheduler) runCycle(ctx context.Context) (result CycleResult) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[调度] FATAL 续期周期异常: %v\n%s", r, debug.Stack())
			result = CycleResult{
				Started:  started,
				Duration: time.Since(started),
				Status:   CycleFatal,
				Err:      fmt.Errorf("panic: %v", r),
			}
		}
	}()
	return s.runner.RunCycle(ctx)
}

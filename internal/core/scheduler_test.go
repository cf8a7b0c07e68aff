package core

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcRunner func(ctx context.Context) CycleResult

func (f funcRunner) RunCycle(ctx context.Context) CycleResult {
	return f(ctx)
}

func TestScheduler_RunOnceRecoversPanic(t *testing.T) {
	s := NewScheduler(funcRunner(func(ctx context.Context) CycleResult {
		panic("boom")
	}), time.Hour, false, nil)

	result := s.RunOnce(context.Background())
	assert.Equal(t, CycleFatal, result.Status)
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "boom")
}

func TestScheduler_ContinuesAfterPanic(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := funcRunner(func(context.Context) CycleResult {
		n := calls.Add(1)
		if n == 1 {
			panic("first cycle")
		}
		if n == 3 {
			cancel()
		}
		return CycleResult{Status: CycleIdle}
	})

	s := NewScheduler(runner, 10*time.Millisecond, false, nil)
	require.NoError(t, s.Run(ctx))
	assert.Equal(t, int32(3), calls.Load())
}

func TestScheduler_RunOnStart(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())

	runner := funcRunner(func(context.Context) CycleResult {
		calls.Add(1)
		cancel()
		return CycleResult{Status: CycleIdle}
	})

	s := NewScheduler(runner, time.Hour, true, nil)
	require.NoError(t, s.Run(ctx))
	assert.Equal(t, int32(1), calls.Load())
}

func TestScheduler_WaitsBeforeFirstCycle(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	runner := funcRunner(func(context.Context) CycleResult {
		calls.Add(1)
		return CycleResult{Status: CycleIdle}
	})

	s := NewScheduler(runner, time.Hour, false, nil)
	require.NoError(t, s.Run(ctx))
	assert.Zero(t, calls.Load())
}

func TestScheduler_CancelDoesNotInterruptCycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})

	var cycleErr error
	var completed atomic.Bool
	runner := funcRunner(func(cycleCtx context.Context) CycleResult {
		close(started)
		<-release
		cycleErr = cycleCtx.Err()
		completed.Store(true)
		return CycleResult{Status: CycleRenewed}
	})

	s := NewScheduler(runner, time.Hour, true, nil)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	<-started
	cancel()
	close(release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.True(t, completed.Load())
	assert.NoError(t, cycleErr)
}

func TestScheduler_CyclesDoNotOverlap(t *testing.T) {
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		calls   int
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := funcRunner(func(context.Context) CycleResult {
		mu.Lock()
		active++
		calls++
		if active > maxSeen {
			maxSeen = active
		}
		n := calls
		mu.Unlock()

		// 周期耗时超过间隔
		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		if n == 4 {
			cancel()
		}
		return CycleResult{Status: CycleIdle}
	})

	s := NewScheduler(runner, 5*time.Millisecond, true, nil)
	require.NoError(t, s.Run(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 4, calls)
}

package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidInterval(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		_, err := New(interval, func(context.Context) {})
		assert.ErrorIs(t, err, ErrInvalidInterval, "interval %s", interval)
	}
}

func TestNew_NilJob(t *testing.T) {
	_, err := New(time.Second, nil)
	assert.ErrorIs(t, err, ErrNoJob)
}

func TestScheduler_Lifecycle(t *testing.T) {
	s, err := New(time.Hour, func(context.Context) {})
	require.NoError(t, err)
	assert.Equal(t, Idle, s.State())

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, Running, s.State())
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)

	s.Stop()
	assert.Equal(t, Stopped, s.State())
	s.Stop() // idempotent

	assert.ErrorIs(t, s.Start(context.Background()), ErrStopped)
	assert.Equal(t, "stopped", s.State().String())
}

func TestScheduler_StopBeforeStart(t *testing.T) {
	s, err := New(time.Second, func(context.Context) {})
	require.NoError(t, err)

	s.Stop()
	assert.Equal(t, Stopped, s.State())
	assert.ErrorIs(t, s.Start(context.Background()), ErrStopped)
}

func TestScheduler_RunsOnInterval(t *testing.T) {
	var count atomic.Int32
	s, err := New(10*time.Millisecond, func(context.Context) { count.Add(1) })
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return count.Load() >= 3 }, time.Second, 5*time.Millisecond)
	s.Stop()

	stopped := count.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, count.Load(), "no job runs after Stop returns")
	assert.Equal(t, uint64(stopped), s.Executed())
}

func TestScheduler_NoOverlap(t *testing.T) {
	const interval = 10 * time.Millisecond

	var active, maxActive atomic.Int32
	job := func(context.Context) {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(35 * time.Millisecond) // longer than the interval
		active.Add(-1)
	}

	s, err := New(interval, job)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, s.Start(context.Background()))
	time.Sleep(200 * time.Millisecond)
	s.Stop()
	elapsed := time.Since(start)

	assert.Equal(t, int32(1), maxActive.Load())
	assert.LessOrEqual(t, s.Executed(), uint64(elapsed/interval))
	assert.Positive(t, s.Skipped(), "overrunning jobs skip ticks")
}

func TestScheduler_StopWaitsForInFlightJob(t *testing.T) {
	started := make(chan struct{})
	var finished atomic.Bool

	s, err := New(5*time.Millisecond, func(ctx context.Context) {
		select {
		case started <- struct{}{}:
		default:
		}
		time.Sleep(50 * time.Millisecond)
		assert.NoError(t, ctx.Err(), "in-flight job context is not cancelled")
		finished.Store(true)
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Start(ctx))
	<-started
	cancel()
	s.Stop()

	assert.True(t, finished.Load())
}

func TestScheduler_StoppingUntilJobFinishes(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	s, err := New(time.Hour, func(context.Context) {
		close(started)
		<-release
	}, WithImmediateStart(true))
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	<-started

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	assert.Eventually(t, func() bool { return s.State() == Stopping }, time.Second, time.Millisecond)
	assert.ErrorIs(t, s.Start(context.Background()), ErrStopped)

	close(release)
	<-stopped

	assert.Equal(t, Stopped, s.State())
	assert.Equal(t, "stopping", Stopping.String())
}

func TestScheduler_ContextCancelStops(t *testing.T) {
	s, err := New(5*time.Millisecond, func(context.Context) {})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	assert.Eventually(t, func() bool { return s.State() == Stopped }, time.Second, time.Millisecond)
	s.Stop()
	assert.ErrorIs(t, s.Start(context.Background()), ErrStopped)
}

func TestScheduler_ImmediateStart(t *testing.T) {
	fired := make(chan struct{}, 1)
	s, err := New(time.Hour, func(context.Context) {
		select {
		case fired <- struct{}{}:
		default:
		}
	}, WithImmediateStart(true))
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("job did not fire immediately")
	}
}

func TestScheduler_JobPanicKeepsTicking(t *testing.T) {
	var count atomic.Int32
	s, err := New(5*time.Millisecond, func(context.Context) {
		if count.Add(1) == 1 {
			panic("boom")
		}
	})
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return count.Load() >= 3 }, time.Second, time.Millisecond)
	s.Stop()
}

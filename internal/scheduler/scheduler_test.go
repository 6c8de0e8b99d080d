package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStarted(t *testing.T) *Scheduler {
	t.Helper()
	s := New(zerolog.Nop())
	require.NoError(t, s.Start())
	return s
}

func TestScheduler_StartStop(t *testing.T) {
	s := New(zerolog.Nop())

	assert.NoError(t, s.Start())
	err := s.Start()
	assert.EqualError(t, err, "scheduler is already running")

	assert.NoError(t, s.Stop())
	err = s.Stop()
	assert.EqualError(t, err, "scheduler is not running")
}

func TestScheduler_RunsAfterDelay(t *testing.T) {
	s := newStarted(t)
	defer s.Stop()

	start := time.Now()
	fired := make(chan time.Duration, 1)
	ok := s.Schedule(50*time.Millisecond, func(context.Context) {
		fired <- time.Since(start)
	})
	require.True(t, ok)

	// scheduling never blocks the caller
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	select {
	case elapsed := <-fired:
		assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("effect did not run")
	}
}

func TestScheduler_EffectsDoNotBlockEachOther(t *testing.T) {
	s := newStarted(t)
	defer s.Stop()

	release := make(chan struct{})
	s.Schedule(0, func(context.Context) {
		<-release
	})

	fired := make(chan struct{})
	s.Schedule(10*time.Millisecond, func(context.Context) {
		close(fired)
	})

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("second effect was blocked by the first")
	}
	close(release)
}

func TestScheduler_StopDropsRegularAndRunsCritical(t *testing.T) {
	s := newStarted(t)

	var regular, critical atomic.Int32
	s.Schedule(time.Hour, func(context.Context) {
		regular.Add(1)
	})
	s.ScheduleCritical(time.Hour, func(context.Context) {
		critical.Add(1)
	})
	assert.Equal(t, 2, s.Pending())

	require.NoError(t, s.Stop())
	assert.Equal(t, int32(0), regular.Load())
	assert.Equal(t, int32(1), critical.Load())
	assert.Equal(t, 0, s.Pending())
}

func TestScheduler_NotRunning(t *testing.T) {
	s := New(zerolog.Nop())

	var ran atomic.Int32
	assert.False(t, s.Schedule(0, func(context.Context) {
		ran.Add(1)
	}))
	assert.Equal(t, int32(0), ran.Load())

	// critical effects are never lost
	assert.False(t, s.ScheduleCritical(time.Hour, func(context.Context) {
		ran.Add(1)
	}))
	assert.Equal(t, int32(1), ran.Load())
}

func TestScheduler_RecoversPanics(t *testing.T) {
	s := newStarted(t)

	done := make(chan struct{})
	s.Schedule(0, func(context.Context) {
		panic("boom")
	})
	s.Schedule(20*time.Millisecond, func(context.Context) {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not survive a panicking effect")
	}
	assert.NoError(t, s.Stop())
}

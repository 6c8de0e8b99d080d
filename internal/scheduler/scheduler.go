// Package scheduler runs deferred one-shot effects such as pin reverts.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Effect is the work run once its delay elapsed. ctx is cancelled when the
// scheduler stops.
type Effect func(ctx context.Context)

// Scheduler runs each effect in its own goroutine after its delay, so effects
// never block the caller or each other.
type Scheduler struct {
	logger  zerolog.Logger
	pending atomic.Int64

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a stopped scheduler.
func New(logger zerolog.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// Start enables scheduling.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		s.logger.Warn().Msg("Scheduler is already running")
		return errors.New("scheduler is already running")
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.logger.Info().Msg("Scheduler started successfully")
	return nil
}

// Stop drops pending regular effects, runs pending critical effects right
// away and waits for every running effect to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.ctx == nil {
		s.mu.Unlock()
		s.logger.Warn().Msg("Scheduler is not running")
		return errors.New("scheduler is not running")
	}
	s.cancel()
	s.ctx = nil
	s.cancel = nil
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("Scheduler stopped successfully")
	return nil
}

// Schedule runs effect after the delay. It returns false if the scheduler is
// not running, in which case the effect is discarded.
func (s *Scheduler) Schedule(after time.Duration, effect Effect) bool {
	return s.schedule(after, effect, false)
}

// ScheduleCritical is like Schedule but the effect is never discarded: it
// runs early when the scheduler stops, and immediately when it is not running.
func (s *Scheduler) ScheduleCritical(after time.Duration, effect Effect) bool {
	return s.schedule(after, effect, true)
}

// Pending returns the number of effects waiting or running.
func (s *Scheduler) Pending() int {
	return int(s.pending.Load())
}

func (s *Scheduler) schedule(after time.Duration, effect Effect, critical bool) bool {
	s.mu.Lock()
	ctx := s.ctx
	if ctx == nil {
		s.mu.Unlock()
		if critical {
			s.logger.Warn().Msg("Scheduler not running, running critical effect now")
			done, cancel := context.WithCancel(context.Background())
			cancel()
			s.run(done, effect)
		}
		return false
	}
	s.wg.Add(1)
	s.pending.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.pending.Add(-1)

		timer := time.NewTimer(after)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			if !critical {
				return
			}
		}
		s.run(ctx, effect)
	}()
	return true
}

func (s *Scheduler) run(ctx context.Context, effect Effect) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("Scheduled effect panicked")
		}
	}()
	effect(ctx)
}

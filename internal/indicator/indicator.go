// Package indicator drives the status LED: a slow heartbeat while the device
// is idle, suspended whenever a foreground blink is running.
package indicator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benmeehan/gpio-agent/internal/hal"
	"github.com/rs/zerolog"
)

// Mode is the state of the indicator.
type Mode int

const (
	// Idle shows the slow heartbeat.
	Idle Mode = iota
	// Active means at least one foreground blink owns the LED.
	Active
)

func (m Mode) String() string {
	if m == Active {
		return "active"
	}
	return "idle"
}

// Config holds the blink cadences.
type Config struct {
	IdleOn    time.Duration
	IdleOff   time.Duration
	ActiveOn  time.Duration
	ActiveOff time.Duration
}

// Indicator coordinates the idle heartbeat with foreground blinks. The idle
// loop only drives the LED while no foreground user holds it.
type Indicator struct {
	led    hal.LED
	cfg    Config
	logger zerolog.Logger

	mu        sync.Mutex
	suspended int
	quiet     int
	wake      chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an indicator for led.
func New(led hal.LED, cfg Config, logger zerolog.Logger) *Indicator {
	return &Indicator{
		led:    led,
		cfg:    cfg,
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
}

// Start launches the idle heartbeat loop.
func (in *Indicator) Start() error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.ctx != nil {
		in.logger.Warn().Msg("Indicator is already running")
		return errors.New("indicator is already running")
	}
	in.ctx, in.cancel = context.WithCancel(context.Background())

	in.wg.Add(1)
	go func(ctx context.Context) {
		defer in.wg.Done()
		in.runIdleLoop(ctx)
	}(in.ctx)

	in.logger.Info().Msg("Indicator started successfully")
	return nil
}

// Stop ends the idle loop and leaves the LED off.
func (in *Indicator) Stop() error {
	in.mu.Lock()
	if in.ctx == nil {
		in.mu.Unlock()
		in.logger.Warn().Msg("Indicator is not running")
		return errors.New("indicator is not running")
	}
	in.cancel()
	in.ctx = nil
	in.cancel = nil
	in.mu.Unlock()

	in.wg.Wait()
	in.logger.Info().Msg("Indicator stopped successfully")
	return nil
}

// Suspend pauses the idle heartbeat. Calls nest; each needs a Resume.
func (in *Indicator) Suspend() {
	in.mu.Lock()
	in.suspended++
	in.mu.Unlock()
	in.notify()
}

// Resume undoes one Suspend.
func (in *Indicator) Resume() {
	in.mu.Lock()
	if in.suspended > 0 {
		in.suspended--
	}
	in.mu.Unlock()
	in.notify()
}

// Quiet keeps the LED dark until the returned function is called. Blinks
// keep their timing but cannot turn the LED on. Calls nest.
func (in *Indicator) Quiet() (restore func()) {
	in.mu.Lock()
	in.quiet++
	in.mu.Unlock()
	in.set(false)

	var once sync.Once
	return func() {
		once.Do(func() {
			in.mu.Lock()
			in.quiet--
			in.mu.Unlock()
		})
	}
}

// Mode reports whether a foreground user currently holds the LED.
func (in *Indicator) Mode() Mode {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.suspended > 0 {
		return Active
	}
	return Idle
}

// Blink runs n on/off cycles in the foreground. n <= 0 blinks until ctx is
// done. The idle heartbeat is suspended first and resumed on every return path.
func (in *Indicator) Blink(ctx context.Context, on, off time.Duration, n int) error {
	in.Suspend()
	defer in.Resume()
	return in.cycle(ctx, on, off, n)
}

// Activate starts the fast connection blink and returns the function that
// ends it. The idle heartbeat is suspended before Activate returns; release
// waits for the blink to finish and may be called more than once.
func (in *Indicator) Activate(ctx context.Context) (release func()) {
	ctx, cancel := context.WithCancel(ctx)
	in.Suspend()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer in.Resume()
		_ = in.cycle(ctx, in.cfg.ActiveOn, in.cfg.ActiveOff, 0)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

func (in *Indicator) cycle(ctx context.Context, on, off time.Duration, n int) error {
	defer in.set(false)
	for i := 0; n <= 0 || i < n; i++ {
		in.set(true)
		if err := sleep(ctx, on); err != nil {
			return err
		}
		in.set(false)
		if err := sleep(ctx, off); err != nil {
			return err
		}
	}
	return nil
}

func (in *Indicator) runIdleLoop(ctx context.Context) {
	defer in.set(false)

	for {
		if in.Mode() == Active {
			select {
			case <-ctx.Done():
				return
			case <-in.wake:
				continue
			}
		}

		in.set(true)
		if done, woke := in.wait(ctx, in.cfg.IdleOn); done {
			return
		} else if woke {
			in.set(false)
			continue
		}
		in.set(false)
		if done, _ := in.wait(ctx, in.cfg.IdleOff); done {
			return
		}
	}
}

// wait sleeps for d. It returns done when ctx ended and woke when the
// suspend state changed before d elapsed.
func (in *Indicator) wait(ctx context.Context, d time.Duration) (done, woke bool) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return true, false
	case <-in.wake:
		return false, true
	case <-timer.C:
		return false, false
	}
}

func (in *Indicator) notify() {
	select {
	case in.wake <- struct{}{}:
	default:
	}
}

func (in *Indicator) set(on bool) {
	in.mu.Lock()
	quiet := in.quiet > 0
	in.mu.Unlock()

	var err error
	if on {
		if quiet {
			return
		}
		err = in.led.LEDOn()
	} else {
		err = in.led.LEDOff()
	}
	if err != nil {
		in.logger.Warn().Err(err).Bool("on", on).Msg("Failed to drive status LED")
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

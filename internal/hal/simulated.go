package hal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DriverSimulated is the name of the in-memory driver.
const DriverSimulated = "simulated"

// Counters records how often each driver operation was called.
type Counters struct {
	Configure int
	Write     int
	Read      int
	LEDOn     int
	LEDOff    int
	Sleep     int
	Reset     int
}

type simPin struct {
	mode  Mode
	value int
}

// Simulated keeps pin levels in memory. It is safe for concurrent use and
// reports host diagnostics through its InfoSource.
type Simulated struct {
	mu       sync.Mutex
	pins     map[int]*simPin
	led      bool
	counters Counters
	onReset  func(soft bool)

	info   InfoSource
	logger zerolog.Logger
}

// NewSimulated creates a simulated board. info may be nil.
func NewSimulated(info InfoSource, logger zerolog.Logger) *Simulated {
	return &Simulated{
		pins:   make(map[int]*simPin),
		info:   info,
		logger: logger,
	}
}

// OnReset registers the function invoked by Reset.
func (s *Simulated) OnReset(fn func(soft bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReset = fn
}

func (s *Simulated) Configure(pin int, mode Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.Configure++

	if pin < 0 {
		return fmt.Errorf("invalid pin %d", pin)
	}
	p, ok := s.pins[pin]
	if !ok {
		p = &simPin{}
		s.pins[pin] = p
	}
	p.mode = mode
	return nil
}

func (s *Simulated) Write(pin, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.Write++

	p, ok := s.pins[pin]
	if !ok {
		return fmt.Errorf("pin %d not configured", pin)
	}
	if p.mode != ModeOutput {
		return fmt.Errorf("pin %d is configured as %s", pin, p.mode)
	}
	p.value = value
	return nil
}

func (s *Simulated) Read(pin int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.Read++

	p, ok := s.pins[pin]
	if !ok {
		return 0, fmt.Errorf("pin %d not configured", pin)
	}
	return p.value, nil
}

// SetInput drives the level seen on an input pin.
func (s *Simulated) SetInput(pin, value int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pins[pin]; ok {
		p.value = value
	}
}

func (s *Simulated) LEDOn() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.LEDOn++
	s.led = true
	return nil
}

func (s *Simulated) LEDOff() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.LEDOff++
	s.led = false
	return nil
}

// LEDState reports whether the status LED is lit.
func (s *Simulated) LEDState() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.led
}

// Counters returns a snapshot of the call counters.
func (s *Simulated) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

func (s *Simulated) DeviceInfo(ctx context.Context) (map[string]any, error) {
	out := map[string]any{"board": DriverSimulated}
	if s.info != nil {
		for k, v := range s.info.Collect(ctx) {
			out[k] = v
		}
	}
	return out, nil
}

func (s *Simulated) Sleep(ctx context.Context, d time.Duration, deep bool) error {
	s.mu.Lock()
	s.counters.Sleep++
	s.mu.Unlock()

	s.logger.Info().Dur("duration", d).Bool("deep", deep).Msg("Entering simulated sleep")
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		s.logger.Info().Msg("Woke up from simulated sleep")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Simulated) Reset(soft bool) error {
	s.mu.Lock()
	s.counters.Reset++
	s.pins = make(map[int]*simPin)
	s.led = false
	fn := s.onReset
	s.mu.Unlock()

	s.logger.Warn().Bool("soft", soft).Msg("Resetting simulated board")
	if fn != nil {
		fn(soft)
	}
	return nil
}

// Package pins tracks the configuration of every pin the device was asked to
// set up and serializes all access to the pin driver.
package pins

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/benmeehan/gpio-agent/internal/hal"
	"github.com/benmeehan/gpio-agent/internal/protocol"
	"github.com/rs/zerolog"
)

// ErrNotSetup is wrapped by errors for pins that were never set up.
var ErrNotSetup = errors.New("not setup")

// State is the record kept for a pin.
type State struct {
	Mode       hal.Mode `json:"mode"`
	Configured bool     `json:"configured"`

	// generation increases on every write so a stale revert can detect it
	// has been superseded.
	generation uint64
}

// Table owns the pin states. Every operation holds the same lock, so a
// read-compare-write sequence cannot interleave with another connection.
type Table struct {
	mu     sync.Mutex
	driver hal.Pins
	states map[int]*State
	logger zerolog.Logger
}

// NewTable creates an empty table in front of driver.
func NewTable(driver hal.Pins, logger zerolog.Logger) *Table {
	return &Table{
		driver: driver,
		states: make(map[int]*State),
		logger: logger,
	}
}

// Setup configures pin for mode. Re-configuring a pin supersedes any pending
// revert on it.
func (t *Table) Setup(pin int, mode hal.Mode) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.driver.Configure(pin, mode); err != nil {
		return protocol.Errorf(protocol.KindHardware, "setup pin %d: %w", pin, err)
	}

	st, ok := t.states[pin]
	if !ok {
		st = &State{}
		t.states[pin] = st
	}
	st.Mode = mode
	st.Configured = true
	st.generation++

	t.logger.Debug().Int("pin", pin).Str("mode", string(mode)).Msg("Pin configured")
	return nil
}

// Write sets an output pin.
func (t *Table) Write(pin, value int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, err := t.output(pin, value)
	if err != nil {
		return err
	}
	_, err = t.write(pin, value, st)
	return err
}

// Read returns the current level of a pin.
func (t *Table) Read(pin int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.lookup(pin); err != nil {
		return 0, err
	}
	return t.read(pin)
}

// WriteIfChanged writes value unless the pin already holds it. It returns
// whether a write happened and the generation that write created.
func (t *Table) WriteIfChanged(pin, value int) (bool, uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, err := t.output(pin, value)
	if err != nil {
		return false, 0, err
	}

	current, err := t.read(pin)
	if err != nil {
		return false, 0, err
	}
	if current == value {
		return false, st.generation, nil
	}

	gen, err := t.write(pin, value, st)
	if err != nil {
		return false, 0, err
	}
	return true, gen, nil
}

// Revert writes value only if no write or setup touched the pin since the
// write that produced gen. It reports whether the revert was applied.
func (t *Table) Revert(pin, value int, gen uint64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[pin]
	if !ok || st.generation != gen {
		return false, nil
	}
	if _, err := t.write(pin, value, st); err != nil {
		return false, err
	}
	return true, nil
}

// State returns the record of pin.
func (t *Table) State(pin int) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[pin]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// Pins returns the configured pin numbers in ascending order.
func (t *Table) Pins() []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]int, 0, len(t.states))
	for pin := range t.states {
		out = append(out, pin)
	}
	sort.Ints(out)
	return out
}

func (t *Table) lookup(pin int) (*State, error) {
	st, ok := t.states[pin]
	if !ok || !st.Configured {
		return nil, protocol.Errorf(protocol.KindHardware, "pin %d %w", pin, ErrNotSetup)
	}
	return st, nil
}

func (t *Table) output(pin, value int) (*State, error) {
	if value != 0 && value != 1 {
		return nil, protocol.Errorf(protocol.KindValidation, "invalid value %d for pin %d, expected 0 or 1", value, pin)
	}
	st, err := t.lookup(pin)
	if err != nil {
		return nil, err
	}
	if st.Mode != hal.ModeOutput {
		return nil, protocol.Errorf(protocol.KindHardware, "pin %d is configured as %s", pin, st.Mode)
	}
	return st, nil
}

func (t *Table) read(pin int) (int, error) {
	v, err := t.driver.Read(pin)
	if err != nil {
		return 0, protocol.Errorf(protocol.KindHardware, "read pin %d: %w", pin, err)
	}
	return v, nil
}

func (t *Table) write(pin, value int, st *State) (uint64, error) {
	if err := t.driver.Write(pin, value); err != nil {
		return 0, protocol.Errorf(protocol.KindHardware, "write pin %d: %w", pin, err)
	}
	st.generation++
	t.logger.Debug().Int("pin", pin).Int("value", value).Msg("Pin written")
	return st.generation, nil
}

// String is used in log fields.
func (s State) String() string {
	return fmt.Sprintf("%s(configured=%t)", s.Mode, s.Configured)
}

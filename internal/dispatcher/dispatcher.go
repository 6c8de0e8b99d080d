// Package dispatcher executes protocol commands against the device.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/benmeehan/gpio-agent/internal/hal"
	"github.com/benmeehan/gpio-agent/internal/protocol"
	"github.com/benmeehan/gpio-agent/internal/scheduler"
	"github.com/benmeehan/gpio-agent/internal/utils"
	"github.com/rs/zerolog"
)

// Action is the closed set of operations a command can request.
type Action string

const (
	ActionSetupPin    Action = "setup_pin"
	ActionWritePin    Action = "write_pin"
	ActionReadPin     Action = "read_pin"
	ActionPing        Action = "ping"
	ActionReset       Action = "reset"
	ActionGetVersion  Action = "get_version"
	ActionGetInfo     Action = "get_info"
	ActionSleep       Action = "sleep"
	ActionListActions Action = "list_actions"
	ActionBlink       Action = "blink"
)

// PinTable is the exclusive path to pin state.
type PinTable interface {
	Setup(pin int, mode hal.Mode) error
	Write(pin, value int) error
	Read(pin int) (int, error)
	WriteIfChanged(pin, value int) (bool, uint64, error)
	Revert(pin, value int, gen uint64) (bool, error)
}

// Scheduler defers effects without blocking the dispatcher.
type Scheduler interface {
	Schedule(after time.Duration, effect scheduler.Effect) bool
	ScheduleCritical(after time.Duration, effect scheduler.Effect) bool
}

// StatusIndicator is the part of the status LED coordinator actions use.
type StatusIndicator interface {
	Blink(ctx context.Context, on, off time.Duration, n int) error
	Suspend()
	Resume()
	Quiet() (restore func())
}

// Diagnostics adds agent level fields to get_info.
type Diagnostics interface {
	Diagnostics() map[string]any
}

// Config holds the action timings.
type Config struct {
	ResetDelay time.Duration
	SleepDelay time.Duration
	MaxBlink   time.Duration
}

type handlerFunc func(ctx context.Context, args Args, resp *protocol.Response) error

type actionEntry struct {
	required []Field
	optional []Field
	handle   handlerFunc
}

// Dispatcher maps action names to handlers. The table is built once in New
// and list_actions is derived from it.
type Dispatcher struct {
	cfg         Config
	hw          hal.Hardware
	pins        PinTable
	scheduler   Scheduler
	indicator   StatusIndicator
	diagnostics Diagnostics
	logger      zerolog.Logger
	now         func() time.Time

	actions map[Action]actionEntry
	names   []string
}

// New builds a dispatcher. diagnostics may be nil.
func New(cfg Config, hw hal.Hardware, pins PinTable, sched Scheduler, indicator StatusIndicator,
	diagnostics Diagnostics, logger zerolog.Logger) *Dispatcher {

	d := &Dispatcher{
		cfg:         cfg,
		hw:          hw,
		pins:        pins,
		scheduler:   sched,
		indicator:   indicator,
		diagnostics: diagnostics,
		logger:      logger,
		now:         time.Now,
	}

	d.actions = map[Action]actionEntry{
		ActionSetupPin: {
			required: []Field{{"pin", TypeInt}, {"mode", TypeString}},
			optional: []Field{{"value", TypeInt}},
			handle:   d.setupPin,
		},
		ActionWritePin: {
			required: []Field{{"pin", TypeInt}, {"value", TypeInt}, {"timeout", TypeFloat}},
			handle:   d.writePin,
		},
		ActionReadPin: {
			required: []Field{{"pin", TypeInt}},
			handle:   d.readPin,
		},
		ActionPing: {
			handle: d.ping,
		},
		ActionReset: {
			optional: []Field{{"soft", TypeBool}},
			handle:   d.reset,
		},
		ActionGetVersion: {
			handle: d.getVersion,
		},
		ActionGetInfo: {
			handle: d.getInfo,
		},
		ActionSleep: {
			required: []Field{{"time_ms", TypeInt}, {"deep", TypeBool}},
			handle:   d.sleep,
		},
		ActionListActions: {
			handle: d.listActions,
		},
		ActionBlink: {
			optional: []Field{{"duration", TypeFloat}, {"n", TypeInt}, {"dt", TypeFloat}},
			handle:   d.blink,
		},
	}

	names := make(map[string]struct{}, len(d.actions))
	for a := range d.actions {
		names[string(a)] = struct{}{}
	}
	d.names = utils.SortedKeys(names)

	return d
}

// Actions returns the supported action names in sorted order.
func (d *Dispatcher) Actions() []string {
	return append([]string(nil), d.names...)
}

// Dispatch decodes one raw request, executes it and returns the serialized
// response. It never fails: every error becomes an error response.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) []byte {
	resp := d.Handle(ctx, raw)

	out, err := json.Marshal(resp)
	if err != nil {
		d.logger.Error().Err(err).Msg("Failed to serialize response")
		out, _ = json.Marshal(protocol.ErrorResponse(protocol.Errorf(protocol.KindInternal, "failed to serialize response: %w", err)))
	}
	return out
}

// Handle decodes and executes a raw request.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte) *protocol.Response {
	cmd, err := protocol.DecodeCommand(raw)
	if err != nil {
		d.logger.Warn().Err(err).Int("size", len(raw)).Msg("Failed to decode command")
		return protocol.ErrorResponse(err)
	}
	return d.Execute(ctx, cmd)
}

// Execute runs a decoded command. The response echoes cmd, carries
// time_received and either the action results or the error pair.
func (d *Dispatcher) Execute(ctx context.Context, cmd protocol.Command) *protocol.Response {
	resp := protocol.NewResponse(cmd)
	resp.Set(protocol.FieldTimeReceived, d.now().UnixNano())

	name := actionName(cmd)
	if err := d.execute(ctx, name, cmd, resp); err != nil {
		d.logger.Warn().Err(err).Str("action", name).Str("exception", string(protocol.KindOf(err))).Msg("Command failed")
		resp.Fail(err)
		return resp
	}

	d.logger.Debug().Str("action", name).Msg("Command executed")
	return resp
}

func (d *Dispatcher) execute(ctx context.Context, name string, cmd protocol.Command, resp *protocol.Response) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = protocol.Errorf(protocol.KindInternal, "action %s panicked: %v", name, r)
		}
	}()

	entry, ok := d.actions[Action(name)]
	if !ok {
		return protocol.Errorf(protocol.KindUnknownAction,
			"unknown action %q, use %q to list available actions", name, ActionListActions)
	}

	args, err := validate(cmd, entry.required, entry.optional)
	if err != nil {
		return err
	}
	return entry.handle(ctx, args, resp)
}

func actionName(cmd protocol.Command) string {
	if name, ok := cmd.Action(); ok {
		return name
	}
	if raw, ok := cmd[protocol.FieldAction]; ok && raw != nil {
		return fmt.Sprint(raw)
	}
	return ""
}

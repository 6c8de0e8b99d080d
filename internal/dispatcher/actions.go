package dispatcher

import (
	"context"
	"math"
	"time"

	"github.com/benmeehan/gpio-agent/internal/constants"
	"github.com/benmeehan/gpio-agent/internal/hal"
	"github.com/benmeehan/gpio-agent/internal/protocol"
)

func (d *Dispatcher) setupPin(ctx context.Context, args Args, resp *protocol.Response) error {
	pin := args.Int("pin")
	mode, err := hal.ParseMode(args.String("mode"))
	if err != nil {
		return protocol.Wrap(protocol.KindValidation, err)
	}

	if err := d.pins.Setup(pin, mode); err != nil {
		return err
	}

	// optionally set pin value
	if args.Has("value") {
		return d.pins.Write(pin, args.Int("value"))
	}
	return nil
}

func (d *Dispatcher) writePin(ctx context.Context, args Args, resp *protocol.Response) error {
	pin, value := args.Int("pin"), args.Int("value")
	timeout := args.Float("timeout")
	if timeout < 0 || timeout > maxSeconds {
		return protocol.Errorf(protocol.KindValidation, "timeout must be between 0 and %.0f, got %v", maxSeconds, timeout)
	}

	written, gen, err := d.pins.WriteIfChanged(pin, value)
	if err != nil {
		return err
	}
	if !written {
		return nil
	}

	revert := 1 - value
	ok := d.scheduler.ScheduleCritical(seconds(timeout), func(context.Context) {
		applied, err := d.pins.Revert(pin, revert, gen)
		switch {
		case err != nil:
			d.logger.Error().Err(err).Int("pin", pin).Int("value", revert).Msg("Failed to reset pin after timeout")
		case applied:
			d.logger.Info().Int("pin", pin).Int("value", revert).Msg("Pin reset after timeout")
		default:
			d.logger.Debug().Int("pin", pin).Msg("Pending reset superseded by a later write")
		}
	})
	if !ok {
		return protocol.Errorf(protocol.KindInternal, "device is shutting down, pin %d reset to %d", pin, revert)
	}
	return nil
}

func (d *Dispatcher) readPin(ctx context.Context, args Args, resp *protocol.Response) error {
	value, err := d.pins.Read(args.Int("pin"))
	if err != nil {
		return err
	}
	resp.Set("value", value)
	return nil
}

func (d *Dispatcher) ping(ctx context.Context, args Args, resp *protocol.Response) error {
	return nil
}

func (d *Dispatcher) reset(ctx context.Context, args Args, resp *protocol.Response) error {
	soft := args.Bool("soft")
	// reset after some time to allow response to be sent
	ok := d.scheduler.Schedule(d.cfg.ResetDelay, func(context.Context) {
		if err := d.hw.Reset(soft); err != nil {
			d.logger.Error().Err(err).Bool("soft", soft).Msg("Failed to reset device")
		}
	})
	if !ok {
		return protocol.Errorf(protocol.KindInternal, "device is shutting down")
	}
	return nil
}

func (d *Dispatcher) sleep(ctx context.Context, args Args, resp *protocol.Response) error {
	timeMs, deep := args.Int("time_ms"), args.Bool("deep")
	if timeMs < 0 {
		return protocol.Errorf(protocol.KindValidation, "time_ms must not be negative, got %d", timeMs)
	}

	// sleep after some time to allow response to be sent
	ok := d.scheduler.Schedule(d.cfg.SleepDelay, func(ctx context.Context) {
		d.indicator.Suspend()
		defer d.indicator.Resume()
		// connection blinks stay dark while asleep
		restore := d.indicator.Quiet()
		defer restore()
		if err := d.hw.Sleep(ctx, time.Duration(timeMs)*time.Millisecond, deep); err != nil {
			d.logger.Error().Err(err).Int("time_ms", timeMs).Bool("deep", deep).Msg("Sleep interrupted")
		}
	})
	if !ok {
		return protocol.Errorf(protocol.KindInternal, "device is shutting down")
	}
	return nil
}

func (d *Dispatcher) getVersion(ctx context.Context, args Args, resp *protocol.Response) error {
	resp.Set("version", protocol.Version)
	return nil
}

func (d *Dispatcher) getInfo(ctx context.Context, args Args, resp *protocol.Response) error {
	info, err := d.hw.DeviceInfo(ctx)
	if err != nil {
		return protocol.Errorf(protocol.KindHardware, "device info: %w", err)
	}
	if info == nil {
		info = make(map[string]any)
	}
	if d.diagnostics != nil {
		for k, v := range d.diagnostics.Diagnostics() {
			info[k] = v
		}
	}
	resp.Set("info", info)
	return nil
}

func (d *Dispatcher) listActions(ctx context.Context, args Args, resp *protocol.Response) error {
	resp.Set("actions", d.Actions())
	return nil
}

func (d *Dispatcher) blink(ctx context.Context, args Args, resp *protocol.Response) error {
	on, n, off := constants.DefaultBlinkDuration, constants.DefaultBlinkCount, constants.DefaultBlinkGap
	var onSec, offSec float64
	if args.Has("duration") {
		onSec = args.Float("duration")
	}
	if args.Has("dt") {
		offSec = args.Float("dt")
	}
	if onSec < 0 || offSec < 0 || onSec > maxSeconds || offSec > maxSeconds {
		return protocol.Errorf(protocol.KindValidation, "blink duration and dt must be between 0 and %.0f", maxSeconds)
	}
	if args.Has("duration") {
		on = seconds(onSec)
	}
	if args.Has("dt") {
		off = seconds(offSec)
	}
	if args.Has("n") {
		n = args.Int("n")
	}

	if n < 1 || n > constants.MaxBlinkCount {
		return protocol.Errorf(protocol.KindValidation, "blink needs 1 <= n <= %d, got %d", constants.MaxBlinkCount, n)
	}
	if limit := d.cfg.MaxBlink; limit > 0 {
		if on > limit || off > limit || (on+off > 0 && time.Duration(n) > limit/(on+off)) {
			return protocol.Errorf(protocol.KindValidation, "blink of %d x (%s + %s) exceeds the %s limit", n, on, off, limit)
		}
	}

	return d.indicator.Blink(ctx, on, off, n)
}

// maxSeconds is the longest delay, in seconds, a time.Duration can hold.
var maxSeconds = math.Floor(float64(math.MaxInt64) / float64(time.Second))

// seconds converts s, already checked against maxSeconds.
func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

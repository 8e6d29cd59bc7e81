// Package control implements the camera settings control plane: validated
// updates with rollback, presets, reset and read-back.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/teslashibe/go-skycam/internal/log"
	"github.com/teslashibe/go-skycam/pkg/camera"
	"github.com/teslashibe/go-skycam/pkg/device"
	"github.com/teslashibe/go-skycam/pkg/metrics"
)

// Controller serializes settings changes against the device Guard.
type Controller struct {
	guard   *device.Guard
	presets *camera.Registry
	logger  *slog.Logger
	clock   clockwork.Clock

	mu       sync.RWMutex
	handlers []func(Event)
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithClock sets the clock used for event timestamps.
func WithClock(clk clockwork.Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// WithEventHandler registers fn to receive every Event.
func WithEventHandler(fn func(Event)) Option {
	return func(c *Controller) { c.handlers = append(c.handlers, fn) }
}

// New returns a Controller over guard using the given presets.
func New(guard *device.Guard, presets *camera.Registry, opts ...Option) *Controller {
	c := &Controller{guard: guard, presets: presets}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.Component("control")
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	return c
}

// OnEvent registers fn to receive every Event. Handlers run synchronously
// on the caller's goroutine after the device lock is released.
func (c *Controller) OnEvent(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
}

// Presets returns the preset registry.
func (c *Controller) Presets() *camera.Registry {
	return c.presets
}

// Update validates req and applies it. If the device rejects the change
// part way, the parameters it touched are restored from a snapshot taken
// in the same critical section. Cancelling ctx does not interrupt a
// change the device has started.
func (c *Controller) Update(ctx context.Context, req map[string]any) (Result, error) {
	if unknown := camera.UnknownKeys(req); len(unknown) > 0 {
		c.logger.Debug("ignoring unknown settings keys", "keys", unknown)
	}

	delta, err := camera.Validate(req)
	if err != nil {
		var verr *camera.ValidationError
		res := Result{Outcome: Rejected}
		if errors.As(err, &verr) {
			res.Reasons = verr.Reasons
		}
		c.logger.Info("settings rejected", "reasons", res.Reasons)
		c.emit(OpUpdate, res, err)
		return res, err
	}

	res := Result{Outcome: Applied, Params: delta}
	if delta.Empty() {
		c.emit(OpUpdate, res, nil)
		return res, nil
	}

	// Once the device is touched the transaction runs to completion,
	// revert included, even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	var applyErr *ApplyError
	txErr := c.guard.Transaction(func(d device.Device) error {
		snapshot, err := d.Read(ctx)
		if err != nil {
			applyErr = &ApplyError{Op: OpUpdate, Outcome: Failed, Err: fmt.Errorf("snapshot: %w", err)}
			return applyErr
		}

		if err := d.Apply(ctx, delta); err != nil {
			c.logger.Error("failed to apply camera settings", "params", delta.String(), "error", err)
			applyErr = &ApplyError{Op: OpUpdate, Outcome: Reverted, Err: err}

			revert := revertSet(snapshot, delta)
			if rerr := d.Apply(ctx, revert); rerr != nil {
				applyErr.Outcome = RevertFailed
				applyErr.RevertErr = rerr
				log.Critical(c.logger, "failed to revert camera settings, device state unknown",
					"params", revert.String(), "error", rerr)
				return applyErr
			}
			c.logger.Info("reverted to previous camera settings after error", "params", revert.String())
			return applyErr
		}
		return nil
	})

	if txErr != nil {
		if applyErr == nil {
			applyErr = &ApplyError{Op: OpUpdate, Outcome: Failed, Err: txErr}
		}
		res.Outcome = applyErr.Outcome
		c.emit(OpUpdate, res, applyErr)
		return res, applyErr
	}

	c.logger.Info("camera settings updated", "params", delta.String())
	c.emit(OpUpdate, res, nil)
	return res, nil
}

// revertSet returns the snapshot values for delta's params, with defaults
// standing in for params the device did not report.
func revertSet(snapshot, delta camera.ParameterSet) camera.ParameterSet {
	params := delta.Params()
	return camera.Defaults().Restrict(params).Merge(snapshot.Restrict(params))
}

// ApplyPreset applies a registered preset. Presets are checked at
// registry construction, so no snapshot or revert is taken.
func (c *Controller) ApplyPreset(ctx context.Context, name string) (Result, error) {
	set, ok := c.presets.Get(name)
	if !ok {
		res := Result{Outcome: UnknownPreset, Preset: name}
		err := fmt.Errorf("%w: %s", ErrUnknownPreset, name)
		c.emit(OpPreset, res, err)
		return res, err
	}

	res := Result{Outcome: Applied, Preset: name, Params: set}
	if err := c.guard.Apply(context.WithoutCancel(ctx), set); err != nil {
		c.logger.Error("failed to apply preset", "preset", name, "error", err)
		res.Outcome = Failed
		aerr := &ApplyError{Op: OpPreset, Outcome: Failed, Err: err}
		c.emit(OpPreset, res, aerr)
		return res, aerr
	}

	c.logger.Info("preset applied", "preset", name)
	c.emit(OpPreset, res, nil)
	return res, nil
}

// Reset applies the complete default parameter set.
func (c *Controller) Reset(ctx context.Context) (Result, error) {
	set := camera.Defaults()
	res := Result{Outcome: Applied, Params: set}
	if err := c.guard.Apply(context.WithoutCancel(ctx), set); err != nil {
		c.logger.Error("failed to reset camera settings", "error", err)
		res.Outcome = Failed
		aerr := &ApplyError{Op: OpReset, Outcome: Failed, Err: err}
		c.emit(OpReset, res, aerr)
		return res, aerr
	}

	c.logger.Info("camera settings reset to defaults")
	c.emit(OpReset, res, nil)
	return res, nil
}

// ReadCurrent returns the device's parameters with defaults filling any
// the device does not report.
func (c *Controller) ReadCurrent(ctx context.Context) (camera.ParameterSet, error) {
	got, err := c.guard.Read(ctx)
	if err != nil {
		return camera.ParameterSet{}, fmt.Errorf("read settings: %w", err)
	}
	return camera.Defaults().Merge(got), nil
}

func (c *Controller) emit(op Operation, res Result, err error) {
	metrics.SettingsTransactions.WithLabelValues(string(op), res.Outcome.String()).Inc()

	ev := Event{
		ID:        uuid.NewString(),
		Operation: op,
		Outcome:   res.Outcome,
		Preset:    res.Preset,
		Params:    res.Params,
		Reasons:   res.Reasons,
		At:        c.clock.Now(),
	}
	if err != nil {
		ev.Err = err.Error()
	}

	c.mu.RLock()
	handlers := slices.Clone(c.handlers)
	c.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
}

package engine

import (
	"context"

	"github.com/pkg/errors"

	"github.com/sheikhrachel/go-firesim/model"
)

// ErrInvalidSteps is returned when a run is requested with a negative step count
var ErrInvalidSteps = errors.New("step count must be non-negative")

// Observer receives each committed snapshot, starting with the initial grid at
// generation 0. Returning an error stops the run.
type Observer func(generation int, g *model.Grid) error

// Driver runs an engine for a fixed number of steps
type Driver struct {
	engine          *Engine
	stopWhenSettled bool
	observer        Observer
}

// DriverOption configures a Driver
type DriverOption func(*Driver)

// WithStopWhenSettled ends the run early once no cell is burning. Off by default,
// in which case every requested step is applied even after the fire is out.
func WithStopWhenSettled(stop bool) DriverOption {
	return func(d *Driver) { d.stopWhenSettled = stop }
}

// WithObserver registers a callback for every committed snapshot
func WithObserver(fn Observer) DriverOption {
	return func(d *Driver) { d.observer = fn }
}

func NewDriver(e *Engine, opts ...DriverOption) *Driver {
	d := &Driver{engine: e}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run applies Step exactly steps times, or fewer when stopping on a settled grid,
// and returns the final snapshot. steps == 0 returns the initial grid.
// On failure the last committed snapshot is returned alongside the error.
func (d *Driver) Run(ctx context.Context, steps int) (*model.Grid, error) {
	if steps < 0 {
		return nil, errors.Wrapf(ErrInvalidSteps, "[Run] steps=%d", steps)
	}

	if err := d.notify(); err != nil {
		return d.engine.Grid(), err
	}

	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return d.engine.Grid(), errors.Wrapf(err, "[Run] cancelled after %d of %d steps", i, steps)
		}
		if d.stopWhenSettled && d.engine.Settled() {
			d.engine.logger.Debug("grid settled, stopping early", "generation", d.engine.Generation(), "requested", steps)
			break
		}
		if err := d.engine.Step(ctx); err != nil {
			return d.engine.Grid(), errors.Wrapf(err, "[Run] step %d of %d", i+1, steps)
		}
		if err := d.notify(); err != nil {
			return d.engine.Grid(), err
		}
	}
	return d.engine.Grid(), nil
}

func (d *Driver) notify() error {
	if d.observer == nil {
		return nil
	}
	g := d.engine.Grid()
	return d.observer(d.engine.Generation(), g)
}

// Package engine advances a fire grid one synchronous step at a time,
// consulting an ignition oracle for cells next to the fire front.
package engine

import (
	"context"
	"io"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/sheikhrachel/go-firesim/env"
	"github.com/sheikhrachel/go-firesim/model"
	"github.com/sheikhrachel/go-firesim/oracle"
	"github.com/sheikhrachel/go-firesim/rules"
	"github.com/sheikhrachel/go-firesim/utils"
)

// Engine owns one grid and one environment for the lifetime of a run.
// Step and the snapshot accessors are safe to call from different goroutines;
// steps never overlap.
type Engine struct {
	mu         sync.Mutex
	grid       *model.Grid
	env        env.Environment
	oracle     oracle.Oracle
	pool       *model.GridPool
	workers    int
	generation int
	stats      *utils.Stats
	logger     *log.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithWorkers sets how many goroutines evaluate row bands in parallel.
// n <= 0 uses runtime.NumCPU(); 1 evaluates sequentially.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n <= 0 {
			n = runtime.NumCPU()
		}
		e.workers = n
	}
}

// WithPool recycles step buffers through p
func WithPool(p *model.GridPool) Option {
	return func(e *Engine) { e.pool = p }
}

// WithLogger sets the logger used for per-step debug output
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRunID tags the run statistics
func WithRunID(id string) Option {
	return func(e *Engine) { e.stats.RunID = id }
}

// New creates an engine with a rows x cols grid whose center cell is burning.
// The environment is copied and cannot change afterwards.
func New(rows, cols int, environment env.Environment, o oracle.Oracle, opts ...Option) (*Engine, error) {
	if o == nil {
		return nil, errors.Wrap(oracle.ErrUnavailable, "[engine.New]")
	}
	grid, err := model.NewIgnitedGrid(rows, cols)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		grid:    grid,
		env:     environment,
		oracle:  oracle.Checked(o),
		workers: runtime.NumCPU(),
		stats:   utils.NewStats(""),
		logger:  log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.stats.Census(grid.Count(model.Unburned), grid.Count(model.Burning), grid.Count(model.Burned))
	return e, nil
}

// Environment returns the run's environment
func (e *Engine) Environment() env.Environment {
	return e.env
}

// Grid returns a copy of the last committed snapshot
func (e *Engine) Grid() *model.Grid {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.grid.Clone()
}

// Generation returns the number of committed steps
func (e *Engine) Generation() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

// Settled reports whether the committed snapshot has no burning cell
func (e *Engine) Settled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.grid.Settled()
}

// Stats returns a copy of the run statistics so far
func (e *Engine) Stats() utils.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.stats
}

// Step computes the next snapshot entirely from the current one and commits it.
// If the oracle fails or ctx is done, the partial snapshot is discarded and the
// committed grid is left untouched.
func (e *Engine) Step(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.grid
	buf := model.BeginStep(prev, e.pool)

	var calls, ignitions atomic.Int64
	if lo, hi, ok := prev.ActiveRegion(); ok {
		if err := e.evaluate(ctx, buf, lo, hi, &calls, &ignitions); err != nil {
			buf.Discard()
			e.logger.Debug("step discarded", "generation", e.generation, "err", err)
			return err
		}
	} else if err := ctx.Err(); err != nil {
		buf.Discard()
		return errors.Wrap(err, "[Step]")
	}

	e.grid = buf.Commit()
	if e.pool != nil {
		e.pool.Put(prev)
	}
	e.generation++
	e.stats.Update(calls.Load(), ignitions.Load())
	e.stats.Census(e.grid.Count(model.Unburned), e.grid.Count(model.Burning), e.grid.Count(model.Burned))

	e.logger.Debug("step committed",
		"generation", e.generation,
		"oracle_calls", calls.Load(),
		"ignitions", ignitions.Load(),
		"burning", e.stats.Burning,
	)
	return nil
}

// evaluate resolves every cell inside [lo, hi] against buf.Prev(), splitting
// the rows into bands processed concurrently
func (e *Engine) evaluate(
	ctx context.Context,
	buf *model.NextBuffer,
	lo, hi model.Coord,
	calls, ignitions *atomic.Int64,
) error {
	var (
		prev          = buf.Prev()
		height        = hi.Row - lo.Row + 1
		numWorkers    = max(1, min(e.workers, height))
		rowsPerWorker = (height + numWorkers - 1) / numWorkers // Ceiling division
	)

	eg, egCtx := errgroup.WithContext(ctx)
	for i := range numWorkers {
		var (
			startRow = lo.Row + i*rowsPerWorker
			endRow   = min(startRow+rowsPerWorker, hi.Row+1)
		)
		if startRow > hi.Row {
			break
		}

		eg.Go(func() error {
			for r := startRow; r < endRow; r++ {
				if err := egCtx.Err(); err != nil {
					return errors.Wrap(err, "[Step]")
				}
				for c := lo.Col; c <= hi.Col; c++ {
					state := prev.Get(r, c)
					next, err := rules.ApplyFireRules(
						state,
						state == model.Unburned && prev.HasBurningNeighbor(r, c),
						func() (float64, error) {
							calls.Add(1)
							return e.oracle.Probability(egCtx, env.NewFeatureVector(r, c, e.env))
						},
					)
					if err != nil {
						return errors.Wrapf(err, "[Step] cell (%d,%d)", r, c)
					}
					if next == state {
						continue
					}
					if next == model.Burning {
						ignitions.Add(1)
					}
					buf.Set(r, c, next)
				}
			}
			return nil
		})
	}

	return eg.Wait()
}

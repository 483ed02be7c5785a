package engine

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/sheikhrachel/go-firesim/env"
	"github.com/sheikhrachel/go-firesim/model"
	"github.com/sheikhrachel/go-firesim/oracle"
	"github.com/sheikhrachel/go-firesim/utils"
)

// Params describes one simulation run
type Params struct {
	Rows            int
	Cols            int
	Steps           int
	Env             env.Environment
	StopWhenSettled bool
	Workers         int
}

// Result is the outcome of a simulation run
type Result struct {
	RunID    string
	Grid     *model.Grid
	StepsRun int
	Stats    utils.Stats
}

// Simulate builds an engine for p, runs it and returns the final grid.
// A shared pool may be passed to recycle buffers across runs.
func Simulate(
	ctx context.Context,
	o oracle.Oracle,
	p Params,
	pool *model.GridPool,
	logger *log.Logger,
	observer Observer,
) (Result, error) {
	runID := uuid.NewString()
	if logger != nil {
		logger = logger.With("run", runID)
	}

	e, err := New(p.Rows, p.Cols, p.Env, o,
		WithWorkers(p.Workers),
		WithPool(pool),
		WithLogger(logger),
		WithRunID(runID),
	)
	if err != nil {
		return Result{RunID: runID}, err
	}

	d := NewDriver(e, WithStopWhenSettled(p.StopWhenSettled), WithObserver(observer))
	grid, err := d.Run(ctx, p.Steps)
	res := Result{
		RunID:    runID,
		Grid:     grid,
		StepsRun: e.Generation(),
		Stats:    e.Stats(),
	}
	return res, err
}

package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/sheikhrachel/go-firesim/engine"
	"github.com/sheikhrachel/go-firesim/env"
	"github.com/sheikhrachel/go-firesim/model"
	"github.com/sheikhrachel/go-firesim/oracle"
	"github.com/sheikhrachel/go-firesim/server"
	"github.com/sheikhrachel/go-firesim/utils"
)

type simulateOptions struct {
	rows, cols, steps int
	settle            bool
	workers           int
	constProb         float64
	envData           string
}

// loadOracle loads the configured model once. The error is a *oracle.ConfigurationError.
func loadOracle(config utils.Config, logger *log.Logger) (oracle.Oracle, error) {
	m, err := oracle.LoadLogistic(config.Oracle.ModelPath)
	if err != nil {
		return nil, err
	}
	logger.Info("ML model loaded successfully", "path", config.Oracle.ModelPath, "name", m.Name())
	return m, nil
}

// runServe starts the API. A model that fails to load is logged once and the
// server keeps running in degraded mode.
func runServe(ctx context.Context, config utils.Config, logger *log.Logger) error {
	o, err := loadOracle(config, logger)
	if err != nil {
		logger.Error("failed to load model, prediction and simulation disabled", "err", err)
	}
	return server.New(config, o, err, logger).Serve(ctx)
}

// runSimulate runs one simulation locally and writes the final grid to out
func runSimulate(
	ctx context.Context,
	config utils.Config,
	logger *log.Logger,
	opts simulateOptions,
	out io.Writer,
) error {
	var o oracle.Oracle
	if opts.constProb >= 0 {
		o = oracle.Constant(opts.constProb)
	} else {
		var err error
		if o, err = loadOracle(config, logger); err != nil {
			return err
		}
	}

	overrides, err := parseKeyValues(opts.envData)
	if err != nil {
		return err
	}
	environment, err := env.Defaults().With(overrides)
	if err != nil {
		return err
	}

	params := engine.Params{
		Rows:            firstPositive(opts.rows, config.Simulation.DefaultRows),
		Cols:            firstPositive(opts.cols, config.Simulation.DefaultCols),
		Steps:           config.Simulation.DefaultSteps,
		Env:             environment,
		StopWhenSettled: opts.settle || config.Simulation.StopWhenSettled,
		Workers:         firstPositive(opts.workers, config.Simulation.Workers),
	}
	if opts.steps >= 0 {
		params.Steps = opts.steps
	}
	displayRunInfo(logger, params)

	var pool *model.GridPool
	if config.Simulation.UseMemoryPool {
		pool = model.NewGridPool()
	}
	res, err := engine.Simulate(ctx, o, params, pool, logger, nil)
	if err != nil {
		return err
	}

	displayRunStats(logger, res)
	return model.WriteText(out, res.Grid)
}

// runPredict scores one feature vector given as key=value pairs
func runPredict(
	ctx context.Context,
	config utils.Config,
	logger *log.Logger,
	features string,
	out io.Writer,
) error {
	data, err := parseKeyValues(features)
	if err != nil {
		return err
	}
	fv, err := env.ParseFeatureVector(data)
	if err != nil {
		return err
	}
	o, err := loadOracle(config, logger)
	if err != nil {
		return err
	}
	pred, err := oracle.Predict(ctx, o, fv)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "fire_risk_class=%d fire_risk_prob=%.4f\n", pred.Class, pred.Probability)
	return err
}

// parseKeyValues splits "a=1,b=2" into a map of raw string values.
// Values are left as strings so they go through the same numeric parsing as HTTP payloads.
func parseKeyValues(s string) (map[string]any, error) {
	out := map[string]any{}
	s = strings.TrimSpace(s)
	if s == "" {
		return out, nil
	}
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, errors.Errorf("[parseKeyValues] malformed pair %q, want key=value", pair)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

func firstPositive(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// displayRunInfo shows the run parameters before the first step
func displayRunInfo(logger *log.Logger, p engine.Params) {
	logger.Info("starting simulation",
		"grid", fmt.Sprintf("%dx%d", p.Rows, p.Cols),
		"steps", p.Steps,
		"stop_when_settled", p.StopWhenSettled,
		"env", p.Env.Map(),
	)
}

// displayRunStats shows the final census and oracle usage
func displayRunStats(logger *log.Logger, res engine.Result) {
	logger.Info("simulation finished",
		"run", res.RunID,
		"steps", res.StepsRun,
		"unburned", res.Stats.Unburned,
		"burning", res.Stats.Burning,
		"burned", res.Stats.Burned,
		"oracle_calls", res.Stats.OracleCalls,
		"steps_per_sec", fmt.Sprintf("%.1f", res.Stats.StepsPerSecond),
	)
}

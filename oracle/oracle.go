// Package oracle defines the ignition scoring boundary consumed by the engine
// and a few concrete scorers.
package oracle

import (
	"context"
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/sheikhrachel/go-firesim/env"
	"github.com/sheikhrachel/go-firesim/rules"
)

// Oracle maps a feature vector to an ignition probability in [0,1].
// Implementations must return the same output for the same input within a run
// and must be safe for concurrent use.
type Oracle interface {
	Probability(ctx context.Context, fv env.FeatureVector) (float64, error)
}

// Error is a failed scoring call
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("oracle %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ConfigurationError is returned when an oracle cannot be loaded. Nothing that
// needs scoring can run until it is resolved.
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("load oracle %s: %v", e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ErrUnavailable is returned by Checked when no oracle was loaded
var ErrUnavailable = errors.New("ignition oracle unavailable")

// Prediction is the binary classification of one feature vector
type Prediction struct {
	Class       int     `json:"fire_risk_class"`
	Probability float64 `json:"fire_risk_prob"`
}

// Classify returns 1 when p ignites a cell and 0 otherwise
func Classify(p float64) int {
	if rules.Ignites(p) {
		return 1
	}
	return 0
}

// Predict scores fv and classifies the result
func Predict(ctx context.Context, o Oracle, fv env.FeatureVector) (Prediction, error) {
	p, err := Checked(o).Probability(ctx, fv)
	if err != nil {
		return Prediction{}, err
	}
	return Prediction{Class: Classify(p), Probability: p}, nil
}

type checked struct {
	o Oracle
}

// Checked wraps o so that every failure is an *Error and every result is a
// probability in [0,1]. Out of range results are reported, never clamped.
func Checked(o Oracle) Oracle {
	if c, ok := o.(checked); ok {
		return c
	}
	return checked{o: o}
}

func (c checked) Probability(ctx context.Context, fv env.FeatureVector) (float64, error) {
	if c.o == nil {
		return 0, &Error{Op: "score", Err: ErrUnavailable}
	}
	for i, v := range fv {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, &Error{Op: "score", Err: errors.Errorf("feature %s is not finite", env.FeatureNames[i])}
		}
	}
	p, err := c.o.Probability(ctx, fv)
	if err != nil {
		var oe *Error
		if errors.As(err, &oe) {
			return 0, err
		}
		return 0, &Error{Op: "score", Err: err}
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, &Error{Op: "score", Err: errors.Errorf("probability %v outside [0,1]", p)}
	}
	return p, nil
}

// Func adapts a plain function to the Oracle interface
type Func func(ctx context.Context, fv env.FeatureVector) (float64, error)

func (f Func) Probability(ctx context.Context, fv env.FeatureVector) (float64, error) {
	return f(ctx, fv)
}

// Constant returns the same probability for every input
type Constant float64

func (c Constant) Probability(context.Context, env.FeatureVector) (float64, error) {
	return float64(c), nil
}

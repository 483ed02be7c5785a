package oracle

import (
	"context"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/sheikhrachel/go-firesim/env"
)

// Coefficient is the contribution of one named feature
type Coefficient struct {
	Weight float64 `yaml:"weight"`
	Mean   float64 `yaml:"mean"`
	Scale  float64 `yaml:"scale"`
}

// LogisticModel is a logistic regression over standardized features:
//
//	p = 1 / (1 + exp(-(intercept + sum(weight * (x - mean) / scale))))
type LogisticModel struct {
	Name      string                 `yaml:"name"`
	Intercept float64                `yaml:"intercept"`
	Features  map[string]Coefficient `yaml:"features"`
}

// Logistic is a loaded model ready for scoring. It holds no mutable state and
// is safe for concurrent use.
type Logistic struct {
	name      string
	intercept float64
	coef      [env.NumFeatures]Coefficient
}

// LoadLogistic reads a YAML model file. Paths ending in .zst are zstd-decompressed first.
// Any failure is a *ConfigurationError.
func LoadLogistic(path string) (*Logistic, error) {
	raw, err := readModelFile(path)
	if err != nil {
		return nil, &ConfigurationError{Path: path, Err: err}
	}
	var m LogisticModel
	if err = yaml.Unmarshal(raw, &m); err != nil {
		return nil, &ConfigurationError{Path: path, Err: errors.Wrap(err, "decode model")}
	}
	l, err := NewLogistic(m)
	if err != nil {
		return nil, &ConfigurationError{Path: path, Err: err}
	}
	return l, nil
}

func readModelFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if !strings.HasSuffix(path, ".zst") {
		return io.ReadAll(f)
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, "open zstd stream")
	}
	defer dec.Close()
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, errors.Wrap(err, "decompress model")
	}
	return raw, nil
}

// NewLogistic validates m and orders its coefficients by feature schema.
// Every feature must be present and a zero scale means unscaled.
func NewLogistic(m LogisticModel) (*Logistic, error) {
	l := &Logistic{name: m.Name, intercept: m.Intercept}
	for i, name := range env.FeatureNames {
		c, ok := m.Features[name]
		if !ok {
			return nil, errors.Errorf("model has no coefficient for feature %q", name)
		}
		if c.Scale == 0 {
			c.Scale = 1
		}
		if c.Scale < 0 {
			return nil, errors.Errorf("feature %q has negative scale %v", name, c.Scale)
		}
		l.coef[i] = c
	}
	for name := range m.Features {
		if !isFeature(name) {
			return nil, errors.Errorf("model references unknown feature %q", name)
		}
	}
	return l, nil
}

func isFeature(name string) bool {
	for _, n := range env.FeatureNames {
		if n == name {
			return true
		}
	}
	return false
}

// Name returns the model name from its file
func (l *Logistic) Name() string { return l.name }

func (l *Logistic) Probability(ctx context.Context, fv env.FeatureVector) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	z := l.intercept
	for i, c := range l.coef {
		z += c.Weight * (fv[i] - c.Mean) / c.Scale
	}
	return 1 / (1 + math.Exp(-z)), nil
}

// Package env holds the per-run environment shared by every cell and the
// feature vector schema the ignition oracle is trained on.
package env

import (
	"sort"
	"strings"
)

// Documented defaults for a simulation run
const (
	DefaultMonth = 8 // August
	DefaultDay   = 15
	DefaultFFMC  = 90.0
	DefaultDMC   = 35.0
	DefaultDC    = 100.0
	DefaultISI   = 5.0
	DefaultTemp  = 20.0
	DefaultRH    = 40
	DefaultWind  = 3.0
	DefaultRain  = 0.0
)

// FieldNames lists the environment fields in feature schema order
var FieldNames = []string{"month", "day", "FFMC", "DMC", "DC", "ISI", "temp", "RH", "wind", "rain"}

// Environment is the weather and fuel-moisture state applied to every cell of a run.
// Values are fixed once the run starts.
type Environment struct {
	Month float64 `json:"month"`
	Day   float64 `json:"day"`
	FFMC  float64 `json:"FFMC"`
	DMC   float64 `json:"DMC"`
	DC    float64 `json:"DC"`
	ISI   float64 `json:"ISI"`
	Temp  float64 `json:"temp"`
	RH    float64 `json:"RH"`
	Wind  float64 `json:"wind"`
	Rain  float64 `json:"rain"`
}

// Defaults returns the documented default environment
func Defaults() Environment {
	return Environment{
		Month: DefaultMonth,
		Day:   DefaultDay,
		FFMC:  DefaultFFMC,
		DMC:   DefaultDMC,
		DC:    DefaultDC,
		ISI:   DefaultISI,
		Temp:  DefaultTemp,
		RH:    DefaultRH,
		Wind:  DefaultWind,
		Rain:  DefaultRain,
	}
}

// field returns a pointer to the named field, or nil for an unknown name
func (e *Environment) field(name string) *float64 {
	switch name {
	case "month":
		return &e.Month
	case "day":
		return &e.Day
	case "FFMC":
		return &e.FFMC
	case "DMC":
		return &e.DMC
	case "DC":
		return &e.DC
	case "ISI":
		return &e.ISI
	case "temp":
		return &e.Temp
	case "RH":
		return &e.RH
	case "wind":
		return &e.Wind
	case "rain":
		return &e.Rain
	}
	return nil
}

// Values returns the fields in FieldNames order
func (e Environment) Values() [10]float64 {
	return [10]float64{e.Month, e.Day, e.FFMC, e.DMC, e.DC, e.ISI, e.Temp, e.RH, e.Wind, e.Rain}
}

// With returns a copy of e with overrides applied. Every value goes through
// ParseNumeric; unknown keys are rejected. The receiver is never modified.
func (e Environment) With(overrides map[string]any) (Environment, error) {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	// deterministic error reporting when several fields are bad
	sort.Strings(keys)

	out := e
	for _, k := range keys {
		dst := out.field(k)
		if dst == nil {
			return e, &ValidationError{
				Field:  k,
				Reason: "unknown environment field, expected one of " + strings.Join(FieldNames, ", "),
			}
		}
		v, err := parseField(k, overrides[k])
		if err != nil {
			return e, err
		}
		*dst = v
	}
	return out, nil
}

// Map returns the environment keyed by field name
func (e Environment) Map() map[string]float64 {
	vals := e.Values()
	out := make(map[string]float64, len(FieldNames))
	for i, name := range FieldNames {
		out[name] = vals[i]
	}
	return out
}

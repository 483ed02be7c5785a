package env

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ValidationError reports a request field that is missing or cannot be used as a number
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

// ParseNumeric coerces a decoded JSON value to a finite float64.
// Numbers and numeric strings are accepted; anything else is an error.
func ParseNumeric(v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case nil:
		return 0, errors.New("value is null")
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, errors.Wrapf(err, "cannot parse %q as a number", n.String())
		}
		f = parsed
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, errors.New("empty string is not a number")
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, errors.Errorf("cannot parse %q as a number", n)
		}
		f = parsed
	default:
		return 0, errors.Errorf("cannot parse numeric value from %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.Errorf("%v is not a finite number", f)
	}
	return f, nil
}

// parseField wraps ParseNumeric failures in a ValidationError naming the field
func parseField(name string, v any) (float64, error) {
	f, err := ParseNumeric(v)
	if err != nil {
		return 0, &ValidationError{Field: name, Reason: err.Error()}
	}
	return f, nil
}

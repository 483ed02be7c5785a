package env

// NumFeatures is the width of the oracle input
const NumFeatures = 12

// FeatureNames is the oracle input schema: cell coordinates followed by the environment
var FeatureNames = append([]string{"X", "Y"}, FieldNames...)

// FeatureVector is one oracle input in FeatureNames order
type FeatureVector [NumFeatures]float64

// NewFeatureVector builds the input for cell (row, col) under environment e.
// X carries the row index and Y the column index.
func NewFeatureVector(row, col int, e Environment) FeatureVector {
	var fv FeatureVector
	fv[0] = float64(row)
	fv[1] = float64(col)
	vals := e.Values()
	copy(fv[2:], vals[:])
	return fv
}

// ParseFeatureVector reads all twelve named fields from a decoded request body.
// The first missing or non-numeric field, in schema order, is reported.
func ParseFeatureVector(data map[string]any) (FeatureVector, error) {
	var fv FeatureVector
	for i, name := range FeatureNames {
		raw, ok := data[name]
		if !ok {
			return fv, &ValidationError{Field: name, Reason: "missing required field"}
		}
		v, err := parseField(name, raw)
		if err != nil {
			return fv, err
		}
		fv[i] = v
	}
	return fv, nil
}

// Map returns the vector keyed by feature name
func (fv FeatureVector) Map() map[string]float64 {
	out := make(map[string]float64, NumFeatures)
	for i, name := range FeatureNames {
		out[name] = fv[i]
	}
	return out
}

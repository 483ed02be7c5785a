package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/sheikhrachel/go-firesim/engine"
	"github.com/sheikhrachel/go-firesim/env"
	"github.com/sheikhrachel/go-firesim/model"
	"github.com/sheikhrachel/go-firesim/oracle"
)

// Error kinds returned in the "kind" field of error bodies
const (
	KindValidation  = "validation"
	KindOracle      = "oracle"
	KindUnavailable = "unavailable"
	KindTimeout     = "timeout"
	KindInternal    = "internal"
)

// ErrorBody is the JSON shape of every failed request
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Field string `json:"field,omitempty"`
}

// classify maps an error to its HTTP status and body
func classify(err error) (int, ErrorBody) {
	body := ErrorBody{Error: err.Error(), Kind: KindInternal}

	var ve *env.ValidationError
	switch {
	case errors.As(err, &ve):
		body.Kind = KindValidation
		body.Field = ve.Field
		return http.StatusBadRequest, body
	case errors.Is(err, model.ErrInvalidDimensions), errors.Is(err, engine.ErrInvalidSteps):
		body.Kind = KindValidation
		return http.StatusBadRequest, body
	case errors.Is(err, oracle.ErrUnavailable):
		body.Kind = KindUnavailable
		return http.StatusServiceUnavailable, body
	case errors.Is(err, context.DeadlineExceeded):
		body.Kind = KindTimeout
		return http.StatusGatewayTimeout, body
	}

	var oe *oracle.Error
	if errors.As(err, &oe) {
		body.Kind = KindOracle
		return http.StatusBadGateway, body
	}
	return http.StatusInternalServerError, body
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "status", status, "err", err)
	} else {
		s.logger.Info("request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, body)
}

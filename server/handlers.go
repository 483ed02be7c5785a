package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/sheikhrachel/go-firesim/engine"
	"github.com/sheikhrachel/go-firesim/env"
	"github.com/sheikhrachel/go-firesim/oracle"
	"github.com/sheikhrachel/go-firesim/utils"
)

const maxBodyBytes = 1 << 20

// SimulateRequest is the body of POST /simulate. Absent fields use configured defaults.
type SimulateRequest struct {
	Rows            *int           `json:"rows,omitempty"`
	Cols            *int           `json:"cols,omitempty"`
	Steps           *int           `json:"steps,omitempty"`
	EnvData         map[string]any `json:"env_data,omitempty"`
	StopWhenSettled *bool          `json:"stop_when_settled,omitempty"`
}

// SimulateResponse is the body of a successful POST /simulate
type SimulateResponse struct {
	RunID     string      `json:"run_id"`
	FinalGrid [][]int     `json:"final_grid"`
	GridHash  string      `json:"grid_hash"`
	StepsRun  int         `json:"steps_run"`
	Stats     utils.Stats `json:"stats"`
}

func (s *Server) handleHome(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "Forest Fire Prediction + CA Simulation API\n")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.oracle == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  s.loadErrString(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	pred, err := s.predict(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pred)
}

func (s *Server) predict(r *http.Request) (oracle.Prediction, error) {
	if err := s.available(); err != nil {
		return oracle.Prediction{}, err
	}
	var data map[string]any
	if err := decodeBody(r.Body, &data); err != nil {
		return oracle.Prediction{}, err
	}
	s.logger.Debug("received /predict", "data", data)

	fv, err := env.ParseFeatureVector(data)
	if err != nil {
		return oracle.Prediction{}, err
	}

	ctx, cancel := s.requestContext(r.Context())
	defer cancel()
	return oracle.Predict(ctx, s.oracle, fv)
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if err := s.available(); err != nil {
		s.writeError(w, r, err)
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, r, errors.Wrap(err, "[handleSimulate] read body"))
		return
	}
	params, err := s.parseSimulate(raw)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r.Context())
	defer cancel()

	res, err := s.simulate(ctx, params, nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SimulateResponse{
		RunID:     res.RunID,
		FinalGrid: res.Grid.Matrix(),
		GridHash:  res.Grid.Hash(),
		StepsRun:  res.StepsRun,
		Stats:     res.Stats,
	})
}

// parseSimulate validates a raw simulate body and resolves defaults and limits
func (s *Server) parseSimulate(raw []byte) (engine.Params, error) {
	cfg := s.cfg.Simulation
	params := engine.Params{
		Rows:            cfg.DefaultRows,
		Cols:            cfg.DefaultCols,
		Steps:           cfg.DefaultSteps,
		Env:             env.Defaults(),
		StopWhenSettled: cfg.StopWhenSettled,
		Workers:         cfg.Workers,
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return params, nil
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return params, &env.ValidationError{Reason: "body is not valid JSON: " + err.Error()}
	}
	if err := validateSimulate(doc); err != nil {
		return params, err
	}
	s.logger.Debug("received /simulate", "data", doc)

	var req SimulateRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		ve := &env.ValidationError{Reason: err.Error()}
		var ute *json.UnmarshalTypeError
		if errors.As(err, &ute) {
			ve.Field = ute.Field
			ve.Reason = "must be a whole number"
		}
		return params, ve
	}

	if req.Rows != nil {
		params.Rows = *req.Rows
	}
	if req.Cols != nil {
		params.Cols = *req.Cols
	}
	if req.Steps != nil {
		params.Steps = *req.Steps
	}
	if req.StopWhenSettled != nil {
		params.StopWhenSettled = *req.StopWhenSettled
	}

	switch {
	case params.Rows > cfg.MaxRows:
		return params, &env.ValidationError{Field: "rows", Reason: "exceeds configured maximum"}
	case params.Cols > cfg.MaxCols:
		return params, &env.ValidationError{Field: "cols", Reason: "exceeds configured maximum"}
	case params.Steps > cfg.MaxSteps:
		return params, &env.ValidationError{Field: "steps", Reason: "exceeds configured maximum"}
	}

	environment, err := env.Defaults().With(req.EnvData)
	if err != nil {
		return params, err
	}
	params.Env = environment
	return params, nil
}

func (s *Server) simulate(ctx context.Context, p engine.Params, observer engine.Observer) (engine.Result, error) {
	start := time.Now()
	res, err := engine.Simulate(ctx, s.oracle, p, s.pool, s.logger, observer)
	if err != nil {
		return res, err
	}
	s.logger.Info("simulation finished",
		"run", res.RunID,
		"rows", p.Rows,
		"cols", p.Cols,
		"steps", res.StepsRun,
		"oracle_calls", res.Stats.OracleCalls,
		"burned", res.Stats.Burned,
		"took", time.Since(start),
	)
	return res, nil
}

func decodeBody(body io.Reader, v any) error {
	dec := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return &env.ValidationError{Reason: "body is not valid JSON: " + err.Error()}
	}
	return nil
}

func (s *Server) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Server.RequestTimeout > 0 {
		return context.WithTimeout(parent, s.cfg.Server.RequestTimeout)
	}
	return context.WithCancel(parent)
}

package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/sheikhrachel/go-firesim/env"
	"github.com/sheikhrachel/go-firesim/oracle"
	"github.com/sheikhrachel/go-firesim/utils"
)

const predictBody = `{
  "X": 4, "Y": 5, "month": 8, "day": 15,
  "FFMC": 90.0, "DMC": 35.0, "DC": 100.0,
  "ISI": 5.0, "temp": 20.0, "RH": 40,
  "wind": 3.0, "rain": 0.0
}`

func newTestServer(o oracle.Oracle, loadErr error) *Server {
	return New(utils.DefaultConfig(), o, loadErr, log.New(io.Discard))
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](rec *httptest.ResponseRecorder) T {
	var v T
	So(json.Unmarshal(rec.Body.Bytes(), &v), ShouldBeNil)
	return v
}

func TestPredictEndpoint(t *testing.T) {
	Convey("Given a server with a constant oracle", t, func() {
		s := newTestServer(oracle.Constant(0.9), nil)

		Convey("A full feature payload is classified", func() {
			rec := do(s, http.MethodPost, "/predict", predictBody)
			So(rec.Code, ShouldEqual, http.StatusOK)
			pred := decode[oracle.Prediction](rec)
			So(pred.Class, ShouldEqual, 1)
			So(pred.Probability, ShouldEqual, 0.9)
		})

		Convey("Numeric strings are coerced", func() {
			body := strings.Replace(predictBody, `"FFMC": 90.0`, `"FFMC": "90.0"`, 1)
			rec := do(s, http.MethodPost, "/predict", body)
			So(rec.Code, ShouldEqual, http.StatusOK)
		})

		Convey("A payload missing FFMC is rejected naming the field", func() {
			body := strings.Replace(predictBody, `"FFMC": 90.0,`, ``, 1)
			rec := do(s, http.MethodPost, "/predict", body)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			eb := decode[ErrorBody](rec)
			So(eb.Kind, ShouldEqual, KindValidation)
			So(eb.Field, ShouldEqual, "FFMC")
			So(eb.Error, ShouldContainSubstring, "FFMC")

			Convey("And the next valid request still succeeds", func() {
				rec := do(s, http.MethodPost, "/predict", predictBody)
				So(rec.Code, ShouldEqual, http.StatusOK)
			})
		})

		Convey("A body that is not JSON is a validation error", func() {
			rec := do(s, http.MethodPost, "/predict", `{"X":`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("GET is not routed", func() {
			rec := do(s, http.MethodGet, "/predict", "")
			So(rec.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})

	Convey("Given an oracle that fails", t, func() {
		s := newTestServer(oracle.Func(func(context.Context, env.FeatureVector) (float64, error) {
			return 0, errors.New("model crashed")
		}), nil)

		Convey("The failure is reported as an oracle error", func() {
			rec := do(s, http.MethodPost, "/predict", predictBody)
			So(rec.Code, ShouldEqual, http.StatusBadGateway)
			So(decode[ErrorBody](rec).Kind, ShouldEqual, KindOracle)
		})
	})
}

func TestSimulateEndpoint(t *testing.T) {
	Convey("Given a server with a constant oracle", t, func() {
		s := newTestServer(oracle.Constant(0.9), nil)

		Convey("An empty body uses the 10x10x5 defaults", func() {
			rec := do(s, http.MethodPost, "/simulate", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			resp := decode[SimulateResponse](rec)
			So(resp.FinalGrid, ShouldHaveLength, 10)
			So(resp.StepsRun, ShouldEqual, 5)
			So(resp.RunID, ShouldNotBeBlank)
		})

		Convey("rows=3 cols=7 yields a 3x7 grid", func() {
			rec := do(s, http.MethodPost, "/simulate", `{"rows":3,"cols":7,"steps":1}`)
			So(rec.Code, ShouldEqual, http.StatusOK)
			resp := decode[SimulateResponse](rec)
			So(resp.FinalGrid, ShouldHaveLength, 3)
			for _, row := range resp.FinalGrid {
				So(row, ShouldHaveLength, 7)
			}
			So(resp.FinalGrid[1][3], ShouldEqual, 2)
			So(resp.FinalGrid[0][2], ShouldEqual, 1)

			again := decode[SimulateResponse](do(s, http.MethodPost, "/simulate", `{"rows":3,"cols":7,"steps":1}`))
			So(resp.GridHash, ShouldNotBeBlank)
			So(again.GridHash, ShouldEqual, resp.GridHash)
			So(again.RunID, ShouldNotEqual, resp.RunID)
		})

		Convey("steps=0 returns the initial grid", func() {
			rec := do(s, http.MethodPost, "/simulate", `{"rows":3,"cols":3,"steps":0}`)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decode[SimulateResponse](rec).FinalGrid, ShouldResemble, [][]int{{0, 0, 0}, {0, 1, 0}, {0, 0, 0}})
		})

		Convey("Environment overrides accept numeric strings", func() {
			rec := do(s, http.MethodPost, "/simulate", `{"steps":1,"env_data":{"temp":"35","wind":12}}`)
			So(rec.Code, ShouldEqual, http.StatusOK)
		})

		Convey("A non-numeric FFMC override is rejected naming FFMC", func() {
			rec := do(s, http.MethodPost, "/simulate", `{"env_data":{"FFMC":"dry"}}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			eb := decode[ErrorBody](rec)
			So(eb.Field, ShouldEqual, "FFMC")

			Convey("And the next valid request still succeeds", func() {
				So(do(s, http.MethodPost, "/simulate", `{"steps":2}`).Code, ShouldEqual, http.StatusOK)
			})
		})

		Convey("Schema violations are validation errors", func() {
			for _, body := range []string{
				`{"rows":0}`,
				`{"steps":-1}`,
				`{"rows":"ten"}`,
				`{"env_data":{"FFMC":true}}`,
				`{"env_data":{"elevation":3}}`,
				`{"unknown":1}`,
			} {
				rec := do(s, http.MethodPost, "/simulate", body)
				So(rec.Code, ShouldEqual, http.StatusBadRequest)
				So(decode[ErrorBody](rec).Kind, ShouldEqual, KindValidation)
			}
		})

		Convey("Schema and environment errors name an env key the same way", func() {
			for _, body := range []string{
				`{"env_data":{"FFMC":true}}`,
				`{"env_data":{"FFMC":"dry"}}`,
			} {
				rec := do(s, http.MethodPost, "/simulate", body)
				So(rec.Code, ShouldEqual, http.StatusBadRequest)
				So(decode[ErrorBody](rec).Field, ShouldEqual, "FFMC")
			}
		})

		Convey("Fractional sizes are rejected naming the field", func() {
			for body, field := range map[string]string{
				`{"steps":2.0}`: "steps",
				`{"rows":3.0}`:  "rows",
				`{"cols":3.5}`:  "cols",
			} {
				rec := do(s, http.MethodPost, "/simulate", body)
				So(rec.Code, ShouldEqual, http.StatusBadRequest)
				eb := decode[ErrorBody](rec)
				So(eb.Kind, ShouldEqual, KindValidation)
				So(eb.Field, ShouldEqual, field)
			}
		})

		Convey("Requests above the configured maxima are rejected", func() {
			rec := do(s, http.MethodPost, "/simulate", `{"rows":100000}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(decode[ErrorBody](rec).Field, ShouldEqual, "rows")
		})
	})
}

func TestDegradedMode(t *testing.T) {
	Convey("Given a server whose oracle failed to load", t, func() {
		loadErr := &oracle.ConfigurationError{Path: "missing.yaml", Err: errors.New("no such file")}
		s := newTestServer(nil, loadErr)
		So(s.Degraded(), ShouldBeTrue)

		Convey("Oracle-dependent endpoints answer 503", func() {
			So(do(s, http.MethodPost, "/predict", predictBody).Code, ShouldEqual, http.StatusServiceUnavailable)
			rec := do(s, http.MethodPost, "/simulate", `{}`)
			So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(decode[ErrorBody](rec).Kind, ShouldEqual, KindUnavailable)
		})

		Convey("The banner and health check still answer", func() {
			So(do(s, http.MethodGet, "/", "").Code, ShouldEqual, http.StatusOK)
			rec := do(s, http.MethodGet, "/healthz", "")
			So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(rec.Body.String(), ShouldContainSubstring, "missing.yaml")
		})

		Convey("The stream refuses to upgrade", func() {
			ts := httptest.NewServer(s.Handler())
			defer ts.Close()
			url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/simulate/stream"
			conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
			So(err, ShouldEqual, websocket.ErrBadHandshake)
			So(conn, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestGzip(t *testing.T) {
	Convey("Responses are gzipped when the client asks", t, func() {
		s := newTestServer(oracle.Constant(0.9), nil)
		req := httptest.NewRequest(http.MethodPost, "/simulate", strings.NewReader(`{"rows":60,"cols":60,"steps":3}`))
		req.Header.Set("Accept-Encoding", "gzip")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		So(rec.Code, ShouldEqual, http.StatusOK)
		So(rec.Header().Get("Content-Encoding"), ShouldEqual, "gzip")
	})
}

type streamMsg struct {
	Step     *int    `json:"step"`
	Grid     [][]int `json:"grid"`
	Done     bool    `json:"done"`
	GridHash string  `json:"grid_hash"`
	StepsRun int     `json:"steps_run"`
	Kind     string  `json:"kind"`
	Field    string  `json:"field"`
}

func dialStream(ts *httptest.Server) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/simulate/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	So(err, ShouldBeNil)
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestStreamEndpoint(t *testing.T) {
	Convey("Given a running server", t, func() {
		s := newTestServer(oracle.Constant(0.9), nil)
		ts := httptest.NewServer(s.Handler())
		defer ts.Close()

		Convey("A stream sends the initial grid, one frame per step, then done", func() {
			conn := dialStream(ts)
			defer conn.Close()
			So(conn.WriteJSON(map[string]any{"rows": 5, "cols": 5, "steps": 2}), ShouldBeNil)

			for want := 0; want <= 2; want++ {
				var msg streamMsg
				So(conn.ReadJSON(&msg), ShouldBeNil)
				So(msg.Step, ShouldNotBeNil)
				So(*msg.Step, ShouldEqual, want)
				So(msg.Grid, ShouldHaveLength, 5)
			}
			var done streamMsg
			So(conn.ReadJSON(&done), ShouldBeNil)
			So(done.Done, ShouldBeTrue)
			So(done.StepsRun, ShouldEqual, 2)
			So(done.GridHash, ShouldNotBeBlank)
		})

		Convey("An invalid request is answered with a validation error", func() {
			conn := dialStream(ts)
			defer conn.Close()
			So(conn.WriteJSON(map[string]any{"env_data": map[string]any{"FFMC": "wet"}}), ShouldBeNil)

			var msg streamMsg
			So(conn.ReadJSON(&msg), ShouldBeNil)
			So(msg.Kind, ShouldEqual, KindValidation)
			So(msg.Field, ShouldEqual, "FFMC")
		})
	})
}

func TestClassify(t *testing.T) {
	Convey("Errors map to status codes by kind", t, func() {
		status, body := classify(&env.ValidationError{Field: "rows", Reason: "bad"})
		So(status, ShouldEqual, http.StatusBadRequest)
		So(body.Field, ShouldEqual, "rows")

		status, _ = classify(errors.Wrap(context.DeadlineExceeded, "step"))
		So(status, ShouldEqual, http.StatusGatewayTimeout)

		status, _ = classify(&oracle.Error{Op: "score", Err: errors.New("x")})
		So(status, ShouldEqual, http.StatusBadGateway)

		status, body = classify(errors.New("mystery"))
		So(status, ShouldEqual, http.StatusInternalServerError)
		So(body.Kind, ShouldEqual, KindInternal)
	})
}

func TestStreamDisconnect(t *testing.T) {
	Convey("Closing the connection cancels the run", t, func() {
		var calls atomic.Int64
		slow := oracle.Func(func(ctx context.Context, _ env.FeatureVector) (float64, error) {
			calls.Add(1)
			select {
			case <-time.After(time.Millisecond):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
			return 0.9, nil
		})
		s := newTestServer(slow, nil)
		ts := httptest.NewServer(s.Handler())
		defer ts.Close()

		conn := dialStream(ts)
		So(conn.WriteJSON(map[string]any{"rows": 200, "cols": 200, "steps": 500}), ShouldBeNil)
		var first streamMsg
		So(conn.ReadJSON(&first), ShouldBeNil)
		So(*first.Step, ShouldEqual, 0)
		So(conn.Close(), ShouldBeNil)

		// wait for the count to stop moving
		settled := calls.Load()
		for i := 0; i < 50; i++ {
			time.Sleep(100 * time.Millisecond)
			now := calls.Load()
			if now == settled {
				break
			}
			settled = now
		}
		time.Sleep(200 * time.Millisecond)
		So(calls.Load(), ShouldEqual, settled)
		// a full run scores every cell but the center once
		So(settled, ShouldBeLessThan, 200*200-1)
	})
}

func TestFieldNames(t *testing.T) {
	Convey("JSON pointers become dotted field names", t, func() {
		So(fieldFromPointer("/env_data/FFMC"), ShouldEqual, "FFMC")
		So(fieldFromPointer("/env_data"), ShouldEqual, "env_data")
		So(fieldFromPointer("/rows"), ShouldEqual, "rows")
		So(fieldFromPointer(""), ShouldEqual, "")
		So(fieldFromPointer("/a~1b"), ShouldEqual, "a/b")
	})
}

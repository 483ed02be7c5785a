package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/sheikhrachel/go-firesim/engine"
	"github.com/sheikhrachel/go-firesim/model"
	"github.com/sheikhrachel/go-firesim/utils"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 5 * time.Second
	// Time allowed for the client to send its simulate request.
	requestWait = 10 * time.Second
	// Send pings to peer with this period.
	pingPeriod = 15 * time.Second
)

// StreamFrame is sent once for the initial grid and once per committed step
type StreamFrame struct {
	Step    int     `json:"step"`
	Grid    [][]int `json:"grid"`
	Burning int     `json:"burning"`
	Burned  int     `json:"burned"`
}

// StreamDone closes a successful stream
type StreamDone struct {
	Done     bool        `json:"done"`
	RunID    string      `json:"run_id"`
	GridHash string      `json:"grid_hash"`
	StepsRun int         `json:"steps_run"`
	Stats    utils.Stats `json:"stats"`
}

func toFrame(generation int, g *model.Grid) StreamFrame {
	return StreamFrame{
		Step:    generation,
		Grid:    g.Matrix(),
		Burning: g.Count(model.Burning),
		Burned:  g.Count(model.Burned),
	}
}

// handleStream runs one simulation per connection. The client sends a simulate
// request as its first message and receives a frame per committed step.
// Closing the connection cancels the run.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if err := s.available(); err != nil {
		s.writeError(w, r, err)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxBodyBytes)

	_ = conn.SetReadDeadline(time.Now().Add(requestWait))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		s.logger.Debug("no simulate request on stream", "err", err)
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	params, err := s.parseSimulate(msg)
	if err != nil {
		s.closeWithError(conn, r, err)
		return
	}

	ctx, cancel := s.requestContext(r.Context())
	defer cancel()
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	// Reader: any read error means the client went away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancelRun()
				return
			}
		}
	}()

	res, err := s.stream(runCtx, conn, params)
	if err != nil {
		if runCtx.Err() != nil && ctx.Err() == nil {
			s.logger.Info("stream client disconnected", "run", res.RunID, "steps", res.StepsRun)
			return
		}
		s.closeWithError(conn, r, err)
		return
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(StreamDone{
		Done:     true,
		RunID:    res.RunID,
		GridHash: res.Grid.Hash(),
		StepsRun: res.StepsRun,
		Stats:    res.Stats,
	})
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
		time.Now().Add(writeWait))
}

// stream runs the simulation, the frame writer and the pinger until the run ends or one fails
func (s *Server) stream(ctx context.Context, conn *websocket.Conn, params engine.Params) (engine.Result, error) {
	eg, egCtx := errgroup.WithContext(ctx)
	pingCtx, stopPing := context.WithCancel(egCtx)
	defer stopPing()

	frames := make(chan StreamFrame)

	var res engine.Result
	eg.Go(func() error {
		defer close(frames)
		var err error
		res, err = s.simulate(egCtx, params, func(generation int, g *model.Grid) error {
			select {
			case frames <- toFrame(generation, g):
				return nil
			case <-egCtx.Done():
				return errors.Wrap(egCtx.Err(), "[stream] observer")
			}
		})
		return err
	})

	eg.Go(func() error {
		defer stopPing()
		for frame := range frames {
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return errors.Wrap(err, "[stream] set deadline")
			}
			if err := conn.WriteJSON(frame); err != nil {
				return errors.Wrap(err, "[stream] write frame")
			}
		}
		return nil
	})

	eg.Go(func() error {
		pinger := channerics.NewTicker(pingCtx.Done(), pingPeriod)
		for {
			select {
			case <-pingCtx.Done():
				return nil
			case <-pinger:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return errors.Wrap(err, "[stream] ping")
				}
			}
		}
	})

	err := eg.Wait()
	return res, err
}

func (s *Server) closeWithError(conn *websocket.Conn, r *http.Request, err error) {
	status, body := classify(err)
	s.logger.Info("stream rejected", "path", r.URL.Path, "status", status, "err", err)

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(body)

	code := websocket.CloseInternalServerErr
	if status < http.StatusInternalServerError {
		code = websocket.ClosePolicyViolation
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, body.Kind),
		time.Now().Add(writeWait))
}

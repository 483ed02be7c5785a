// Package server exposes ignition prediction and fire simulation over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"
	"github.com/pkg/errors"

	"github.com/sheikhrachel/go-firesim/model"
	"github.com/sheikhrachel/go-firesim/oracle"
	"github.com/sheikhrachel/go-firesim/utils"
)

// Server serves the HTTP API. It is built once with an already-loaded oracle;
// a nil oracle leaves it in degraded mode, rejecting every request that needs one.
type Server struct {
	cfg      utils.Config
	oracle   oracle.Oracle
	loadErr  error
	pool     *model.GridPool
	logger   *log.Logger
	upgrader websocket.Upgrader
	router   *mux.Router
}

// New builds a server. loadErr is the startup error that left o nil, if any.
func New(cfg utils.Config, o oracle.Oracle, loadErr error, logger *log.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		loadErr: loadErr,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
		},
	}
	if o != nil {
		s.oracle = oracle.Limit(o, cfg.Oracle.MaxConcurrency)
	}
	if cfg.Simulation.UseMemoryPool {
		s.pool = model.NewGridPool()
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.compress(s.handleHome)).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.compress(s.handleHealth)).Methods(http.MethodGet)
	r.HandleFunc("/predict", s.compress(s.handlePredict)).Methods(http.MethodPost)
	r.HandleFunc("/simulate", s.compress(s.handleSimulate)).Methods(http.MethodPost)
	// websocket upgrades need the raw writer, never compressed
	r.HandleFunc("/simulate/stream", s.handleStream).Methods(http.MethodGet)
	return r
}

func (s *Server) compress(h http.HandlerFunc) http.HandlerFunc {
	if !s.cfg.Server.Gzip {
		return h
	}
	return gzhttp.GzipHandler(h)
}

// Handler returns the routed API
func (s *Server) Handler() http.Handler {
	return s.router
}

// Degraded reports whether the server has no oracle
func (s *Server) Degraded() bool {
	return s.oracle == nil
}

func (s *Server) available() error {
	if s.oracle != nil {
		return nil
	}
	if s.loadErr != nil {
		return errors.Wrap(oracle.ErrUnavailable, s.loadErr.Error())
	}
	return oracle.ErrUnavailable
}

func (s *Server) loadErrString() string {
	if s.loadErr == nil {
		return oracle.ErrUnavailable.Error()
	}
	return s.loadErr.Error()
}

// Serve listens on the configured address until ctx is done, then shuts down gracefully
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", srv.Addr, "degraded", s.Degraded())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "[Serve]")
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "[Serve] shutdown")
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "[Serve]")
	}
	return nil
}

package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

// shutdownTimeout bounds how long Close waits for in-flight requests.
const shutdownTimeout = 5 * time.Second

// ServerParams carries the dependencies for NewServer.
type ServerParams struct {
	// ListenAddr is the bind address, e.g. ":9090".
	ListenAddr string

	Metrics *Metrics

	// Readiness reports whether the daemon can serve; typically a
	// database ping. Nil means always ready.
	Readiness func(ctx context.Context) error

	// Tick, when non-nil, enables POST /tick and fires one scheduler
	// pass per request. This is the external-cron deployment mode.
	Tick func()

	Logger *log.Logger
}

// Server is the observability HTTP endpoint: /metrics, /healthz,
// /readyz and the optional /tick.
type Server struct {
	addr      string
	metrics   *Metrics
	readiness func(ctx context.Context) error
	tick      func()
	logger    *log.Logger

	http *http.Server
}

// NewServer creates the observability server. It does not listen until
// Start is called.
func NewServer(p ServerParams) *Server {
	if p.ListenAddr == "" {
		p.ListenAddr = ":9090"
	}
	if p.Logger == nil {
		p.Logger = log.Default()
	}
	s := &Server{
		addr:      p.ListenAddr,
		metrics:   p.Metrics,
		readiness: p.Readiness,
		tick:      p.Tick,
		logger:    p.Logger,
	}
	s.http = &http.Server{
		Addr:              p.ListenAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	if s.tick != nil {
		mux.HandleFunc("POST /tick", s.handleTick)
	}
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.readiness != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.readiness(ctx); err != nil {
			s.logger.Warn("readiness check failed", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"reason": err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleTick fires one scheduler pass. The pass runs inline so the
// caller's cron service sees errors as non-2xx; a pass that is already
// running is skipped by the scheduler itself.
func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	s.tick()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "ticked"})
}

// Start binds the listener and serves until Close. The bind happens
// synchronously so configuration errors surface to the caller; serving
// continues in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.logger.Info("observability endpoint listening", "addr", ln.Addr().String())
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("observability server stopped", "err", err)
		}
	}()
	return nil
}

// Addr returns the configured bind address.
func (s *Server) Addr() string { return s.addr }

// Close drains in-flight requests and stops the server.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

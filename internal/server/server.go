// Package server exposes the HTTP and WebSocket surface: chunk ingestion,
// notification sockets, call summaries, call-end, and the operational
// endpoints (health, readiness, metrics). All routes run behind the observe
// middleware so every request carries trace context and latency metrics.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ringguard/ringguard/internal/engine"
	"github.com/ringguard/ringguard/internal/health"
	"github.com/ringguard/ringguard/internal/observe"
	"github.com/ringguard/ringguard/internal/registry"
	"github.com/ringguard/ringguard/pkg/types"
)

// defaultMaxChunkBytes bounds one uploaded chunk. Thirty seconds of 16 kHz
// 16-bit mono is under 1 MiB; the cap leaves room for WAV headers and
// higher-rate client audio that still needs normalizing.
const defaultMaxChunkBytes = 8 << 20

// shutdownTimeout bounds graceful drain on Run exit.
const shutdownTimeout = 10 * time.Second

// ChunkProcessor is the engine seam the server calls into.
type ChunkProcessor interface {
	ProcessChunk(ctx context.Context, chunk types.AudioChunk) (types.RiskVerdict, error)
	CallSummary(callID string) (engine.CallSummary, error)
	EndCall(callID string)
}

// Server holds the handler dependencies. Construct with [New].
type Server struct {
	processor ChunkProcessor
	registry  *registry.Registry
	health    *health.Handler
	metrics   *observe.Metrics
	maxBody   int64

	certFile string
	keyFile  string
}

// Option configures a Server.
type Option func(*Server)

// WithHealth installs the health handler serving /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics overrides the metrics instance used by handlers and
// middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMaxChunkBytes overrides the upload size cap.
func WithMaxChunkBytes(n int64) Option {
	return func(s *Server) { s.maxBody = n }
}

// WithTLS makes Run serve HTTPS using the given certificate pair.
func WithTLS(certFile, keyFile string) Option {
	return func(s *Server) {
		s.certFile = certFile
		s.keyFile = keyFile
	}
}

// New creates a Server.
func New(processor ChunkProcessor, reg *registry.Registry, opts ...Option) (*Server, error) {
	if processor == nil || reg == nil {
		return nil, errors.New("server: processor and registry are required")
	}
	s := &Server{
		processor: processor,
		registry:  reg,
		health:    health.New(),
		maxBody:   defaultMaxChunkBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s, nil
}

// Handler builds the full route table wrapped in the observe middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chunks", s.handleChunk)
	mux.HandleFunc("GET /v1/calls/{id}/notifications", s.handleNotifications)
	mux.HandleFunc("GET /v1/calls/{id}/summary", s.handleSummary)
	mux.HandleFunc("DELETE /v1/calls/{id}", s.handleEndCall)

	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(s.metrics)(mux)
}

// Run serves on addr until ctx is cancelled, then drains gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		if s.certFile != "" {
			errc <- srv.ListenAndServeTLS(s.certFile, s.keyFile)
			return
		}
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return srv.Close()
	}
	return nil
}

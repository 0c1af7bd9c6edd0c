package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brojonat/lendscan/service/config"
	"github.com/brojonat/lendscan/service/lending"
	"github.com/brojonat/lendscan/service/metrics"
	"github.com/brojonat/lendscan/service/reserves"
	"github.com/brojonat/lendscan/service/scan"
	"github.com/brojonat/lendscan/service/temporal"
)

// Scanner is the subset of *scan.Scanner the HTTP API needs.
type Scanner interface {
	Run(ctx context.Context, params scan.Params) (*scan.Result, error)
	Table() *reserves.Table
	InspectReserve(ctx context.Context, key solana.PublicKey) (*lending.Reserve, error)
	InspectObligation(ctx context.Context, key solana.PublicKey) (*lending.Obligation, error)
}

// Server represents the HTTP server for the ledger service.
type Server struct {
	addr         string
	cfg          *config.Config
	scanner      Scanner
	ledgers      *ledgerCache
	scheduler    temporal.Scheduler
	ledgerSource LedgerSource
	metrics      *metrics.Metrics
	logger       *slog.Logger
	server       *http.Server
}

// New creates a new HTTP server with the given dependencies.
// Scan results are cached for cacheTTL; a zero TTL scans on every request.
// A scan fetches the market and then its obligations, so it is bounded by
// twice the RPC timeout.
// The scheduler is optional - if nil, schedule endpoints answer 503.
// The ledgerSource is optional - if nil, the ledger stream is not mounted.
// The metrics is optional - if nil, metrics endpoints won't be available.
func New(addr string, cfg *config.Config, scanner Scanner, cacheTTL time.Duration, scheduler temporal.Scheduler, ledgerSource LedgerSource, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:         addr,
		cfg:          cfg,
		scanner:      scanner,
		ledgers:      newLedgerCache(scanner, cacheTTL, 2*cfg.RPCTimeout, time.Now),
		scheduler:    scheduler,
		ledgerSource: ledgerSource,
		metrics:      m,
		logger:       logger,
	}
}

// Handler builds the routed handler, wrapped with CORS and request metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	params := scan.Params{Program: s.cfg.ProgramID, Market: s.cfg.LendingMarket}

	route("GET /api/v1/ledger", "/api/v1/ledger", handleGetLedger(s.ledgers, params, s.scanner.Table(), s.logger))
	route("GET /api/v1/reserves", "/api/v1/reserves", handleListReserves(s.scanner.Table(), s.logger))
	route("GET /api/v1/reserves/{address}", "/api/v1/reserves/{address}", handleGetReserve(s.scanner, s.logger))
	route("GET /api/v1/obligations/{address}", "/api/v1/obligations/{address}", handleGetObligation(s.scanner, s.logger))
	route("PUT /api/v1/schedules/{market}", "/api/v1/schedules/{market}", handleUpsertSchedule(s.scheduler, s.cfg, s.logger))
	route("DELETE /api/v1/schedules/{market}", "/api/v1/schedules/{market}", handleDeleteSchedule(s.scheduler, s.logger))

	// Streams are not wrapped in the metrics middleware; their duration is the
	// connection lifetime.
	if s.ledgerSource != nil {
		mux.Handle("GET /api/v1/stream/ledgers/{market}", handleStreamLedgers(s.ledgerSource, s.logger))
		mux.Handle("GET /api/v1/stream/ledgers", handleStreamLedgers(s.ledgerSource, s.logger))
	} else {
		s.logger.Warn("NATS not configured, ledger stream disabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.cfg.RPCTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr, "market", s.cfg.LendingMarket.String())
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Closing the source first ends open streams.
	if c, ok := s.ledgerSource.(io.Closer); ok {
		c.Close()
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

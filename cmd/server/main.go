package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/lendscan/service/config"
	"github.com/brojonat/lendscan/service/metrics"
	"github.com/brojonat/lendscan/service/scan"
	"github.com/brojonat/lendscan/service/server"
	"github.com/brojonat/lendscan/service/solana"
	"github.com/brojonat/lendscan/service/temporal"
)

func main() {
	cfg := config.MustLoad()

	logger := config.NewLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"market", cfg.LendingMarket.String(),
		"log_level", cfg.LogLevel,
	)

	table, err := cfg.ReserveTable()
	if err != nil {
		logger.Error("failed to load reserve table", "error", err)
		os.Exit(1)
	}
	logger.Info("loaded reserve table", "reserves", table.Len(), "path", cfg.ReserveTablePath)

	// Served on the main listener at /metrics
	metricsCollector := metrics.NewMetrics(nil)

	rpcURL, err := solana.SelectRandomEndpoint(cfg.SolanaRPCURLs)
	if err != nil {
		logger.Error("failed to select RPC endpoint", "error", err)
		os.Exit(1)
	}
	solanaClient := solana.NewClient(solana.NewRPCClient(rpcURL), solana.EndpointLabel(rpcURL), metricsCollector, logger,
		solana.WithTimeout(cfg.RPCTimeout),
	)
	logger.Info("initialized solana RPC client",
		"endpoint", solana.EndpointLabel(rpcURL),
		"total_endpoints", len(cfg.SolanaRPCURLs),
	)

	scanner := scan.NewScanner(solanaClient, table, cfg.DecodeWorkers, metricsCollector, logger)

	// Scheduling is optional: without Temporal the schedule endpoints answer 503.
	var scheduler temporal.Scheduler
	temporalClient, err := temporal.NewClient(cfg.TemporalHost, cfg.TemporalNamespace, cfg.TemporalTaskQueue, logger)
	if err != nil {
		logger.Warn("temporal unavailable, scheduling disabled", "error", err)
	} else {
		defer temporalClient.Close()
		scheduler = temporalClient
	}

	// A nil interface, not a nil *JetStreamLedgerSource, disables streaming.
	var ledgerSource server.LedgerSource
	if cfg.NATSURL != "" {
		source, err := server.NewJetStreamLedgerSource(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to connect ledger stream to NATS", "error", err)
			os.Exit(1)
		}
		ledgerSource = source
	}

	httpServer := server.New(cfg.ServerAddr, cfg, scanner, cfg.LedgerCacheTTL, scheduler, ledgerSource, metricsCollector, logger)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

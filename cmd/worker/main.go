package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brojonat/lendscan/service/config"
	"github.com/brojonat/lendscan/service/metrics"
	natspkg "github.com/brojonat/lendscan/service/nats"
	"github.com/brojonat/lendscan/service/scan"
	"github.com/brojonat/lendscan/service/solana"
	"github.com/brojonat/lendscan/service/temporal"
)

func main() {
	cfg := config.MustLoad()
	logger := config.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("worker exited", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting lendscan worker",
		"temporal_host", cfg.TemporalHost,
		"namespace", cfg.TemporalNamespace,
		"task_queue", cfg.TemporalTaskQueue,
		"market", cfg.LendingMarket.String(),
	)

	table, err := cfg.ReserveTable()
	if err != nil {
		return fmt.Errorf("failed to load reserve table: %w", err)
	}

	m := metrics.NewMetrics(nil)
	metricsServer := serveMetrics(cfg.MetricsAddr, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", "error", err)
		}
	}()

	rpcURL, err := solana.SelectRandomEndpoint(cfg.SolanaRPCURLs)
	if err != nil {
		return fmt.Errorf("failed to select RPC endpoint: %w", err)
	}
	endpoint := solana.EndpointLabel(rpcURL)
	solanaClient := solana.NewClient(solana.NewRPCClient(rpcURL), endpoint, m, logger,
		solana.WithTimeout(cfg.RPCTimeout),
	)
	logger.Info("using solana RPC endpoint", "endpoint", endpoint, "total_endpoints", len(cfg.SolanaRPCURLs))

	workerConfig := temporal.WorkerConfig{
		TemporalHost:      cfg.TemporalHost,
		TemporalNamespace: cfg.TemporalNamespace,
		TaskQueue:         cfg.TemporalTaskQueue,
		Scanner:           scan.NewScanner(solanaClient, table, cfg.DecodeWorkers, m, logger),
		Metrics:           m,
		Logger:            logger,
	}

	// Without NATS, scheduled scans run with publishing disabled.
	if cfg.NATSURL != "" {
		publisher, err := natspkg.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			return fmt.Errorf("failed to create NATS publisher: %w", err)
		}
		defer publisher.Close()
		workerConfig.Publisher = publisher
	}

	w, err := temporal.NewWorker(workerConfig)
	if err != nil {
		return err
	}

	if err := scheduleConfiguredMarket(ctx, cfg, logger); err != nil {
		return err
	}

	return w.Run(ctx)
}

// scheduleConfiguredMarket keeps the configured market on its scan schedule.
func scheduleConfiguredMarket(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	tc, err := temporal.NewClient(cfg.TemporalHost, cfg.TemporalNamespace, cfg.TemporalTaskQueue, logger)
	if err != nil {
		return fmt.Errorf("failed to create temporal client: %w", err)
	}
	defer tc.Close()

	err = tc.UpsertScanSchedule(ctx, temporal.ScheduleSpec{
		Program:  cfg.ProgramID.String(),
		Market:   cfg.LendingMarket.String(),
		Interval: cfg.ScanInterval,
		Publish:  cfg.NATSURL != "",
	})
	if err != nil {
		return fmt.Errorf("failed to schedule market scan: %w", err)
	}
	return nil
}

func serveMetrics(addr string, logger *slog.Logger) *http.Server {
	srv := &http.Server{Addr: addr, Handler: promhttp.Handler()}
	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return srv
}

package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/brojonat/lendscan/service/metrics"
)

// DefaultMaxConcurrentScans bounds in-flight ScanMarket activities per worker.
// Each holds every obligation buffer of a market in memory.
const DefaultMaxConcurrentScans = 2

// WorkerConfig contains configuration for the Temporal worker.
type WorkerConfig struct {
	TemporalHost      string
	TemporalNamespace string
	TaskQueue         string

	// MaxConcurrentScans defaults to DefaultMaxConcurrentScans when zero.
	MaxConcurrentScans int

	Scanner   ScannerInterface
	Publisher PublisherInterface // nil disables publishing
	Metrics   *metrics.Metrics   // nil disables metrics
	Logger    *slog.Logger
}

func (c *WorkerConfig) validate() error {
	var errs []error
	if c.Scanner == nil {
		errs = append(errs, errors.New("scanner is required"))
	}
	if c.TaskQueue == "" {
		errs = append(errs, errors.New("task queue is required"))
	}
	if c.MaxConcurrentScans < 0 {
		errs = append(errs, fmt.Errorf("max concurrent scans must not be negative, got %d", c.MaxConcurrentScans))
	}
	return errors.Join(errs...)
}

// Worker runs ScanMarketWorkflow and its activities on one task queue.
type Worker struct {
	client client.Client
	worker worker.Worker
	logger *slog.Logger
}

// NewWorker dials Temporal and registers the scan workflow and activities.
func NewWorker(config WorkerConfig) (*Worker, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid worker config: %w", err)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.MaxConcurrentScans == 0 {
		config.MaxConcurrentScans = DefaultMaxConcurrentScans
	}
	logger := config.Logger.With("component", "temporal_worker", "task_queue", config.TaskQueue)

	c, err := client.Dial(client.Options{
		HostPort:  config.TemporalHost,
		Namespace: config.TemporalNamespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal at %s: %w", config.TemporalHost, err)
	}

	w := worker.New(c, config.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: config.MaxConcurrentScans,
	})
	w.RegisterWorkflow(ScanMarketWorkflow)

	activities := NewActivities(config.Scanner, config.Publisher, config.Metrics, logger)
	w.RegisterActivity(activities.ScanMarket)
	w.RegisterActivity(activities.PublishLedger)

	logger.Info("temporal worker ready",
		"host", config.TemporalHost,
		"namespace", config.TemporalNamespace,
		"max_concurrent_scans", config.MaxConcurrentScans,
		"publishing", config.Publisher != nil,
	)

	return &Worker{client: c, worker: w, logger: logger}, nil
}

// Run processes tasks until ctx is cancelled, then stops the worker and closes
// its client.
func (w *Worker) Run(ctx context.Context) error {
	defer w.client.Close()

	stop := make(chan interface{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()

	w.logger.Info("temporal worker running")
	if err := w.worker.Run(stop); err != nil {
		return fmt.Errorf("temporal worker stopped: %w", err)
	}
	w.logger.Info("temporal worker stopped")
	return nil
}

package temporal

import (
	"context"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"
)

// Client is a production implementation of Scheduler that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

var _ Scheduler = (*Client)(nil)

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

func (c *Client) workflowAction(spec ScheduleSpec) *client.ScheduleWorkflowAction {
	return &client.ScheduleWorkflowAction{
		ID:        "scan-market-" + spec.Market,
		Workflow:  ScanMarketWorkflow,
		TaskQueue: c.taskQueue,
		Args: []interface{}{ScanMarketWorkflowInput{
			Program: spec.Program,
			Market:  spec.Market,
			Publish: spec.Publish,
		}},
	}
}

// UpsertScanSchedule creates or updates the Temporal schedule for a market.
// If the schedule already exists, its interval and arguments are replaced.
func (c *Client) UpsertScanSchedule(ctx context.Context, spec ScheduleSpec) error {
	id := scheduleID(spec.Market)
	interval := []client.ScheduleIntervalSpec{{Every: spec.Interval}}

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if _, err := handle.Describe(ctx); err != nil {
		c.logger.Debug("schedule not found, creating new one", "schedule_id", id, "error", err)

		_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
			ID:     id,
			Spec:   client.ScheduleSpec{Intervals: interval},
			Action: c.workflowAction(spec),
			Memo: map[string]interface{}{
				"market":     spec.Market,
				"program":    spec.Program,
				"created_by": "lendscan",
			},
		})
		if err != nil {
			c.logger.Error("failed to create schedule", "schedule_id", id, "error", err)
			return fmt.Errorf("failed to create schedule %q: %w", id, err)
		}
		c.logger.Info("scan schedule created", "schedule_id", id, "interval", spec.Interval)
		return nil
	}

	err := handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			input.Description.Schedule.Spec.Intervals = interval
			input.Description.Schedule.Action = c.workflowAction(spec)
			return &client.ScheduleUpdate{
				Schedule: &input.Description.Schedule,
			}, nil
		},
	})
	if err != nil {
		c.logger.Error("failed to update schedule", "schedule_id", id, "error", err)
		return fmt.Errorf("failed to update schedule %q: %w", id, err)
	}

	c.logger.Info("scan schedule updated", "schedule_id", id, "interval", spec.Interval)
	return nil
}

// DeleteScanSchedule deletes the Temporal schedule for a market.
func (c *Client) DeleteScanSchedule(ctx context.Context, market string) error {
	id := scheduleID(market)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if err := handle.Delete(ctx); err != nil {
		c.logger.Error("failed to delete schedule", "schedule_id", id, "error", err)
		return fmt.Errorf("failed to delete schedule %q: %w", id, err)
	}

	c.logger.Info("scan schedule deleted", "schedule_id", id)
	return nil
}

// StartScan starts a one-off scan outside any schedule and returns its ids.
func (c *Client) StartScan(ctx context.Context, input ScanMarketWorkflowInput) (workflowID, runID string, err error) {
	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "scan-market-manual-" + input.Market,
		TaskQueue: c.taskQueue,
	}, ScanMarketWorkflow, input)
	if err != nil {
		return "", "", fmt.Errorf("failed to start scan: %w", err)
	}
	c.logger.Info("scan started", "workflow_id", run.GetID(), "run_id", run.GetRunID())
	return run.GetID(), run.GetRunID(), nil
}

// AwaitScan blocks until the workflow finishes and returns its result.
func (c *Client) AwaitScan(ctx context.Context, workflowID, runID string) (*ScanMarketWorkflowResult, error) {
	var result ScanMarketWorkflowResult
	if err := c.client.GetWorkflow(ctx, workflowID, runID).Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("scan %s failed: %w", workflowID, err)
	}
	return &result, nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}

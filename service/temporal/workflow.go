package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// ScanMarketWorkflowInput selects the market a scheduled scan covers.
type ScanMarketWorkflowInput struct {
	Program string `json:"program"`
	Market  string `json:"market"`
	Publish bool   `json:"publish"`
}

// ScanMarketWorkflowResult summarizes one scheduled scan.
type ScanMarketWorkflowResult struct {
	ScanID    string            `json:"scan_id"`
	Market    string            `json:"market"`
	Scan      *ScanMarketResult `json:"scan,omitempty"`
	Published bool              `json:"published"`
	Subject   string            `json:"subject,omitempty"`
	Error     *string           `json:"error,omitempty"`
}

// ScanMarketWorkflow scans a lending market and optionally publishes the
// resulting ledger. It is triggered by a Temporal schedule.
//
// A failed publish does not fail the workflow: the scan result is still
// returned and the next scheduled run publishes a fresh snapshot.
func ScanMarketWorkflow(ctx workflow.Context, input ScanMarketWorkflowInput) (*ScanMarketWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	scanID := workflow.GetInfo(ctx).WorkflowExecution.RunID
	logger.Info("ScanMarketWorkflow started", "market", input.Market, "scan_id", scanID)

	result := &ScanMarketWorkflowResult{
		ScanID: scanID,
		Market: input.Market,
	}

	scanCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	})

	var scanResult *ScanMarketResult
	err := workflow.ExecuteActivity(scanCtx, a.ScanMarket, ScanMarketInput{
		ScanID:  scanID,
		Program: input.Program,
		Market:  input.Market,
	}).Get(ctx, &scanResult)
	if err != nil {
		errMsg := fmt.Sprintf("failed to scan market: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to scan market: %w", err)
	}
	result.Scan = scanResult

	logger.Info("scanned market",
		"market", input.Market,
		"accounts", scanResult.Accounts,
		"assets", len(scanResult.Report.Assets),
	)

	if !input.Publish {
		return result, nil
	}

	publishCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	})

	var publishResult *PublishLedgerResult
	err = workflow.ExecuteActivity(publishCtx, a.PublishLedger, PublishLedgerInput{
		ScanID:   scanID,
		Report:   scanResult.Report,
		Accounts: scanResult.Accounts,
		Duration: scanResult.Duration,
	}).Get(ctx, &publishResult)
	if err != nil {
		logger.Warn("failed to publish ledger", "market", input.Market, "error", err)
		errMsg := fmt.Sprintf("failed to publish ledger: %v", err)
		result.Error = &errMsg
		return result, nil
	}

	result.Published = true
	result.Subject = publishResult.Subject
	return result, nil
}

package temporal

import (
	"context"
	"time"
)

// ScheduleSpec describes a recurring market scan.
type ScheduleSpec struct {
	Program  string        `json:"program"`
	Market   string        `json:"market"`
	Interval time.Duration `json:"interval"`
	Publish  bool          `json:"publish"`
}

// Scheduler manages Temporal schedules for market scans.
// Each market gets its own schedule that triggers the ScanMarketWorkflow.
type Scheduler interface {
	// UpsertScanSchedule creates the schedule for spec.Market, or updates its
	// interval and arguments if it already exists.
	UpsertScanSchedule(ctx context.Context, spec ScheduleSpec) error

	// DeleteScanSchedule deletes the schedule for market.
	DeleteScanSchedule(ctx context.Context, market string) error
}

// scheduleID returns the Temporal schedule ID for a market.
func scheduleID(market string) string {
	return "scan-market-" + market
}

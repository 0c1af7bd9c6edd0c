package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	temporalsdk "go.temporal.io/sdk/temporal"

	"github.com/brojonat/lendscan/service/ledger"
	"github.com/brojonat/lendscan/service/lending"
	"github.com/brojonat/lendscan/service/metrics"
	natspkg "github.com/brojonat/lendscan/service/nats"
	"github.com/brojonat/lendscan/service/reserves"
	"github.com/brojonat/lendscan/service/scan"
)

// ScanMarketInput contains parameters for the ScanMarket activity.
type ScanMarketInput struct {
	ScanID  string `json:"scan_id"`
	Program string `json:"program"`
	Market  string `json:"market"`
}

// ScanMarketResult contains the result of one market scan.
type ScanMarketResult struct {
	ScanID   string         `json:"scan_id"`
	Report   *ledger.Report `json:"report"`
	Accounts int            `json:"accounts"`
	Duration time.Duration  `json:"duration_ns"`
}

// PublishLedgerInput contains parameters for the PublishLedger activity.
type PublishLedgerInput struct {
	ScanID   string         `json:"scan_id"`
	Report   *ledger.Report `json:"report"`
	Accounts int            `json:"accounts"`
	Duration time.Duration  `json:"duration_ns"`
}

// PublishLedgerResult contains the result of publishing a snapshot.
type PublishLedgerResult struct {
	Subject string `json:"subject"`
}

// ScannerInterface defines the scan operations needed by activities.
// This allows for easy mocking in tests.
type ScannerInterface interface {
	Run(ctx context.Context, params scan.Params) (*scan.Result, error)
	Table() *reserves.Table
}

// PublisherInterface defines the NATS publishing operations needed by activities.
type PublisherInterface interface {
	PublishLedger(ctx context.Context, event *natspkg.LedgerEvent) error
}

// Activities holds the dependencies needed by Temporal activities.
// All dependencies are explicit.
type Activities struct {
	scanner   ScannerInterface
	publisher PublisherInterface
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// publisher and m may be nil.
func NewActivities(scanner ScannerInterface, publisher PublisherInterface, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		scanner:   scanner,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// ScanMarket runs one scan of the market and returns its report.
// A market account that fetches but does not decode, or is owned by another
// program, is not retried; another attempt would read the same account.
func (a *Activities) ScanMarket(ctx context.Context, input ScanMarketInput) (result *ScanMarketResult, err error) {
	defer a.recordDuration("ScanMarket", time.Now(), &err)

	program, err := solanago.PublicKeyFromBase58(input.Program)
	if err != nil {
		return nil, temporalsdk.NewNonRetryableApplicationError("invalid program id", "InvalidInput", err)
	}
	market, err := solanago.PublicKeyFromBase58(input.Market)
	if err != nil {
		return nil, temporalsdk.NewNonRetryableApplicationError("invalid market", "InvalidInput", err)
	}

	a.logger.InfoContext(ctx, "scanning market", "scan_id", input.ScanID, "market", input.Market)

	res, err := a.scanner.Run(ctx, scan.Params{Program: program, Market: market})
	if err != nil {
		var decodeErr *lending.DecodeError
		switch {
		case errors.As(err, &decodeErr):
			return nil, temporalsdk.NewNonRetryableApplicationError("lending market does not decode", "DecodeError", err)
		case errors.Is(err, scan.ErrWrongOwner):
			return nil, temporalsdk.NewNonRetryableApplicationError("lending market has the wrong owner", "WrongOwner", err)
		}
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	return &ScanMarketResult{
		ScanID:   input.ScanID,
		Report:   res.Report(a.scanner.Table()),
		Accounts: res.Accounts,
		Duration: res.Duration,
	}, nil
}

// PublishLedger publishes a scan report to NATS.
func (a *Activities) PublishLedger(ctx context.Context, input PublishLedgerInput) (result *PublishLedgerResult, err error) {
	defer a.recordDuration("PublishLedger", time.Now(), &err)

	if a.publisher == nil {
		return nil, temporalsdk.NewNonRetryableApplicationError("no publisher configured", "Unconfigured", nil)
	}
	if input.Report == nil {
		return nil, temporalsdk.NewNonRetryableApplicationError("report is required", "InvalidInput", nil)
	}

	event := natspkg.NewLedgerEvent(input.ScanID, input.Report, input.Accounts, input.Duration)
	if err := a.publisher.PublishLedger(ctx, event); err != nil {
		a.logger.ErrorContext(ctx, "failed to publish ledger", "scan_id", input.ScanID, "error", err)
		return nil, fmt.Errorf("failed to publish ledger: %w", err)
	}

	a.logger.InfoContext(ctx, "published ledger",
		"scan_id", input.ScanID,
		"subject", event.Subject(),
		"assets", len(input.Report.Assets),
	)
	return &PublishLedgerResult{Subject: event.Subject()}, nil
}

func (a *Activities) recordDuration(activity string, start time.Time, err *error) {
	if a.metrics == nil {
		return
	}
	status := "success"
	if *err != nil {
		status = "error"
	}
	a.metrics.RecordActivityDuration(activity, status, time.Since(start).Seconds())
}

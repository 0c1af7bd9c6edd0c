package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	temporalsdk "go.temporal.io/sdk/temporal"

	"github.com/brojonat/lendscan/service/ledger"
	"github.com/brojonat/lendscan/service/lending"
	"github.com/brojonat/lendscan/service/metrics"
	natspkg "github.com/brojonat/lendscan/service/nats"
	"github.com/brojonat/lendscan/service/reserves"
	"github.com/brojonat/lendscan/service/scan"
)

const (
	testProgram = "So1endDq2YkqhipRh3WViPa8hdiSpxWy6z3Z6tMCpAo"
	testMarket  = "4UpD2fh7xH3VP9QQaXtsS1YY3bxzWhtfpks7FatyKvdY"
)

// Mock Scanner
type MockScanner struct {
	mock.Mock
}

func (m *MockScanner) Run(ctx context.Context, params scan.Params) (*scan.Result, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scan.Result), args.Error(1)
}

func (m *MockScanner) Table() *reserves.Table {
	return reserves.DefaultTable()
}

// Mock Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishLedger(ctx context.Context, event *natspkg.LedgerEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func sampleScanResult() *scan.Result {
	l := ledger.New()
	l.Deposits["SOL"] = 350
	l.Borrows["USDC"] = 6
	l.Obligations = 2
	return &scan.Result{
		Market:         solanago.MustPublicKeyFromBase58(testMarket),
		Ledger:         l,
		Accounts:       3,
		DecodeFailures: 1,
		FailuresByKind: map[string]int{"length": 1},
		StartedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Duration:       2 * time.Second,
	}
}

func assertNonRetryable(t *testing.T, err error) {
	t.Helper()
	var appErr *temporalsdk.ApplicationError
	require.True(t, errors.As(err, &appErr), "expected an application error, got %v", err)
	assert.True(t, appErr.NonRetryable())
}

func TestScanMarket_Success(t *testing.T) {
	scanner := new(MockScanner)
	scanner.On("Run", mock.Anything, scan.Params{
		Program: solanago.MustPublicKeyFromBase58(testProgram),
		Market:  solanago.MustPublicKeyFromBase58(testMarket),
	}).Return(sampleScanResult(), nil)

	m := metrics.NewMetrics(prometheus.NewRegistry())
	activities := NewActivities(scanner, nil, m, slog.Default())

	result, err := activities.ScanMarket(context.Background(), ScanMarketInput{
		ScanID:  "scan-1",
		Program: testProgram,
		Market:  testMarket,
	})
	require.NoError(t, err)

	assert.Equal(t, "scan-1", result.ScanID)
	assert.Equal(t, 3, result.Accounts)
	assert.Equal(t, 2*time.Second, result.Duration)
	require.NotNil(t, result.Report)
	assert.Equal(t, testMarket, result.Report.Market)
	assert.Equal(t, 1, result.Report.DecodeFailures)

	sol, ok := result.Report.Asset("SOL")
	require.True(t, ok)
	assert.Equal(t, uint64(350), sol.Deposited)
	require.NotNil(t, sol.Decimals)
	assert.Equal(t, uint8(9), *sol.Decimals)

	scanner.AssertExpectations(t)
}

func TestScanMarket_InvalidInput(t *testing.T) {
	scanner := new(MockScanner)
	activities := NewActivities(scanner, nil, nil, nil)

	_, err := activities.ScanMarket(context.Background(), ScanMarketInput{Program: "not-base58!", Market: testMarket})
	assertNonRetryable(t, err)

	_, err = activities.ScanMarket(context.Background(), ScanMarketInput{Program: testProgram, Market: "0OIl"})
	assertNonRetryable(t, err)

	scanner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestScanMarket_DecodeErrorIsNotRetried(t *testing.T) {
	_, decodeErr := lending.DecodeLendingMarket(make([]byte, 3))
	require.Error(t, decodeErr)

	scanner := new(MockScanner)
	scanner.On("Run", mock.Anything, mock.Anything).
		Return(nil, errors.Join(scan.ErrMarket, decodeErr))

	activities := NewActivities(scanner, nil, nil, nil)
	_, err := activities.ScanMarket(context.Background(), ScanMarketInput{Program: testProgram, Market: testMarket})
	assertNonRetryable(t, err)
}

func TestScanMarket_WrongOwnerIsNotRetried(t *testing.T) {
	scanner := new(MockScanner)
	scanner.On("Run", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: %w: market owned by someone else", scan.ErrMarket, scan.ErrWrongOwner))

	activities := NewActivities(scanner, nil, nil, nil)
	_, err := activities.ScanMarket(context.Background(), ScanMarketInput{Program: testProgram, Market: testMarket})
	assertNonRetryable(t, err)

	var appErr *temporalsdk.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "WrongOwner", appErr.Type())
}

func TestScanMarket_RPCErrorIsRetryable(t *testing.T) {
	scanner := new(MockScanner)
	scanner.On("Run", mock.Anything, mock.Anything).
		Return(nil, errors.New("rpc unavailable"))

	activities := NewActivities(scanner, nil, nil, nil)
	_, err := activities.ScanMarket(context.Background(), ScanMarketInput{Program: testProgram, Market: testMarket})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc unavailable")

	var appErr *temporalsdk.ApplicationError
	assert.False(t, errors.As(err, &appErr))
}

func TestPublishLedger_Success(t *testing.T) {
	publisher := natspkg.NewMockPublisher()
	activities := NewActivities(new(MockScanner), publisher, nil, nil)

	report := sampleScanResult().Report(reserves.DefaultTable())
	result, err := activities.PublishLedger(context.Background(), PublishLedgerInput{
		ScanID:   "scan-1",
		Report:   report,
		Accounts: 3,
		Duration: time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, natspkg.SubjectForMarket(testMarket), result.Subject)

	events := publisher.EventsForMarket(testMarket)
	require.Len(t, events, 1)
	assert.Equal(t, "scan-1", events[0].ScanID)
	assert.Equal(t, 3, events[0].AccountsScanned)
	assert.Same(t, report, events[0].Report)
}

func TestPublishLedger_Errors(t *testing.T) {
	report := sampleScanResult().Report(nil)

	t.Run("no publisher", func(t *testing.T) {
		activities := NewActivities(new(MockScanner), nil, nil, nil)
		_, err := activities.PublishLedger(context.Background(), PublishLedgerInput{ScanID: "s", Report: report})
		assertNonRetryable(t, err)
	})

	t.Run("missing report", func(t *testing.T) {
		publisher := new(MockPublisher)
		activities := NewActivities(new(MockScanner), publisher, nil, nil)
		_, err := activities.PublishLedger(context.Background(), PublishLedgerInput{ScanID: "s"})
		assertNonRetryable(t, err)
		publisher.AssertNotCalled(t, "PublishLedger", mock.Anything, mock.Anything)
	})

	t.Run("publish failure", func(t *testing.T) {
		publisher := new(MockPublisher)
		publisher.On("PublishLedger", mock.Anything, mock.Anything).Return(errors.New("nats down"))

		activities := NewActivities(new(MockScanner), publisher, nil, nil)
		_, err := activities.PublishLedger(context.Background(), PublishLedgerInput{ScanID: "s", Report: report})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nats down")
		publisher.AssertExpectations(t)
	})
}

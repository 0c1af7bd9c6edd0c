// Package scan runs one bulk pass over a lending market: fetch the market and
// its obligations, decode them, and fold the result into a ledger.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/sync/errgroup"

	"github.com/brojonat/lendscan/service/ledger"
	"github.com/brojonat/lendscan/service/lending"
	"github.com/brojonat/lendscan/service/metrics"
	"github.com/brojonat/lendscan/service/reserves"
	solanapkg "github.com/brojonat/lendscan/service/solana"
)

// ErrMarket is returned when the lending market account cannot be fetched or
// decoded. Without it the obligation batch cannot be trusted, so the run aborts.
var ErrMarket = errors.New("lending market unavailable")

// ErrWrongOwner is wrapped alongside ErrMarket when the market account is
// owned by a different program.
var ErrWrongOwner = errors.New("account owned by another program")

// Failure kinds beyond those reported by lending.FailureKind.
const (
	failureOwner  = "owner"
	failureMarket = "market"
)

// AccountSource fetches raw accounts. *solana.Client implements it.
type AccountSource interface {
	GetAccount(ctx context.Context, key solana.PublicKey) (*solanapkg.RawAccount, error)
	GetProgramAccounts(ctx context.Context, program solana.PublicKey, filters []rpc.RPCFilter) ([]*solanapkg.RawAccount, error)
}

// Params selects the market to scan.
type Params struct {
	Program solana.PublicKey
	Market  solana.PublicKey
}

// Result is the outcome of one scan.
type Result struct {
	Market         solana.PublicKey       `json:"market"`
	LendingMarket  *lending.LendingMarket `json:"lending_market"`
	Ledger         *ledger.Ledger         `json:"ledger"`
	Accounts       int                    `json:"accounts"`
	DecodeFailures int                    `json:"decode_failures"`
	FailuresByKind map[string]int         `json:"failures_by_kind,omitempty"`
	StartedAt      time.Time              `json:"started_at"`
	Duration       time.Duration          `json:"duration_ns"`
}

// Report renders the result as a ledger report.
func (r *Result) Report(decimals ledger.DecimalsLookup) *ledger.Report {
	report := ledger.NewReport(r.Market.String(), r.Ledger, decimals)
	report.DecodeFailures = r.DecodeFailures
	report.GeneratedAt = r.StartedAt.Add(r.Duration).UTC()
	return report
}

// Scanner runs market scans. It is safe for concurrent use.
type Scanner struct {
	source     AccountSource
	table      *reserves.Table
	aggregator *ledger.Aggregator
	workers    int
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewScanner creates a scanner decoding with up to workers goroutines.
// If m is nil, no metrics will be recorded.
func NewScanner(source AccountSource, table *reserves.Table, workers int, m *metrics.Metrics, logger *slog.Logger) *Scanner {
	if workers < 1 {
		workers = 1
	}
	return &Scanner{
		source:     source,
		table:      table,
		aggregator: ledger.NewAggregator(table, logger),
		workers:    workers,
		metrics:    m,
		logger:     logger,
	}
}

// Table returns the reserve table the scanner resolves against.
func (s *Scanner) Table() *reserves.Table {
	return s.table
}

// Run scans the market once.
func (s *Scanner) Run(ctx context.Context, params Params) (*Result, error) {
	start := time.Now()
	market := params.Market.String()

	result, err := s.run(ctx, params, start)
	status := "success"
	if err != nil {
		status = "error"
	}
	if s.metrics != nil {
		s.metrics.RecordScanDuration(market, status, time.Since(start).Seconds())
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "scan failed", "market", market, "error", err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "scan complete",
		"market", market,
		"accounts", result.Accounts,
		"obligations", result.Ledger.Obligations,
		"decode_failures", result.DecodeFailures,
		"unresolved", result.Ledger.Unresolved,
		"overflows", result.Ledger.Overflows,
		"duration", result.Duration,
	)
	return result, nil
}

func (s *Scanner) run(ctx context.Context, params Params, start time.Time) (*Result, error) {
	market := params.Market.String()

	lm, err := s.fetchMarket(ctx, params)
	if err != nil {
		return nil, err
	}

	accounts, err := s.source.GetProgramAccounts(ctx, params.Program, solanapkg.ObligationFilters(params.Market))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch obligations: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordAccountsFetched(market, "obligation", len(accounts))
	}
	s.logger.InfoContext(ctx, "fetched obligations", "market", market, "count", len(accounts))

	obligations, failures, err := s.decodeAll(ctx, params, accounts)
	if err != nil {
		return nil, err
	}

	l := s.aggregator.Aggregate(obligations)

	result := &Result{
		Market:         params.Market,
		LendingMarket:  lm,
		Ledger:         l,
		Accounts:       len(accounts),
		FailuresByKind: failures,
		StartedAt:      start.UTC(),
		Duration:       time.Since(start),
	}
	for _, n := range failures {
		result.DecodeFailures += n
	}

	if s.metrics != nil {
		for kind, n := range failures {
			s.metrics.RecordDecodeFailures(market, kind, n)
		}
		for reserve, n := range l.UnresolvedReserves {
			s.metrics.RecordUnresolved(market, reserve, n)
		}
		if l.Overflows > 0 {
			s.metrics.RecordOverflows(market, l.Overflows)
		}
		s.metrics.SetAssetTotals(market, l.Deposits, l.Borrows)
	}
	return result, nil
}

func (s *Scanner) fetchMarket(ctx context.Context, params Params) (*lending.LendingMarket, error) {
	acc, err := s.source.GetAccount(ctx, params.Market)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMarket, err)
	}
	if !params.Program.IsZero() && !acc.Owner.Equals(params.Program) {
		return nil, fmt.Errorf("%w: %w: %s is owned by %s, not %s", ErrMarket, ErrWrongOwner, params.Market, acc.Owner, params.Program)
	}
	lm, err := lending.DecodeLendingMarket(acc.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMarket, err)
	}
	return lm, nil
}

// decodeAll decodes accounts on a bounded pool. Results are written by index
// so the output does not depend on scheduling. Individual decode failures are
// counted, never returned.
func (s *Scanner) decodeAll(ctx context.Context, params Params, accounts []*solanapkg.RawAccount) ([]*lending.Obligation, map[string]int, error) {
	obligations := make([]*lending.Obligation, len(accounts))
	kinds := make([]string, len(accounts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, acc := range accounts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			o, kind, err := decodeObligation(acc, params)
			if err != nil {
				kinds[i] = kind
				s.logger.WarnContext(gctx, "skipping undecodable obligation",
					"account", acc.Pubkey.String(),
					"kind", kind,
					"error", err,
				)
				return nil
			}
			obligations[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("decode interrupted: %w", err)
	}

	failures := make(map[string]int)
	for _, kind := range kinds {
		if kind != "" {
			failures[kind]++
		}
	}
	return obligations, failures, nil
}

// decodeObligation decodes acc and re-checks what the RPC filters promised.
func decodeObligation(acc *solanapkg.RawAccount, params Params) (*lending.Obligation, string, error) {
	if !params.Program.IsZero() && !acc.Owner.Equals(params.Program) {
		return nil, failureOwner, fmt.Errorf("owned by %s", acc.Owner)
	}
	o, err := lending.DecodeObligation(acc.Data)
	if err != nil {
		return nil, lending.FailureKind(err), err
	}
	if !o.LendingMarket.Equals(params.Market) {
		return nil, failureMarket, fmt.Errorf("belongs to market %s", o.LendingMarket)
	}
	return o, "", nil
}

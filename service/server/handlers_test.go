package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/lendscan/service/config"
	"github.com/brojonat/lendscan/service/ledger"
	"github.com/brojonat/lendscan/service/lending"
	"github.com/brojonat/lendscan/service/metrics"
	"github.com/brojonat/lendscan/service/reserves"
	"github.com/brojonat/lendscan/service/scan"
	solanapkg "github.com/brojonat/lendscan/service/solana"
	"github.com/brojonat/lendscan/service/temporal"
)

const (
	testSOLReserve = "8PbodeaosQP19SjYFx855UMqWxH2HynZLdBXmsrbac36"
	testMissing    = "DYw8jCTfwHNRJhhmFcbXvVDTqWMEVFBX6ZKUmG5CNSKK"
)

type fakeScanner struct {
	runs     atomic.Int32
	runErr   error
	reserves map[string]*lending.Reserve
	block    chan struct{}
	started  chan struct{}
}

func (f *fakeScanner) Run(ctx context.Context, params scan.Params) (*scan.Result, error) {
	f.runs.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.runErr != nil {
		return nil, f.runErr
	}
	l := ledger.New()
	l.Deposits["SOL"] = 350
	l.Borrows["USDC"] = 3
	l.Obligations = 2
	return &scan.Result{
		Market:    params.Market,
		Ledger:    l,
		Accounts:  2,
		StartedAt: time.Now(),
	}, nil
}

func (f *fakeScanner) Table() *reserves.Table {
	return reserves.DefaultTable()
}

func (f *fakeScanner) InspectReserve(ctx context.Context, key solanago.PublicKey) (*lending.Reserve, error) {
	r, ok := f.reserves[key.String()]
	if !ok {
		return nil, solanapkg.ErrAccountNotFound
	}
	return r, nil
}

func (f *fakeScanner) InspectObligation(ctx context.Context, key solanago.PublicKey) (*lending.Obligation, error) {
	return lending.DecodeObligation(make([]byte, 12))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		ProgramID:     solanago.MustPublicKeyFromBase58(config.DefaultProgramID),
		LendingMarket: solanago.MustPublicKeyFromBase58(config.DefaultLendingMarket),
		ScanInterval:  time.Hour,
		RPCTimeout:    time.Minute,
	}
}

func newTestServer(t *testing.T, scanner *fakeScanner, scheduler temporal.Scheduler) http.Handler {
	t.Helper()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	return New(":0", testConfig(), scanner, time.Minute, scheduler, nil, m, testLogger()).Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestGetLedger(t *testing.T) {
	scanner := &fakeScanner{}
	h := newTestServer(t, scanner, nil)

	w := do(t, h, http.MethodGet, "/api/v1/ledger", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "miss", w.Header().Get("X-Ledger-Cache"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	var report ledger.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, config.DefaultLendingMarket, report.Market)
	assert.Equal(t, 2, report.Obligations)

	sol, ok := report.Asset("SOL")
	require.True(t, ok)
	assert.Equal(t, uint64(350), sol.Deposited)
	assert.Equal(t, "0.00000035", sol.DepositedUI)

	w = do(t, h, http.MethodGet, "/api/v1/ledger", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hit", w.Header().Get("X-Ledger-Cache"))
	assert.Equal(t, int32(1), scanner.runs.Load())

	w = do(t, h, http.MethodGet, "/api/v1/ledger?refresh=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "miss", w.Header().Get("X-Ledger-Cache"))
	assert.Equal(t, int32(2), scanner.runs.Load())

	w = do(t, h, http.MethodGet, "/api/v1/ledger?refresh=maybe", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetLedger_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "market unavailable", err: fmt.Errorf("%w: %w", scan.ErrMarket, errors.New("boom")), status: http.StatusBadGateway},
		{name: "timeout", err: fmt.Errorf("rpc: %w", context.DeadlineExceeded), status: http.StatusGatewayTimeout},
		{name: "other", err: errors.New("rpc unavailable"), status: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, &fakeScanner{runErr: tt.err}, nil)
			w := do(t, h, http.MethodGet, "/api/v1/ledger", "")
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestListReserves(t *testing.T) {
	h := newTestServer(t, &fakeScanner{}, nil)

	w := do(t, h, http.MethodGet, "/api/v1/reserves", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Reserves []reserveResponse `json:"reserves"`
		Count    int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, reserves.DefaultTable().Len(), resp.Count)
	assert.Contains(t, resp.Reserves, reserveResponse{Address: testSOLReserve, Symbol: "SOL", Decimals: 9})
}

func TestGetReserve(t *testing.T) {
	scanner := &fakeScanner{reserves: map[string]*lending.Reserve{
		testSOLReserve: {Version: lending.ProgramVersion, Liquidity: lending.ReserveLiquidity{MintDecimals: 9}},
	}}
	h := newTestServer(t, scanner, nil)

	w := do(t, h, http.MethodGet, "/api/v1/reserves/"+testSOLReserve, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"symbol":"SOL"`)
	assert.Contains(t, w.Body.String(), `"mint_decimals":9`)

	w = do(t, h, http.MethodGet, "/api/v1/reserves/"+testMissing, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/reserves/0OIl", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "base58")

	w = do(t, h, http.MethodGet, "/api/v1/reserves/"+strings.Repeat("1", 120), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "too long")

	w = do(t, h, http.MethodGet, "/api/v1/reserves/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "32-byte")
}

func TestGetObligation_DecodeError(t *testing.T) {
	h := newTestServer(t, &fakeScanner{}, nil)

	w := do(t, h, http.MethodGet, "/api/v1/obligations/"+testMissing, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "obligation")
}

func TestSchedules(t *testing.T) {
	scheduler := temporal.NewMockScheduler()
	h := newTestServer(t, &fakeScanner{}, scheduler)
	market := config.DefaultLendingMarket

	w := do(t, h, http.MethodPut, "/api/v1/schedules/"+market, `{"interval":"15m","publish":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	spec, ok := scheduler.Schedule(market)
	require.True(t, ok)
	assert.Equal(t, 15*time.Minute, spec.Interval)
	assert.True(t, spec.Publish)
	assert.Equal(t, config.DefaultProgramID, spec.Program)

	w = do(t, h, http.MethodPut, "/api/v1/schedules/"+market, `{}`)
	require.Equal(t, http.StatusOK, w.Code)
	spec, _ = scheduler.Schedule(market)
	assert.Equal(t, time.Hour, spec.Interval, "falls back to the configured interval")

	w = do(t, h, http.MethodDelete, "/api/v1/schedules/"+market, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, scheduler.Count())

	w = do(t, h, http.MethodDelete, "/api/v1/schedules/"+market, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestUpsertSchedule_InvalidInput(t *testing.T) {
	scheduler := temporal.NewMockScheduler()
	h := newTestServer(t, &fakeScanner{}, scheduler)
	target := "/api/v1/schedules/" + config.DefaultLendingMarket

	tests := []struct {
		name     string
		body     string
		contains string
	}{
		{name: "malformed JSON", body: `{"interval":`, contains: "invalid request body"},
		{name: "bad duration", body: `{"interval":"soon"}`, contains: "invalid interval"},
		{name: "too frequent", body: `{"interval":"10s"}`, contains: "at least"},
		{name: "too rare", body: `{"interval":"48h"}`, contains: "cannot exceed"},
		{name: "too large", body: `{"interval":"` + strings.Repeat("1", 1<<17) + `"}`, contains: "too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPut, target, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.contains)
		})
	}
	assert.Equal(t, 0, scheduler.Count())
}

func TestSchedules_NotConfigured(t *testing.T) {
	h := newTestServer(t, &fakeScanner{}, nil)

	w := do(t, h, http.MethodPut, "/api/v1/schedules/"+config.DefaultLendingMarket, `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(t, h, http.MethodDelete, "/api/v1/schedules/"+config.DefaultLendingMarket, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestUpsertSchedule_SchedulerError(t *testing.T) {
	scheduler := temporal.NewMockScheduler()
	scheduler.SetUpsertError(errors.New("temporal unavailable"))
	h := newTestServer(t, &fakeScanner{}, scheduler)

	w := do(t, h, http.MethodPut, "/api/v1/schedules/"+config.DefaultLendingMarket, `{"interval":"1h"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHealthAndPreflight(t *testing.T) {
	h := newTestServer(t, &fakeScanner{}, nil)

	w := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	w = do(t, h, http.MethodOptions, "/api/v1/ledger", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PUT")
}

func TestLedgerCache_SharesConcurrentScans(t *testing.T) {
	scanner := &fakeScanner{block: make(chan struct{})}
	cache := newLedgerCache(scanner, time.Minute, 0, time.Now)
	params := scan.Params{Market: solanago.MustPublicKeyFromBase58(config.DefaultLendingMarket)}

	var wg sync.WaitGroup
	results := make([]*scan.Result, 5)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, _, err := cache.Get(context.Background(), params, false)
			assert.NoError(t, err)
			results[i] = res
		}()
	}

	// Let goroutines pile up behind the first scan before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(scanner.block)
	wg.Wait()

	assert.LessOrEqual(t, scanner.runs.Load(), int32(5))
	for _, r := range results {
		assert.NotNil(t, r)
	}
}

func TestLedgerCache_Expires(t *testing.T) {
	scanner := &fakeScanner{}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := newLedgerCache(scanner, time.Minute, 0, func() time.Time { return now })
	params := scan.Params{Market: solanago.MustPublicKeyFromBase58(config.DefaultLendingMarket)}

	_, cached, err := cache.Get(context.Background(), params, false)
	require.NoError(t, err)
	assert.False(t, cached)

	now = now.Add(30 * time.Second)
	_, cached, err = cache.Get(context.Background(), params, false)
	require.NoError(t, err)
	assert.True(t, cached)

	now = now.Add(time.Minute)
	_, cached, err = cache.Get(context.Background(), params, false)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, int32(2), scanner.runs.Load())
}

func TestLedgerCache_ErrorsAreNotCached(t *testing.T) {
	scanner := &fakeScanner{runErr: errors.New("rpc unavailable")}
	cache := newLedgerCache(scanner, time.Minute, 0, time.Now)
	params := scan.Params{Market: solanago.MustPublicKeyFromBase58(config.DefaultLendingMarket)}

	_, _, err := cache.Get(context.Background(), params, false)
	require.Error(t, err)
	_, _, err = cache.Get(context.Background(), params, false)
	require.Error(t, err)
	assert.Equal(t, int32(2), scanner.runs.Load())
}

func TestLedgerCache_LeaderCancelDoesNotFailWaiters(t *testing.T) {
	scanner := &fakeScanner{block: make(chan struct{}), started: make(chan struct{}, 1)}
	cache := newLedgerCache(scanner, time.Minute, 0, time.Now)
	params := scan.Params{Market: solanago.MustPublicKeyFromBase58(config.DefaultLendingMarket)}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, _, err := cache.Get(leaderCtx, params, false)
		leaderErr <- err
	}()
	<-scanner.started

	type outcome struct {
		result *scan.Result
		err    error
	}
	waiter := make(chan outcome, 1)
	go func() {
		res, _, err := cache.Get(context.Background(), params, false)
		waiter <- outcome{res, err}
	}()
	// Let the waiter join the in-flight scan.
	time.Sleep(50 * time.Millisecond)

	cancelLeader()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	close(scanner.block)
	got := <-waiter
	require.NoError(t, got.err)
	assert.NotNil(t, got.result)
	assert.Equal(t, int32(1), scanner.runs.Load())

	_, cached, err := cache.Get(context.Background(), params, false)
	require.NoError(t, err)
	assert.True(t, cached, "the shared scan result is cached")
}

func TestLedgerCache_SharedScanTimeout(t *testing.T) {
	scanner := &fakeScanner{block: make(chan struct{})}
	cache := newLedgerCache(scanner, time.Minute, 20*time.Millisecond, time.Now)
	params := scan.Params{Market: solanago.MustPublicKeyFromBase58(config.DefaultLendingMarket)}

	_, _, err := cache.Get(context.Background(), params, false)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

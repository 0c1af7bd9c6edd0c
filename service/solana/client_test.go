package solana

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/lendscan/service/metrics"
)

var (
	testProgram = solana.MustPublicKeyFromBase58("So1endDq2YkqhipRh3WViPa8hdiSpxWy6z3Z6tMCpAo")
	testMarket  = solana.MustPublicKeyFromBase58("4UpD2fh7xH3VP9QQaXtsS1YY3bxzWhtfpks7FatyKvdY")
)

// mockRPCClient implements RPCClient for testing.
// It applies filters like a node would and fails the first failN calls with err.
type mockRPCClient struct {
	accounts map[solana.PublicKey]*rpc.Account
	err      error
	failN    int
	calls    int
	lastOpts *rpc.GetProgramAccountsOpts
}

func (m *mockRPCClient) fail() error {
	m.calls++
	if m.err != nil && m.calls <= m.failN {
		return m.err
	}
	return nil
}

func (m *mockRPCClient) GetAccountInfo(
	ctx context.Context,
	account solana.PublicKey,
	opts *rpc.GetAccountInfoOpts,
) (*rpc.GetAccountInfoResult, error) {
	if err := m.fail(); err != nil {
		return nil, err
	}
	acc, ok := m.accounts[account]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetAccountInfoResult{Value: acc}, nil
}

func (m *mockRPCClient) GetProgramAccounts(
	ctx context.Context,
	program solana.PublicKey,
	opts *rpc.GetProgramAccountsOpts,
) (rpc.GetProgramAccountsResult, error) {
	m.lastOpts = opts
	if err := m.fail(); err != nil {
		return nil, err
	}
	var out rpc.GetProgramAccountsResult
	for key, acc := range m.accounts {
		if acc.Owner != program || !MatchesFilters(opts.Filters, acc.Data.GetBinary()) {
			continue
		}
		out = append(out, &rpc.KeyedAccount{Pubkey: key, Account: acc})
	}
	return out, nil
}

func account(owner solana.PublicKey, data []byte) *rpc.Account {
	return &rpc.Account{Owner: owner, Lamports: 1_000_000, Data: rpc.DataBytesOrJSONFromBytes(data)}
}

func obligationBytes(market solana.PublicKey) []byte {
	data := make([]byte, 1300)
	data[0] = 1
	copy(data[10:42], market.Bytes())
	return data
}

func newTestClient(mock *mockRPCClient, sleeps *[]time.Duration) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(mock, "test", metrics.NewMetrics(prometheus.NewRegistry()), logger,
		WithSleep(func(ctx context.Context, d time.Duration) error {
			if sleeps != nil {
				*sleeps = append(*sleeps, d)
			}
			return nil
		}),
	)
}

func TestGetAccount(t *testing.T) {
	key := solana.NewWallet().PublicKey()
	mock := &mockRPCClient{accounts: map[solana.PublicKey]*rpc.Account{
		key: account(testProgram, []byte{1, 2, 3}),
	}}

	acc, err := newTestClient(mock, nil).GetAccount(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, key, acc.Pubkey)
	assert.Equal(t, testProgram, acc.Owner)
	assert.Equal(t, uint64(1_000_000), acc.Lamports)
	assert.Equal(t, []byte{1, 2, 3}, acc.Data)
}

func TestGetAccount_NotFound(t *testing.T) {
	mock := &mockRPCClient{}

	_, err := newTestClient(mock, nil).GetAccount(context.Background(), testMarket)
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.Equal(t, 1, mock.calls, "not found is not retried")
}

func TestGetProgramAccounts_AppliesObligationFilters(t *testing.T) {
	other := solana.NewWallet().PublicKey()
	mine := solana.NewWallet().PublicKey()

	mock := &mockRPCClient{accounts: map[solana.PublicKey]*rpc.Account{
		mine:                          account(testProgram, obligationBytes(testMarket)),
		other:                         account(testProgram, obligationBytes(other)),
		solana.NewWallet().PublicKey(): account(testProgram, make([]byte, 619)),
		solana.NewWallet().PublicKey(): account(other, obligationBytes(testMarket)),
	}}

	accounts, err := newTestClient(mock, nil).GetProgramAccounts(context.Background(), testProgram, ObligationFilters(testMarket))
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, mine, accounts[0].Pubkey)

	require.NotNil(t, mock.lastOpts)
	assert.Equal(t, solana.EncodingBase64, mock.lastOpts.Encoding)
	assert.Len(t, mock.lastOpts.Filters, 2)
}

func TestGetProgramAccounts_RetriesRateLimit(t *testing.T) {
	var sleeps []time.Duration
	mock := &mockRPCClient{
		accounts: map[solana.PublicKey]*rpc.Account{},
		err:      errors.New("rpc error: 429 Too Many Requests"),
		failN:    2,
	}

	_, err := newTestClient(mock, &sleeps).GetProgramAccounts(context.Background(), testProgram, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, mock.calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeps)
}

func TestGetProgramAccounts_GivesUpAfterMaxAttempts(t *testing.T) {
	var sleeps []time.Duration
	mock := &mockRPCClient{err: errors.New("connection reset"), failN: 10}

	_, err := newTestClient(mock, &sleeps).GetProgramAccounts(context.Background(), testProgram, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 3, mock.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps)
}

func TestGetProgramAccounts_StopsOnCancelledContext(t *testing.T) {
	mock := &mockRPCClient{err: errors.New("boom"), failN: 10}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(mock, nil).GetProgramAccounts(ctx, testProgram, nil)
	require.Error(t, err)
	assert.Equal(t, 1, mock.calls)
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
}

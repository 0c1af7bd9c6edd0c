package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/brojonat/lendscan/service/metrics"
)

// ErrAccountNotFound is returned when the requested account does not exist.
var ErrAccountNotFound = errors.New("account not found")

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetAccountInfo(
		ctx context.Context,
		account solana.PublicKey,
		opts *rpc.GetAccountInfoOpts,
	) (*rpc.GetAccountInfoResult, error)

	GetProgramAccounts(
		ctx context.Context,
		program solana.PublicKey,
		opts *rpc.GetProgramAccountsOpts,
	) (rpc.GetProgramAccountsResult, error)
}

// Client fetches raw lending accounts from a Solana node.
// It wraps the RPC client with retries, timeouts and metrics.
type Client struct {
	rpc         RPCClient
	logger      *slog.Logger
	metrics     *metrics.Metrics
	endpoint    string // RPC endpoint identifier for metrics (e.g., "mainnet", rpc host)
	timeout     time.Duration
	maxAttempts int
	sleep       func(context.Context, time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each RPC call. Program scans of a large market are slow,
// so the default is generous.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithMaxAttempts sets how many times a failing call is tried.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithSleep replaces the backoff sleep, mainly for tests.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// NewClient creates a new Solana client.
// The endpoint parameter is used for metrics labeling.
// If m is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		rpc:         rpcClient,
		logger:      logger,
		metrics:     m,
		endpoint:    endpoint,
		timeout:     120 * time.Second,
		maxAttempts: 3,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetAccount fetches a single account.
func (c *Client) GetAccount(ctx context.Context, key solana.PublicKey) (*RawAccount, error) {
	opts := &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: rpc.CommitmentConfirmed,
	}

	var result *rpc.GetAccountInfoResult
	err := c.withRetry(ctx, "GetAccountInfo", func(ctx context.Context) error {
		var err error
		result, err = c.rpc.GetAccountInfo(ctx, key, opts)
		return err
	})
	if errors.Is(err, rpc.ErrNotFound) || (err == nil && (result == nil || result.Value == nil)) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", key, err)
	}

	return toRawAccount(key, result.Value), nil
}

// GetProgramAccounts fetches every account owned by program that matches filters.
func (c *Client) GetProgramAccounts(ctx context.Context, program solana.PublicKey, filters []rpc.RPCFilter) ([]*RawAccount, error) {
	opts := &rpc.GetProgramAccountsOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: rpc.CommitmentConfirmed,
		Filters:    filters,
	}

	c.logger.DebugContext(ctx, "calling GetProgramAccounts",
		"program", program.String(),
		"filters", len(filters),
	)

	var result rpc.GetProgramAccountsResult
	err := c.withRetry(ctx, "GetProgramAccounts", func(ctx context.Context) error {
		var err error
		result, err = c.rpc.GetProgramAccounts(ctx, program, opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get program accounts for %s: %w", program, err)
	}

	if c.metrics != nil {
		c.metrics.RecordRPCAccountsPerCall(c.endpoint, float64(len(result)))
	}

	accounts := make([]*RawAccount, 0, len(result))
	for _, keyed := range result {
		if keyed == nil || keyed.Account == nil {
			continue
		}
		accounts = append(accounts, toRawAccount(keyed.Pubkey, keyed.Account))
	}

	c.logger.InfoContext(ctx, "fetched program accounts",
		"program", program.String(),
		"count", len(accounts),
	)
	return accounts, nil
}

// withRetry runs call up to maxAttempts times with exponential backoff.
// Rate limits (429) back off longer than other errors. Not-found and
// context errors are returned immediately.
func (c *Client) withRetry(ctx context.Context, method string, call func(ctx context.Context) error) error {
	var err error
	for attempt := range c.maxAttempts {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		start := time.Now()
		err = call(callCtx)
		duration := time.Since(start).Seconds()
		cancel()

		status := "success"
		if err != nil {
			status = "error"
		}
		if c.metrics != nil {
			c.metrics.RecordRPCCall(method, status, c.endpoint, duration)
		}

		if err == nil {
			return nil
		}
		if errors.Is(err, rpc.ErrNotFound) || ctx.Err() != nil {
			return err
		}
		if attempt == c.maxAttempts-1 {
			break
		}

		var backoff time.Duration
		reason := "timeout_or_error"
		if strings.Contains(err.Error(), "429") {
			reason = "rate_limit"
			backoff = time.Duration(2<<uint(attempt)) * time.Second // 2s, 4s, 8s
			if c.metrics != nil {
				c.metrics.RecordRateLimitHit(c.endpoint)
			}
		} else {
			backoff = time.Duration(1<<uint(attempt)) * time.Second // 1s, 2s, 4s
		}

		c.logger.WarnContext(ctx, "rpc call failed, retrying",
			"method", method,
			"attempt", attempt+1,
			"reason", reason,
			"error", err,
			"backoff_seconds", backoff.Seconds(),
		)
		if c.metrics != nil {
			c.metrics.RecordRPCRetry(method, reason)
		}
		if sleepErr := c.sleep(ctx, backoff); sleepErr != nil {
			return sleepErr
		}
	}

	c.logger.ErrorContext(ctx, "rpc call failed after retries",
		"method", method,
		"attempts", c.maxAttempts,
		"error", err,
	)
	return err
}

func toRawAccount(key solana.PublicKey, account *rpc.Account) *RawAccount {
	raw := &RawAccount{
		Pubkey:   key,
		Owner:    account.Owner,
		Lamports: account.Lamports,
	}
	if account.Data != nil {
		raw.Data = account.Data.GetBinary()
	}
	return raw
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

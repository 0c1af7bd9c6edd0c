// Package client is the HTTP client for the lendscan ledger service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/brojonat/lendscan/service/ledger"
)

// Reserve is one entry of the server's reserve table.
type Reserve struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// Schedule is the recurring scan the server registered for a market.
type Schedule struct {
	Market   string        `json:"market"`
	Program  string        `json:"program"`
	Interval time.Duration `json:"-"`
	Publish  bool          `json:"publish"`
}

// Client is the HTTP client for the lendscan ledger service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new ledger service client.
// Scans can take minutes on a busy market, hence the generous default timeout.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// GetLedger fetches the per-asset totals of the server's market. With refresh
// set the server rescans instead of answering from its cache.
func (c *Client) GetLedger(ctx context.Context, refresh bool) (*ledger.Report, error) {
	u := c.baseURL + "/api/v1/ledger"
	if refresh {
		u += "?refresh=true"
	}

	var report ledger.Report
	if err := c.getJSON(ctx, u, &report); err != nil {
		return nil, err
	}

	c.logger.Debug("ledger fetched", "market", report.Market, "assets", len(report.Assets))
	return &report, nil
}

// ListReserves fetches the server's reserve table.
func (c *Client) ListReserves(ctx context.Context) ([]Reserve, error) {
	var response struct {
		Reserves []Reserve `json:"reserves"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/api/v1/reserves", &response); err != nil {
		return nil, err
	}
	return response.Reserves, nil
}

// ScheduleScan asks the server to scan market every interval.
func (c *Client) ScheduleScan(ctx context.Context, market string, interval time.Duration, publish bool) (*Schedule, error) {
	body, err := json.Marshal(map[string]interface{}{
		"interval": interval.String(),
		"publish":  publish,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	u := fmt.Sprintf("%s/api/v1/schedules/%s", c.baseURL, url.PathEscape(market))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var apiSchedule scheduleResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiSchedule); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	schedule, err := responseToSchedule(&apiSchedule)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("scan scheduled", "market", market, "interval", schedule.Interval)
	return schedule, nil
}

// UnscheduleScan removes the recurring scan of market.
func (c *Client) UnscheduleScan(ctx context.Context, market string) error {
	u := fmt.Sprintf("%s/api/v1/schedules/%s", c.baseURL, url.PathEscape(market))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return c.parseErrorResponse(resp)
	}

	c.logger.Debug("scan unscheduled", "market", market)
	return nil
}

// Health reports whether the server answers its health check.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, u string, into interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// scheduleResponse is the API response format for a schedule.
// The server returns interval as a string (e.g. "15m0s").
type scheduleResponse struct {
	Market   string `json:"market"`
	Program  string `json:"program"`
	Interval string `json:"interval"`
	Publish  bool   `json:"publish"`
}

func responseToSchedule(resp *scheduleResponse) (*Schedule, error) {
	interval, err := time.ParseDuration(resp.Interval)
	if err != nil {
		return nil, fmt.Errorf("invalid interval %q: %w", resp.Interval, err)
	}
	return &Schedule{
		Market:   resp.Market,
		Program:  resp.Program,
		Interval: interval,
		Publish:  resp.Publish,
	}, nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// It is passed explicitly to every component that records metrics.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal      *prometheus.CounterVec
	solanaRPCCallDuration    *prometheus.HistogramVec
	solanaRPCRateLimitHits   *prometheus.CounterVec
	solanaRPCRetries         *prometheus.CounterVec
	solanaRPCAccountsPerCall *prometheus.HistogramVec

	// Scan Metrics
	accountsFetchedTotal      *prometheus.CounterVec
	decodeFailuresTotal       *prometheus.CounterVec
	unresolvedReferencesTotal *prometheus.CounterVec
	overflowsTotal            *prometheus.CounterVec
	scanDuration              *prometheus.HistogramVec
	assetDeposits             *prometheus.GaugeVec
	assetBorrows              *prometheus.GaugeVec

	// Workflow Metrics
	activityDuration *prometheus.HistogramVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_rate_limit_hits_total",
				Help: "Total number of Solana RPC rate limit hits (429 errors)",
			},
			[]string{"endpoint"},
		),
		solanaRPCRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_retries_total",
				Help: "Total number of Solana RPC retry attempts",
			},
			[]string{"method", "reason"},
		),
		solanaRPCAccountsPerCall: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_accounts_per_call",
				Help:    "Number of accounts returned per GetProgramAccounts call",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
			[]string{"endpoint"},
		),

		accountsFetchedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lending_accounts_fetched_total",
				Help: "Total number of lending accounts fetched by record kind",
			},
			[]string{"market", "record"},
		),
		decodeFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lending_decode_failures_total",
				Help: "Total number of accounts that failed to decode, by failure kind",
			},
			[]string{"market", "kind"},
		),
		unresolvedReferencesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lending_unresolved_references_total",
				Help: "Total number of deposit or borrow entries whose reserve is not in the table",
			},
			[]string{"market", "reserve"},
		),
		overflowsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lending_overflows_total",
				Help: "Total number of entries excluded because an amount overflowed u64",
			},
			[]string{"market"},
		),
		scanDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lending_scan_duration_seconds",
				Help:    "Duration of a full market scan in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"market", "status"},
		),
		assetDeposits: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lending_asset_deposits",
				Help: "Total deposited amount per asset in native units from the last scan",
			},
			[]string{"market", "symbol"},
		),
		assetBorrows: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lending_asset_borrows",
				Help: "Total borrowed amount per asset in native units from the last scan",
			},
			[]string{"market", "symbol"},
		),

		activityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scan_activity_duration_seconds",
				Help:    "Duration of scan workflow activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"activity", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.solanaRPCRateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(method, reason string) {
	m.solanaRPCRetries.WithLabelValues(method, reason).Inc()
}

// RecordRPCAccountsPerCall records the number of accounts a program scan returned.
func (m *Metrics) RecordRPCAccountsPerCall(endpoint string, count float64) {
	m.solanaRPCAccountsPerCall.WithLabelValues(endpoint).Observe(count)
}

// Scan metric helpers

// RecordAccountsFetched records accounts fetched for a record kind.
func (m *Metrics) RecordAccountsFetched(market, record string, count int) {
	m.accountsFetchedTotal.WithLabelValues(market, record).Add(float64(count))
}

// RecordDecodeFailures records accounts that could not be decoded.
func (m *Metrics) RecordDecodeFailures(market, kind string, count int) {
	m.decodeFailuresTotal.WithLabelValues(market, kind).Add(float64(count))
}

// RecordUnresolved records unmapped reserve occurrences.
func (m *Metrics) RecordUnresolved(market, reserve string, count int) {
	m.unresolvedReferencesTotal.WithLabelValues(market, reserve).Add(float64(count))
}

// RecordOverflows records entries excluded because of numeric overflow.
func (m *Metrics) RecordOverflows(market string, count int) {
	m.overflowsTotal.WithLabelValues(market).Add(float64(count))
}

// RecordScanDuration records a completed or failed scan.
func (m *Metrics) RecordScanDuration(market, status string, duration float64) {
	m.scanDuration.WithLabelValues(market, status).Observe(duration)
}

// SetAssetTotals publishes the totals of the latest scan.
func (m *Metrics) SetAssetTotals(market string, deposits, borrows map[string]uint64) {
	for symbol, amount := range deposits {
		m.assetDeposits.WithLabelValues(market, symbol).Set(float64(amount))
	}
	for symbol, amount := range borrows {
		m.assetBorrows.WithLabelValues(market, symbol).Set(float64(amount))
	}
}

// Workflow metric helpers

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity, status string, duration float64) {
	m.activityDuration.WithLabelValues(activity, status).Observe(duration)
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}

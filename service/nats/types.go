package nats

import (
	"time"

	"github.com/brojonat/lendscan/service/ledger"
)

// LedgerEvent is a ledger snapshot published to NATS at the end of a scan.
// It is published to the subject "ledger.{market}" in JetStream.
type LedgerEvent struct {
	ScanID string `json:"scan_id"`
	Market string `json:"market"`

	Report *ledger.Report `json:"report"`

	AccountsScanned int           `json:"accounts_scanned"`
	ScanDuration    time.Duration `json:"scan_duration_ns"`
	PublishedAt     time.Time     `json:"published_at"`
}

// Subject returns the JetStream subject of the event.
func (e *LedgerEvent) Subject() string {
	return SubjectForMarket(e.Market)
}

// SubjectForMarket returns the subject ledger events of market are published on.
func SubjectForMarket(market string) string {
	return SubjectPrefix + market
}

// NewLedgerEvent wraps report for publishing.
func NewLedgerEvent(scanID string, report *ledger.Report, accounts int, duration time.Duration) *LedgerEvent {
	return &LedgerEvent{
		ScanID:          scanID,
		Market:          report.Market,
		Report:          report,
		AccountsScanned: accounts,
		ScanDuration:    duration,
		PublishedAt:     time.Now().UTC(),
	}
}

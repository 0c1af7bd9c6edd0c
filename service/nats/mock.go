package nats

import (
	"context"
	"errors"
	"sync"

	"github.com/samber/lo"
)

// ErrPublisherClosed is returned by MockPublisher after Close.
var ErrPublisherClosed = errors.New("publisher closed")

// MockPublisher records published events in memory. Like the LEDGERS stream it
// keeps the latest event per subject.
type MockPublisher struct {
	mu     sync.Mutex
	events []*LedgerEvent
	latest map[string]*LedgerEvent
	err    error
	closed bool
}

var _ Publisher = (*MockPublisher)(nil)

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{latest: make(map[string]*LedgerEvent)}
}

// PublishLedger records event, or returns the error set with FailWith.
func (m *MockPublisher) PublishLedger(ctx context.Context, event *LedgerEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.closed:
		return ErrPublisherClosed
	case m.err != nil:
		return m.err
	}
	m.events = append(m.events, event)
	m.latest[event.Subject()] = event
	return nil
}

func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Events returns every recorded event in publish order.
func (m *MockPublisher) Events() []*LedgerEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*LedgerEvent(nil), m.events...)
}

// EventsForMarket returns the recorded events of market in publish order.
func (m *MockPublisher) EventsForMarket(market string) []*LedgerEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Filter(m.events, func(e *LedgerEvent, _ int) bool {
		return e.Market == market
	})
}

// Latest returns the last event published for market.
func (m *MockPublisher) Latest(market string) (*LedgerEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.latest[SubjectForMarket(market)]
	return e, ok
}

// FailWith makes subsequent publishes return err. A nil err clears it.
func (m *MockPublisher) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// IsClosed reports whether Close was called.
func (m *MockPublisher) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

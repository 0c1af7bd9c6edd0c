package temporal

import (
	"context"
	"fmt"
	"sync"
)

// MockScheduler is a mock implementation of Scheduler for testing.
type MockScheduler struct {
	mu        sync.Mutex
	schedules map[string]ScheduleSpec // map[scheduleID]spec
	upsertErr error
	deleteErr error
}

var _ Scheduler = (*MockScheduler)(nil)

// NewMockScheduler creates a new MockScheduler.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{
		schedules: make(map[string]ScheduleSpec),
	}
}

// UpsertScanSchedule records the schedule.
func (m *MockScheduler) UpsertScanSchedule(ctx context.Context, spec ScheduleSpec) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[scheduleID(spec.Market)] = spec
	return nil
}

// DeleteScanSchedule removes the schedule.
func (m *MockScheduler) DeleteScanSchedule(ctx context.Context, market string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := scheduleID(market)
	if _, exists := m.schedules[id]; !exists {
		return fmt.Errorf("schedule %q not found", id)
	}
	delete(m.schedules, id)
	return nil
}

// Schedule returns the recorded schedule for market.
func (m *MockScheduler) Schedule(market string) (ScheduleSpec, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	spec, ok := m.schedules[scheduleID(market)]
	return spec, ok
}

// Count returns the number of recorded schedules.
func (m *MockScheduler) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.schedules)
}

// SetUpsertError makes UpsertScanSchedule fail with err.
func (m *MockScheduler) SetUpsertError(err error) {
	m.upsertErr = err
}

// SetDeleteError makes DeleteScanSchedule fail with err.
func (m *MockScheduler) SetDeleteError(err error) {
	m.deleteErr = err
}

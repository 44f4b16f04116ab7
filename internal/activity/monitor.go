// Package activity keeps the in-memory interaction and engagement state of a
// single tracker instance. Nothing here is persisted: a restarted instance
// starts fresh rather than inheriting a stale idle state.
package activity

import (
	"sync"
	"time"

	"github.com/SoarinFerret/ActivityLedger/internal/calendar"
)

type Monitor struct {
	mu                sync.Mutex
	clock             calendar.Clock
	idleCutoff        time.Duration
	lastInteractionAt time.Time
	visible           bool
	focused           bool
}

// NewMonitor returns a monitor that is visible, focused and has just seen an
// interaction.
func NewMonitor(clock calendar.Clock, idleCutoff time.Duration) *Monitor {
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	return &Monitor{
		clock:             clock,
		idleCutoff:        idleCutoff,
		lastInteractionAt: clock.Now(),
		visible:           true,
		focused:           true,
	}
}

// RecordInteraction marks deliberate user input (pointer, key, scroll, click).
func (m *Monitor) RecordInteraction() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastInteractionAt = m.clock.Now()
}

func (m *Monitor) LastInteraction() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastInteractionAt
}

// IsRecentlyActive reports whether the last interaction is at most idleCutoff
// before now.
func (m *Monitor) IsRecentlyActive(now time.Time, idleCutoff time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return now.Sub(m.lastInteractionAt) <= idleCutoff
}

func (m *Monitor) SetVisible(visible bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visible = visible
}

func (m *Monitor) SetFocused(focused bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.focused = focused
}

// IsPageEngaged reports whether the instance is both visible and focused.
func (m *Monitor) IsPageEngaged() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visible && m.focused
}

// Qualifying is the single accrual predicate: engaged and recently active.
func (m *Monitor) Qualifying(now time.Time) bool {
	return m.IsPageEngaged() && m.IsRecentlyActive(now, m.idleCutoff)
}

package ledger

import (
	"time"

	"github.com/SoarinFerret/ActivityLedger/internal/calendar"
)

// Sessions counts distinct runs of qualifying activity within one day.
type Sessions struct {
	Count          int64
	LastActivityAt time.Time // zero when no activity was counted today
	DayKey         string
}

// Reconcile resets the counter on a new day and, when qualifying, starts a
// new session if the previous activity is at least gap old. It reports
// whether a session was started.
func (s *Sessions) Reconcile(now time.Time, qualifying bool, gap time.Duration) bool {
	if day := calendar.DayKey(now); s.DayKey != day {
		s.Count = 0
		s.LastActivityAt = time.Time{}
		s.DayKey = day
	}
	if !qualifying {
		return false
	}

	started := false
	if s.LastActivityAt.IsZero() || now.Sub(s.LastActivityAt) >= gap {
		s.Count++
		started = true
	}
	s.LastActivityAt = now
	return started
}

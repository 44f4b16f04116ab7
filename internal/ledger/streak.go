package ledger

import (
	"time"

	"github.com/SoarinFerret/ActivityLedger/internal/calendar"
)

// Streak is the number of consecutive days whose accrued time met the
// threshold.
type Streak struct {
	Count         int64
	LastActiveDay string
}

// Reconcile advances the streak at most once per day, the first time
// todaySeconds reaches threshold. A missed day restarts the streak at one.
// A stored day that is unparseable or not before today leaves it untouched.
func (s *Streak) Reconcile(today string, todaySeconds int64, threshold time.Duration) bool {
	if todaySeconds < int64(threshold/time.Second) {
		return false
	}
	if s.LastActiveDay == "" {
		s.Count = 1
		s.LastActiveDay = today
		return true
	}
	if s.LastActiveDay == today {
		return false
	}

	gap, err := calendar.DaysBetween(s.LastActiveDay, today)
	if err != nil || gap <= 0 {
		return false
	}
	if gap == 1 {
		s.Count++
	} else {
		s.Count = 1
	}
	s.LastActiveDay = today
	return true
}

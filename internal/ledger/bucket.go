package ledger

import (
	"time"

	"github.com/SoarinFerret/ActivityLedger/internal/calendar"
)

// Bucket is an accrued-seconds counter tagged with the calendar key it
// belongs to.
type Bucket struct {
	Seconds int64
	Key     string
}

// Roll adopts key, zeroing the counter when it differs from the stored one.
// It reports whether a rollover happened.
func (b *Bucket) Roll(key string) bool {
	if b.Key == key {
		return false
	}
	b.Key = key
	b.Seconds = 0
	return true
}

func (b *Bucket) Add(delta int64) {
	if delta > 0 {
		b.Seconds += delta
	}
}

// Buckets composes the day, week and month counters with the shared
// reconciliation timestamp.
type Buckets struct {
	Day        Bucket
	Week       Bucket
	Month      Bucket
	LastTickAt time.Time
}

// ElapsedSeconds returns whole seconds from last to now. A zero last (never
// ticked) and a clock regression both yield zero.
func ElapsedSeconds(last, now time.Time) int64 {
	if last.IsZero() || !now.After(last) {
		return 0
	}
	return int64(now.Sub(last) / time.Second)
}

// Reconcile rolls every bucket over to the keys of now, then credits the
// time since LastTickAt when qualifying is true. It returns the credited
// seconds and always moves LastTickAt to now.
func (b *Buckets) Reconcile(now time.Time, qualifying bool) int64 {
	b.Day.Roll(calendar.DayKey(now))
	b.Week.Roll(calendar.WeekKey(now))
	b.Month.Roll(calendar.MonthKey(now))

	delta := ElapsedSeconds(b.LastTickAt, now)
	b.LastTickAt = now
	if !qualifying || delta == 0 {
		return 0
	}

	b.Day.Add(delta)
	b.Week.Add(delta)
	b.Month.Add(delta)
	return delta
}

// Package ledger reconciles the persisted activity counters against wall
// time. Every operation here is pure: callers decode a stored record, run
// Reconcile inside one store transaction and write back the encoded result.
package ledger

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/SoarinFerret/ActivityLedger/internal/calendar"
	"github.com/SoarinFerret/ActivityLedger/internal/state"
)

// Persisted field names. These are the storage schema and must not change.
const (
	FieldTodaySeconds          = "todaySeconds"
	FieldWeekSeconds           = "weekSeconds"
	FieldMonthSeconds          = "monthSeconds"
	FieldDayKey                = "dayKey"
	FieldWeekKey               = "weekKey"
	FieldMonthKey              = "monthKey"
	FieldLastTickAt            = "lastTickAt"
	FieldSessionsToday         = "sessionsToday"
	FieldLastSessionActivityAt = "lastSessionActivityAt"
	FieldSessionDayKey         = "sessionDayKey"
	FieldStreakCount           = "streakCount"
	FieldStreakLastActiveDay   = "streakLastActiveDay"
	FieldGoalDueAt             = "goalDueAt"
)

// Fields lists every field the ledger reads.
var Fields = []string{
	FieldTodaySeconds, FieldWeekSeconds, FieldMonthSeconds,
	FieldDayKey, FieldWeekKey, FieldMonthKey,
	FieldLastTickAt,
	FieldSessionsToday, FieldLastSessionActivityAt, FieldSessionDayKey,
	FieldStreakCount, FieldStreakLastActiveDay,
	FieldGoalDueAt,
}

// State is the decoded ledger record.
type State struct {
	Buckets  Buckets
	Sessions Sessions
	Streak   Streak
	// GoalDueAt is zero when no deadline is set.
	GoalDueAt time.Time
}

// Policy holds the business thresholds applied on every reconciliation.
type Policy struct {
	SessionGap      time.Duration
	StreakThreshold time.Duration
}

// DefaultPolicy returns a 30 minute session gap and a 120 second streak
// threshold.
func DefaultPolicy() Policy {
	return Policy{
		SessionGap:      30 * time.Minute,
		StreakThreshold: 120 * time.Second,
	}
}

// Result describes what a single reconciliation changed.
type Result struct {
	Credited       int64
	NewSession     bool
	StreakAdvanced bool
}

// Reconcile applies buckets, sessions and streak in that order against the
// same now and qualifying predicate.
func (s *State) Reconcile(now time.Time, qualifying bool, p Policy) Result {
	var res Result
	res.Credited = s.Buckets.Reconcile(now, qualifying)
	res.NewSession = s.Sessions.Reconcile(now, qualifying, p.SessionGap)
	res.StreakAdvanced = s.Streak.Reconcile(calendar.DayKey(now), s.Buckets.Day.Seconds, p.StreakThreshold)
	return res
}

// Decode coerces a stored record into a State. Malformed counters become
// zero, malformed timestamps and keys become absent.
func Decode(rec state.Record) State {
	return State{
		Buckets: Buckets{
			Day:        Bucket{Seconds: parseCount(rec[FieldTodaySeconds]), Key: validKey(rec[FieldDayKey], calendar.ValidDayKey)},
			Week:       Bucket{Seconds: parseCount(rec[FieldWeekSeconds]), Key: validKey(rec[FieldWeekKey], calendar.ValidWeekKey)},
			Month:      Bucket{Seconds: parseCount(rec[FieldMonthSeconds]), Key: validKey(rec[FieldMonthKey], calendar.ValidMonthKey)},
			LastTickAt: parseMillis(rec[FieldLastTickAt]),
		},
		Sessions: Sessions{
			Count:          parseCount(rec[FieldSessionsToday]),
			LastActivityAt: parseMillis(rec[FieldLastSessionActivityAt]),
			DayKey:         validKey(rec[FieldSessionDayKey], calendar.ValidDayKey),
		},
		Streak: Streak{
			Count:         parseCount(rec[FieldStreakCount]),
			LastActiveDay: validKey(rec[FieldStreakLastActiveDay], calendar.ValidDayKey),
		},
		GoalDueAt: parseMillis(rec[FieldGoalDueAt]),
	}
}

// Encode returns every field a reconciliation owns. goalDueAt is left out;
// it only changes through GoalRecord.
func (s State) Encode() state.Record {
	return state.Record{
		FieldTodaySeconds:          formatCount(s.Buckets.Day.Seconds),
		FieldWeekSeconds:           formatCount(s.Buckets.Week.Seconds),
		FieldMonthSeconds:          formatCount(s.Buckets.Month.Seconds),
		FieldDayKey:                s.Buckets.Day.Key,
		FieldWeekKey:               s.Buckets.Week.Key,
		FieldMonthKey:              s.Buckets.Month.Key,
		FieldLastTickAt:            formatMillis(s.Buckets.LastTickAt),
		FieldSessionsToday:         formatCount(s.Sessions.Count),
		FieldLastSessionActivityAt: formatMillis(s.Sessions.LastActivityAt),
		FieldSessionDayKey:         s.Sessions.DayKey,
		FieldStreakCount:           formatCount(s.Streak.Count),
		FieldStreakLastActiveDay:   s.Streak.LastActiveDay,
	}
}

// GoalRecord returns the change that sets the goal deadline. A zero dueAt
// clears it.
func GoalRecord(dueAt time.Time) state.Record {
	return state.Record{FieldGoalDueAt: formatMillis(dueAt)}
}

// BaselineRecord returns the change that restarts accrual at now.
func BaselineRecord(now time.Time) state.Record {
	return state.Record{FieldLastTickAt: formatMillis(now)}
}

func parseCount(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0
		}
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f >= math.MaxInt64 {
		return 0
	}
	return int64(math.Floor(f))
}

func parseMillis(s string) time.Time {
	ms := parseCount(s)
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func formatCount(n int64) string {
	return strconv.FormatInt(n, 10)
}

func formatMillis(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func validKey(key string, valid func(string) bool) string {
	if !valid(key) {
		return ""
	}
	return key
}

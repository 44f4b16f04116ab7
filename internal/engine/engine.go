package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/SoarinFerret/ActivityLedger/internal/calendar"
	"github.com/SoarinFerret/ActivityLedger/internal/config"
	"github.com/SoarinFerret/ActivityLedger/internal/goal"
	"github.com/SoarinFerret/ActivityLedger/internal/ledger"
	"github.com/SoarinFerret/ActivityLedger/internal/state"
)

// Activity is the qualifying predicate of one instance.
type Activity interface {
	Qualifying(now time.Time) bool
}

// Recorder receives every snapshot and every skipped tick.
type Recorder interface {
	ObserveTick(Snapshot)
	ObserveFailure()
}

// Notifier is told when the goal enters the warning or overdue state.
type Notifier interface {
	Notify(ctx context.Context, p goal.Projection) error
}

type Options struct {
	InstanceID     string
	TickInterval   time.Duration
	StaleAfter     time.Duration
	FlushTimeout   time.Duration
	Policy         ledger.Policy
	GoalText       string
	GoalWarnWithin time.Duration
	Location       *time.Location
	Debug          bool
	Recorder       Recorder
	Notifier       Notifier
}

// OptionsFromConfig maps a loaded config onto engine options. An empty
// instance name gets a random one.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	loc, err := cfg.Location()
	if err != nil {
		return Options{}, err
	}
	id := cfg.Instance
	if id == "" {
		id = uuid.NewString()
	}
	return Options{
		InstanceID:   id,
		TickInterval: cfg.TickInterval.Std(),
		StaleAfter:   cfg.StaleAfter.Std(),
		FlushTimeout: cfg.FlushTimeout.Std(),
		Policy: ledger.Policy{
			SessionGap:      cfg.SessionGap.Std(),
			StreakThreshold: cfg.StreakThreshold.Std(),
		},
		GoalText:       cfg.Goal.Text,
		GoalWarnWithin: cfg.Goal.WarnWithin.Std(),
		Location:       loc,
		Debug:          cfg.Debug,
	}, nil
}

func (o *Options) setDefaults() {
	if o.TickInterval <= 0 {
		o.TickInterval = 5 * time.Second
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 3 * o.TickInterval
	}
	if o.FlushTimeout <= 0 {
		o.FlushTimeout = 2 * time.Second
	}
	if o.Policy == (ledger.Policy{}) {
		o.Policy = ledger.DefaultPolicy()
	}
	if o.GoalWarnWithin <= 0 {
		o.GoalWarnWithin = goal.DefaultWarnWithin
	}
	if o.Location == nil {
		o.Location = time.Local
	}
}

// Snapshot is the read-only view handed to renderers and callbacks.
type Snapshot struct {
	Instance      string          `json:"instance"`
	TodaySeconds  int64           `json:"todaySeconds"`
	WeekSeconds   int64           `json:"weekSeconds"`
	MonthSeconds  int64           `json:"monthSeconds"`
	SessionsToday int64           `json:"sessionsToday"`
	StreakCount   int64           `json:"streakCount"`
	Goal          goal.Projection `json:"goal"`
	Qualifying    bool            `json:"qualifying"`
	Credited      int64           `json:"credited"`
	Skipped       bool            `json:"skipped,omitempty"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Engine drives one tracker instance: every tick it reconciles the shared
// ledger record in a single store transaction.
type Engine struct {
	store    state.Store
	activity Activity
	clock    calendar.Clock
	opts     Options
	failures rate.Sometimes

	// idleSince is the time of this instance's last non-qualifying tick,
	// zero once it qualifies again. Only Tick touches it.
	idleSince time.Time

	mu         sync.Mutex
	snapshot   Snapshot
	goalDueAt  time.Time
	goalStatus goal.Status
	callbacks  []func(Snapshot)
}

// NewEngine creates a new ledger engine instance
func NewEngine(store state.Store, activity Activity, clock calendar.Clock, opts Options) (*Engine, error) {
	if store == nil {
		return nil, errors.New("engine needs a store")
	}
	if activity == nil {
		return nil, errors.New("engine needs an activity source")
	}
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	opts.setDefaults()

	return &Engine{
		store:    store,
		activity: activity,
		clock:    clock,
		opts:     opts,
		failures: rate.Sometimes{First: 1, Interval: time.Minute},
		snapshot: Snapshot{Instance: opts.InstanceID},
	}, nil
}

func (e *Engine) InstanceID() string {
	return e.opts.InstanceID
}

// Run baselines the ledger, ticks immediately and then every TickInterval.
// When ctx is cancelled it runs one final tick bounded by FlushTimeout and
// returns.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.opts.TickInterval)
	defer ticker.Stop()

	log.Printf("Ledger engine %s started - ticking every %s", e.opts.InstanceID, e.opts.TickInterval)

	if err := e.Baseline(ctx); err != nil {
		log.Printf("Failed to baseline ledger: %v", err)
	}

	// Run immediately on start
	e.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("Ledger engine shutting down - flushing...")
			flushCtx, cancel := context.WithTimeout(context.Background(), e.opts.FlushTimeout)
			e.Tick(flushCtx)
			cancel()
			return nil
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Baseline restarts accrual at now unless another live instance ticked
// within StaleAfter.
func (e *Engine) Baseline(ctx context.Context) error {
	fresh := false
	err := e.store.Update(ctx, func(cur state.Record) (state.Record, error) {
		now := e.now()
		fresh = e.freshTick(ledger.Decode(cur).Buckets.LastTickAt, now)
		if fresh {
			return nil, nil
		}
		return ledger.BaselineRecord(now), nil
	})
	if err != nil {
		return fmt.Errorf("baseline: %w", err)
	}
	if fresh {
		log.Println("Another instance is ticking - keeping its last tick")
	}
	return nil
}

// freshTick reports whether last is a tick at most StaleAfter before now.
func (e *Engine) freshTick(last, now time.Time) bool {
	return !last.IsZero() && !now.Before(last) && now.Sub(last) <= e.opts.StaleAfter
}

// Tick runs one reconciliation and returns the refreshed snapshot. A store
// failure skips the tick; the next one recomputes from absolute time.
//
// A non-qualifying tick leaves a fresh lastTickAt alone, since another
// instance may still be accruing that span. A qualifying tick never credits
// time from before this instance's own last non-qualifying tick.
func (e *Engine) Tick(ctx context.Context) Snapshot {
	var (
		now        time.Time
		qualifying bool
		decoded    ledger.State
		res        ledger.Result
	)
	err := e.store.Update(ctx, func(cur state.Record) (state.Record, error) {
		// Read inside the transaction so serialized instances see
		// non-decreasing time.
		now = e.now()
		qualifying = e.activity.Qualifying(now)
		decoded = ledger.Decode(cur)
		last := decoded.Buckets.LastTickAt
		if qualifying && e.idleSince.After(last) {
			decoded.Buckets.LastTickAt = e.idleSince
		}
		res = decoded.Reconcile(now, qualifying, e.opts.Policy)
		if !qualifying && e.freshTick(last, now) {
			decoded.Buckets.LastTickAt = last
		}
		return decoded.Encode(), nil
	})
	if err != nil {
		e.failures.Do(func() {
			log.Printf("Ledger tick skipped for %s: %v", e.opts.InstanceID, err)
		})
		if e.opts.Recorder != nil {
			e.opts.Recorder.ObserveFailure()
		}
		return e.publish(ctx, e.now(), func(s *Snapshot) {
			s.Skipped = true
			s.Credited = 0
		})
	}

	if qualifying {
		e.idleSince = time.Time{}
	} else {
		e.idleSince = now
	}

	if e.opts.Debug {
		log.Printf("DEBUG: tick %s qualifying=%t credited=%ds today=%ds sessions=%d streak=%d",
			e.opts.InstanceID, qualifying, res.Credited, decoded.Buckets.Day.Seconds,
			decoded.Sessions.Count, decoded.Streak.Count)
	}
	if res.NewSession {
		log.Printf("Session %d started today", decoded.Sessions.Count)
	}
	if res.StreakAdvanced {
		log.Printf("Streak is now %d day(s)", decoded.Streak.Count)
	}

	return e.publish(ctx, now, func(s *Snapshot) {
		s.TodaySeconds = decoded.Buckets.Day.Seconds
		s.WeekSeconds = decoded.Buckets.Week.Seconds
		s.MonthSeconds = decoded.Buckets.Month.Seconds
		s.SessionsToday = decoded.Sessions.Count
		s.StreakCount = decoded.Streak.Count
		s.Qualifying = qualifying
		s.Credited = res.Credited
		s.Skipped = false
		e.goalDueAt = decoded.GoalDueAt
	})
}

// publish applies update to the snapshot, refreshes the goal projection and
// fans the result out to the recorder, notifier and callbacks.
func (e *Engine) publish(ctx context.Context, now time.Time, update func(*Snapshot)) Snapshot {
	e.mu.Lock()
	update(&e.snapshot)
	e.snapshot.Goal = e.project(now)
	e.snapshot.UpdatedAt = now
	snap := e.snapshot

	prev := e.goalStatus
	e.goalStatus = snap.Goal.Status
	callbacks := append([]func(Snapshot){}, e.callbacks...)
	e.mu.Unlock()

	if e.opts.Recorder != nil {
		e.opts.Recorder.ObserveTick(snap)
	}
	if shouldNotify(prev, snap.Goal.Status) {
		e.notify(ctx, snap.Goal)
	}
	for _, cb := range callbacks {
		cb(snap)
	}
	return snap
}

func shouldNotify(prev, next goal.Status) bool {
	if prev == next {
		return false
	}
	return next == goal.StatusWarning || next == goal.StatusOverdue
}

func (e *Engine) notify(ctx context.Context, p goal.Projection) {
	if e.opts.Notifier == nil {
		return
	}
	if err := e.opts.Notifier.Notify(ctx, p); err != nil {
		log.Printf("Failed to send goal notification: %v", err)
		return
	}
	log.Printf("Sent goal notification: %s", p.Label)
}

// project must be called with e.mu held.
func (e *Engine) project(now time.Time) goal.Projection {
	return goal.Project(e.opts.GoalText, e.goalDueAt, now, e.opts.GoalWarnWithin)
}

func (e *Engine) now() time.Time {
	return e.clock.Now().In(e.opts.Location)
}

// Snapshot returns the counters of the last reconciliation with a goal
// projection computed for the current time.
func (e *Engine) Snapshot() Snapshot {
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := e.snapshot
	snap.Goal = e.project(now)
	return snap
}

// OnTick registers cb to run after every reconciliation, including skipped
// ones.
func (e *Engine) OnTick(cb func(Snapshot)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callbacks = append(e.callbacks, cb)
}

// SetGoalDue persists the goal deadline. A zero dueAt clears it.
func (e *Engine) SetGoalDue(ctx context.Context, dueAt time.Time) error {
	if err := e.store.Set(ctx, ledger.GoalRecord(dueAt)); err != nil {
		return fmt.Errorf("set goal deadline: %w", err)
	}
	e.mu.Lock()
	// Round-trip through the stored precision.
	e.goalDueAt = ledger.Decode(ledger.GoalRecord(dueAt)).GoalDueAt
	e.mu.Unlock()

	if dueAt.IsZero() {
		log.Println("Goal deadline cleared")
	} else {
		log.Printf("Goal deadline set to %s", dueAt.In(e.opts.Location).Format(time.RFC3339))
	}
	return nil
}

func (e *Engine) ClearGoal(ctx context.Context) error {
	return e.SetGoalDue(ctx, time.Time{})
}

package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SoarinFerret/ActivityLedger/internal/calendar"
	"github.com/SoarinFerret/ActivityLedger/internal/state"
)

func TestDecode_EmptyRecord(t *testing.T) {
	assert.Equal(t, State{}, Decode(state.Record{}))
}

func TestDecode_Coercion(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected int64
	}{
		{"Integer", "125", 125},
		{"Padded", " 7 ", 7},
		{"Negative", "-4", 0},
		{"Float floors", "12.9", 12},
		{"Exponent", "1.5e3", 1500},
		{"Not a number", "abc", 0},
		{"NaN", "NaN", 0},
		{"Infinity", "+Inf", 0},
		{"Overflow", "99999999999999999999999", 0},
		{"Empty", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := Decode(state.Record{FieldTodaySeconds: tt.value, FieldStreakCount: tt.value})
			assert.Equal(t, tt.expected, st.Buckets.Day.Seconds)
			assert.Equal(t, tt.expected, st.Streak.Count)
		})
	}
}

func TestDecode_MalformedKeysAndTimestamps(t *testing.T) {
	st := Decode(state.Record{
		FieldDayKey:                "02/01/2024",
		FieldWeekKey:               "2024-W60",
		FieldMonthKey:              "2024-13",
		FieldLastTickAt:            "-1",
		FieldLastSessionActivityAt: "0",
		FieldSessionDayKey:         "2024-01-02",
		FieldStreakLastActiveDay:   "soon",
		FieldGoalDueAt:             "never",
	})

	assert.Empty(t, st.Buckets.Day.Key)
	assert.Empty(t, st.Buckets.Week.Key)
	assert.Empty(t, st.Buckets.Month.Key)
	assert.True(t, st.Buckets.LastTickAt.IsZero())
	assert.True(t, st.Sessions.LastActivityAt.IsZero())
	assert.Equal(t, "2024-01-02", st.Sessions.DayKey)
	assert.Empty(t, st.Streak.LastActiveDay)
	assert.True(t, st.GoalDueAt.IsZero())
}

func TestEncode_DecodesBack(t *testing.T) {
	var st State
	st.Reconcile(base, true, DefaultPolicy())
	st.Buckets.Day.Seconds = 300
	st.GoalDueAt = time.UnixMilli(base.UnixMilli())

	rec := st.Encode()
	assert.NotContains(t, rec, FieldGoalDueAt)
	assert.Equal(t, "300", rec[FieldTodaySeconds])
	assert.Equal(t, "2024-W01", rec[FieldWeekKey])

	back := Decode(rec)
	assert.Equal(t, st.Buckets.Day, back.Buckets.Day)
	assert.True(t, st.Buckets.LastTickAt.Equal(back.Buckets.LastTickAt))
	assert.Equal(t, st.Streak, back.Streak)
}

func TestEncode_AbsentValues(t *testing.T) {
	rec := State{}.Encode()
	assert.Equal(t, "0", rec[FieldLastTickAt])
	assert.Equal(t, "0", rec[FieldLastSessionActivityAt])
	assert.Equal(t, "", rec[FieldStreakLastActiveDay])
}

func TestGoalRecord(t *testing.T) {
	due := base.Add(48 * time.Hour)
	assert.True(t, Decode(GoalRecord(due)).GoalDueAt.Equal(due))
	assert.Equal(t, state.Record{FieldGoalDueAt: "0"}, GoalRecord(time.Time{}))
	assert.True(t, Decode(GoalRecord(time.Time{})).GoalDueAt.IsZero())
}

func TestState_StreakSeesFreshTodayTotal(t *testing.T) {
	var st State
	st.Reconcile(base, false, DefaultPolicy())
	st.Buckets.Day.Seconds = 115
	st.Streak = Streak{Count: 2, LastActiveDay: "2024-01-01"}

	res := st.Reconcile(base.Add(5*time.Second), true, DefaultPolicy())
	assert.Equal(t, Result{Credited: 5, NewSession: true, StreakAdvanced: true}, res)
	assert.Equal(t, Streak{Count: 3, LastActiveDay: "2024-01-02"}, st.Streak)
}

func TestState_DayRolloverResetsDayScopedCounters(t *testing.T) {
	late := time.Date(2024, 1, 2, 23, 59, 55, 0, time.UTC)
	var st State
	st.Reconcile(late, true, DefaultPolicy())
	st.Buckets.Day.Seconds, st.Buckets.Week.Seconds, st.Buckets.Month.Seconds = 500, 900, 1200
	st.Sessions.Count = 3

	st.Reconcile(late.Add(10*time.Second), false, DefaultPolicy())
	assert.Zero(t, st.Buckets.Day.Seconds)
	assert.Zero(t, st.Sessions.Count)
	assert.Equal(t, int64(900), st.Buckets.Week.Seconds)
	assert.Equal(t, int64(1200), st.Buckets.Month.Seconds)
}

func TestState_SecondReconcileSameNowChangesNothing(t *testing.T) {
	var st State
	st.Reconcile(base, true, DefaultPolicy())
	st.Reconcile(base.Add(5*time.Second), true, DefaultPolicy())
	first := st.Encode()

	res := st.Reconcile(base.Add(5*time.Second), true, DefaultPolicy())
	assert.Equal(t, Result{}, res)
	assert.Equal(t, first, st.Encode())
}

func reconcileRecord(rec state.Record, now time.Time) state.Record {
	st := Decode(rec)
	st.Reconcile(now, true, DefaultPolicy())
	return st.Encode()
}

func seedStore(t *testing.T, s state.Store, now time.Time) {
	var st State
	st.Reconcile(now, false, DefaultPolicy())
	st.Buckets.Day.Seconds = 100
	require.NoError(t, s.Set(context.Background(), st.Encode()))
}

func todaySeconds(t *testing.T, s state.Store) int64 {
	rec, err := s.Get(context.Background(), Fields...)
	require.NoError(t, err)
	return Decode(rec).Buckets.Day.Seconds
}

func backends() map[string]func(t *testing.T) state.Store {
	return map[string]func(t *testing.T) state.Store{
		"memory": func(t *testing.T) state.Store { return state.NewMemoryStore() },
		"file": func(t *testing.T) state.Store {
			s, err := state.NewFileStore(filepath.Join(t.TempDir(), "ledger.json"))
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) state.Store {
			s, err := state.NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"redis": func(t *testing.T) state.Store {
			mr := miniredis.RunT(t)
			s := state.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:")
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

// Two instances read the same record, both add their delta and the later
// write clobbers the earlier one. Plain Get/Set loses time.
func TestConcurrentWriters_GetSetLosesUpdate(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			seedStore(t, s, base)

			a, err := s.Get(ctx, Fields...)
			require.NoError(t, err)
			b, err := s.Get(ctx, Fields...)
			require.NoError(t, err)

			outA := reconcileRecord(a, base.Add(10*time.Second))
			outB := reconcileRecord(b, base.Add(20*time.Second))
			require.NoError(t, s.Set(ctx, outB))
			require.NoError(t, s.Set(ctx, outA))

			assert.Equal(t, int64(110), todaySeconds(t, s), "interleaved get/set drops the other writer's delta")
		})
	}
}

func TestConcurrentWriters_UpdatePreservesBothDeltas(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			seedStore(t, s, base)

			for _, now := range []time.Time{base.Add(10 * time.Second), base.Add(20 * time.Second)} {
				require.NoError(t, s.Update(ctx, func(cur state.Record) (state.Record, error) {
					return reconcileRecord(cur, now), nil
				}))
			}

			assert.Equal(t, int64(120), todaySeconds(t, s))
		})
	}
}

// Concurrent Update calls on each backend credit every tick exactly once.
func TestConcurrentWriters_UpdateUnderContention(t *testing.T) {
	const workers, perWorker = 2, 15
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			seedStore(t, s, base)
			clock := calendar.NewFixedClock(base)

			var wg sync.WaitGroup
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < perWorker; i++ {
						for {
							err := s.Update(ctx, func(cur state.Record) (state.Record, error) {
								return reconcileRecord(cur, clock.Advance(time.Second)), nil
							})
							if errors.Is(err, state.ErrConflict) {
								continue
							}
							assert.NoError(t, err)
							break
						}
					}
				}()
			}
			wg.Wait()

			rec, err := s.Get(ctx, Fields...)
			require.NoError(t, err)
			st := Decode(rec)
			assert.True(t, clock.Now().Equal(st.Buckets.LastTickAt))
			assert.Equal(t, int64(100)+int64(clock.Now().Sub(base)/time.Second), st.Buckets.Day.Seconds)
		})
	}
}

// Two file-store handles tick against one clock. Reading the clock inside
// the transaction keeps accrual equal to the wall time that passed.
func TestConcurrentWriters_FileStoreInstances(t *testing.T) {
	const ticks = 25
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.json")
	clock := calendar.NewFixedClock(base)

	first, err := state.NewFileStore(path)
	require.NoError(t, err)
	second, err := state.NewFileStore(path)
	require.NoError(t, err)
	seedStore(t, first, base)

	var wg sync.WaitGroup
	for _, s := range []state.Store{first, second} {
		wg.Add(1)
		go func(s state.Store) {
			defer wg.Done()
			for i := 0; i < ticks; i++ {
				err := s.Update(ctx, func(cur state.Record) (state.Record, error) {
					return reconcileRecord(cur, clock.Advance(time.Second)), nil
				})
				assert.NoError(t, err)
			}
		}(s)
	}
	wg.Wait()

	assert.Equal(t, int64(100+2*ticks), todaySeconds(t, first))
}

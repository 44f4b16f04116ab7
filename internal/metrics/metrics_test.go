package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SoarinFerret/ActivityLedger/internal/engine"
	"github.com/SoarinFerret/ActivityLedger/internal/goal"
)

func TestRecorder_ObserveTick(t *testing.T) {
	r := NewRecorder("desk")
	r.ObserveTick(engine.Snapshot{
		TodaySeconds:  120,
		WeekSeconds:   600,
		MonthSeconds:  3600,
		SessionsToday: 2,
		StreakCount:   4,
		Qualifying:    true,
		Credited:      5,
		Goal:          goal.Projection{Active: true, HasDeadline: true, Remaining: time.Hour, Status: goal.StatusWarning},
	})
	r.ObserveTick(engine.Snapshot{TodaySeconds: 125, Credited: 5, Qualifying: false})

	assert.Equal(t, 125.0, testutil.ToFloat64(r.todaySeconds))
	assert.Equal(t, 10.0, testutil.ToFloat64(r.credited))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.ticks))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.qualifying))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.goalStatus.WithLabelValues("none")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.goalStatus.WithLabelValues("warning")))
}

func TestRecorder_SkippedTickKeepsGauges(t *testing.T) {
	r := NewRecorder("desk")
	r.ObserveTick(engine.Snapshot{TodaySeconds: 50, StreakCount: 2})
	r.ObserveFailure()
	r.ObserveTick(engine.Snapshot{Skipped: true})

	assert.Equal(t, 50.0, testutil.ToFloat64(r.todaySeconds))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.streakDays))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.failures))
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder("desk")
	r.ObserveTick(engine.Snapshot{SessionsToday: 3})

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `activityledger_sessions_today{instance_id="desk"} 3`)
	assert.Contains(t, body, "activityledger_tick_failures_total")
}

func TestServe_StopsOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr, NewRecorder("desk")) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + addr + "/health")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", strings.TrimSpace(string(body)))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}

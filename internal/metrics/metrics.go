// Package metrics exports ledger snapshots as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SoarinFerret/ActivityLedger/internal/engine"
	"github.com/SoarinFerret/ActivityLedger/internal/goal"
)

// Recorder implements engine.Recorder on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	todaySeconds  prometheus.Gauge
	weekSeconds   prometheus.Gauge
	monthSeconds  prometheus.Gauge
	sessionsToday prometheus.Gauge
	streakDays    prometheus.Gauge
	qualifying    prometheus.Gauge
	goalRemaining prometheus.Gauge
	goalStatus    *prometheus.GaugeVec
	credited      prometheus.Counter
	ticks         prometheus.Counter
	failures      prometheus.Counter
}

func NewRecorder(instance string) *Recorder {
	labels := prometheus.Labels{"instance_id": instance}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "activityledger_" + name,
			Help:        help,
			ConstLabels: labels,
		})
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "activityledger_" + name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	r := &Recorder{
		registry:      prometheus.NewRegistry(),
		todaySeconds:  gauge("today_seconds", "Active seconds accrued in the current day bucket"),
		weekSeconds:   gauge("week_seconds", "Active seconds accrued in the current ISO week bucket"),
		monthSeconds:  gauge("month_seconds", "Active seconds accrued in the current month bucket"),
		sessionsToday: gauge("sessions_today", "Distinct sessions started today"),
		streakDays:    gauge("streak_days", "Consecutive days meeting the streak threshold"),
		qualifying:    gauge("qualifying", "1 when the instance is engaged and recently active"),
		goalRemaining: gauge("goal_remaining_seconds", "Seconds until the goal deadline, negative when overdue"),
		goalStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "activityledger_goal_status",
			Help:        "1 for the current goal status",
			ConstLabels: labels,
		}, []string{"status"}),
		credited: counter("credited_seconds_total", "Seconds credited by this instance"),
		ticks:    counter("ticks_total", "Reconciliations run by this instance"),
		failures: counter("tick_failures_total", "Reconciliations skipped because the store failed"),
	}

	r.registry.MustRegister(
		r.todaySeconds,
		r.weekSeconds,
		r.monthSeconds,
		r.sessionsToday,
		r.streakDays,
		r.qualifying,
		r.goalRemaining,
		r.goalStatus,
		r.credited,
		r.ticks,
		r.failures,
	)
	return r
}

var _ engine.Recorder = (*Recorder)(nil)

func (r *Recorder) ObserveTick(s engine.Snapshot) {
	r.ticks.Inc()
	if s.Skipped {
		return
	}
	r.todaySeconds.Set(float64(s.TodaySeconds))
	r.weekSeconds.Set(float64(s.WeekSeconds))
	r.monthSeconds.Set(float64(s.MonthSeconds))
	r.sessionsToday.Set(float64(s.SessionsToday))
	r.streakDays.Set(float64(s.StreakCount))
	r.credited.Add(float64(s.Credited))
	if s.Qualifying {
		r.qualifying.Set(1)
	} else {
		r.qualifying.Set(0)
	}

	r.goalRemaining.Set(s.Goal.Remaining.Seconds())
	for _, st := range []goal.Status{goal.StatusNone, goal.StatusNormal, goal.StatusWarning, goal.StatusOverdue} {
		v := 0.0
		if st == s.Goal.Status {
			v = 1
		}
		r.goalStatus.WithLabelValues(st.String()).Set(v)
	}
}

func (r *Recorder) ObserveFailure() {
	r.failures.Inc()
}

func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler serves the recorder's registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics and /health on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, r *Recorder) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Println("Serving metrics on", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

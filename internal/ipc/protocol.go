package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/SoarinFerret/ActivityLedger/internal/engine"
)

const (
	ObjectPath    = "/io/github/soarinferret/activityledger"
	InterfaceName = "io.github.soarinferret.activityledger.Tracker"
	ServiceName   = "io.github.soarinferret.activityledger"
)

// InstanceServiceName returns the bus name owned by a single instance.
func InstanceServiceName(instance string) string {
	var b strings.Builder
	b.WriteString(ServiceName + ".i")
	for _, r := range instance {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Tracker is the engine surface exposed over D-Bus.
type Tracker interface {
	InstanceID() string
	Snapshot() engine.Snapshot
	SetGoalDue(ctx context.Context, dueAt time.Time) error
	ClearGoal(ctx context.Context) error
}

// Activity receives engagement reported by desktop agents.
type Activity interface {
	RecordInteraction()
	SetVisible(bool)
	SetFocused(bool)
}

// Ledger is the object exported at ObjectPath.
type Ledger struct {
	tracker  Tracker
	activity Activity
	timeout  time.Duration
}

func NewLedger(tracker Tracker, activity Activity) *Ledger {
	return &Ledger{tracker: tracker, activity: activity, timeout: 5 * time.Second}
}

func (l *Ledger) GetStatus() (string, *dbus.Error) {
	s := l.tracker.Snapshot()
	status := fmt.Sprintf("Instance %s: today %s, week %s, month %s, %d session(s), streak %d day(s)",
		s.Instance, FormatSeconds(s.TodaySeconds), FormatSeconds(s.WeekSeconds),
		FormatSeconds(s.MonthSeconds), s.SessionsToday, s.StreakCount)
	if s.Goal.Active {
		status += fmt.Sprintf(", goal %q", s.Goal.Text)
		if s.Goal.HasDeadline {
			status += " " + s.Goal.Label
		}
	}
	return status, nil
}

// GetSnapshot returns the snapshot as JSON.
func (l *Ledger) GetSnapshot() (string, *dbus.Error) {
	data, err := json.Marshal(l.tracker.Snapshot())
	if err != nil {
		return "", dbus.MakeFailedError(err)
	}
	return string(data), nil
}

func (l *Ledger) RecordInteraction() *dbus.Error {
	l.activity.RecordInteraction()
	return nil
}

func (l *Ledger) SetVisible(visible bool) *dbus.Error {
	l.activity.SetVisible(visible)
	return nil
}

func (l *Ledger) SetFocused(focused bool) *dbus.Error {
	l.activity.SetFocused(focused)
	return nil
}

// SetGoalDue sets the deadline in unix milliseconds.
func (l *Ledger) SetGoalDue(unixMs int64) *dbus.Error {
	if unixMs <= 0 {
		return dbus.MakeFailedError(fmt.Errorf("invalid deadline %d", unixMs))
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	if err := l.tracker.SetGoalDue(ctx, time.UnixMilli(unixMs)); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

func (l *Ledger) ClearGoal() *dbus.Error {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	if err := l.tracker.ClearGoal(ctx); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

// Serve exports ledger on conn under the instance's own bus name and, when
// it is free, the shared ServiceName. It blocks until ctx is cancelled.
func Serve(ctx context.Context, conn *dbus.Conn, ledger *Ledger) error {
	if err := conn.Export(ledger, dbus.ObjectPath(ObjectPath), InterfaceName); err != nil {
		return fmt.Errorf("failed to export interface: %w", err)
	}

	name := InstanceServiceName(ledger.tracker.InstanceID())
	reply, err := conn.RequestName(name, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request name %s: %w", name, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s is already taken", name)
	}
	log.Println("Serving D-Bus name", name)

	reply, err = conn.RequestName(ServiceName, dbus.NameFlagDoNotQueue)
	switch {
	case err != nil:
		log.Printf("Failed to request %s: %v", ServiceName, err)
	case reply == dbus.RequestNameReplyPrimaryOwner:
		log.Println("Serving D-Bus name", ServiceName)
	default:
		log.Printf("%s is owned by another instance", ServiceName)
	}

	<-ctx.Done()
	return nil
}

// FormatSeconds renders a duration in seconds as "Xh Ym", or "Ym" under an
// hour.
func FormatSeconds(secs int64) string {
	if secs < 0 {
		secs = 0
	}
	h := secs / 3600
	m := (secs % 3600) / 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

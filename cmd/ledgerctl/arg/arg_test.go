package arg

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SoarinFerret/ActivityLedger/internal/engine"
	"github.com/SoarinFerret/ActivityLedger/internal/goal"
	"github.com/SoarinFerret/ActivityLedger/internal/ipc"
)

func TestPrintSnapshot(t *testing.T) {
	var buf bytes.Buffer
	printSnapshot(&buf, engine.Snapshot{
		Instance:      "desk",
		TodaySeconds:  3900,
		WeekSeconds:   36000,
		MonthSeconds:  90000,
		SessionsToday: 3,
		StreakCount:   7,
		Qualifying:    true,
		Goal: goal.Projection{
			Active:      true,
			Text:        "thesis draft",
			HasDeadline: true,
			Label:       "1d left",
			Status:      goal.StatusWarning,
		},
	})

	out := buf.String()
	assert.Contains(t, out, "Instance: desk\n==============\n")
	assert.Contains(t, out, "Today:      1h 5m\n")
	assert.Contains(t, out, "This week:  10h 0m\n")
	assert.Contains(t, out, "This month: 25h 0m\n")
	assert.Contains(t, out, "Sessions:   3\n")
	assert.Contains(t, out, "Streak:     7 day(s)\n")
	assert.Contains(t, out, "Activity:   active\n")
	assert.Contains(t, out, "Goal:       thesis draft (1d left, warning)\n")
	assert.NotContains(t, out, "Warning:")
}

func TestPrintSnapshot_NoGoalSkipped(t *testing.T) {
	var buf bytes.Buffer
	printSnapshot(&buf, engine.Snapshot{Instance: "x", Skipped: true})

	out := buf.String()
	assert.NotContains(t, out, "Goal:")
	assert.Contains(t, out, "Activity:   idle\n")
	assert.Contains(t, out, "Warning:")
}

func TestParseSwitch(t *testing.T) {
	tests := []struct {
		arg      string
		expected bool
		wantErr  bool
	}{
		{"on", true, false},
		{"ON", true, false},
		{"yes", true, false},
		{"off", false, false},
		{"0", false, false},
		{"maybe", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := parseSwitch(tt.arg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestResolveDeadline(t *testing.T) {
	now := time.Date(2026, 1, 18, 12, 0, 0, 0, time.UTC)

	got, err := resolveDeadline("48h", "", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(48*time.Hour), got)

	got, err = resolveDeadline("", "2026-01-20T18:00:00+01:00", now)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, 1, 20, 17, 0, 0, 0, time.UTC)))

	for _, bad := range [][2]string{
		{"", ""},
		{"48h", "2026-01-20T18:00:00Z"},
		{"soon", ""},
		{"-1h", ""},
		{"", "tomorrow"},
	} {
		_, err := resolveDeadline(bad[0], bad[1], now)
		assert.Error(t, err, "in=%q at=%q", bad[0], bad[1])
	}
}

func TestServiceName(t *testing.T) {
	instance = ""
	assert.Equal(t, ipc.ServiceName, serviceName())

	instance = "desk"
	defer func() { instance = "" }()
	assert.Equal(t, ipc.InstanceServiceName("desk"), serviceName())
}

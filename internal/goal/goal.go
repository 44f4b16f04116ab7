// Package goal projects the optional countdown to a stored deadline.
package goal

import (
	"fmt"
	"time"
)

// DefaultWarnWithin is how close a deadline must be to be flagged.
const DefaultWarnWithin = 48 * time.Hour

type Status int

const (
	StatusNone Status = iota
	StatusNormal
	StatusWarning
	StatusOverdue
)

func (s Status) String() string {
	switch s {
	case StatusNormal:
		return "normal"
	case StatusWarning:
		return "warning"
	case StatusOverdue:
		return "overdue"
	default:
		return "none"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none", "":
		*s = StatusNone
	case "normal":
		*s = StatusNormal
	case "warning":
		*s = StatusWarning
	case "overdue":
		*s = StatusOverdue
	default:
		return fmt.Errorf("unknown goal status %q", string(text))
	}
	return nil
}

// Projection is what a renderer needs to display the goal.
type Projection struct {
	Active      bool          `json:"active"`
	Text        string        `json:"text,omitempty"`
	HasDeadline bool          `json:"hasDeadline"`
	DueAt       time.Time     `json:"dueAt,omitzero"`
	Remaining   time.Duration `json:"remaining,omitempty"`
	Status      Status        `json:"status"`
	Label       string        `json:"label,omitempty"`
}

// Project computes the countdown for text and dueAt at now. Empty text
// means the feature is inactive; a zero dueAt means no deadline.
func Project(text string, dueAt, now time.Time, warnWithin time.Duration) Projection {
	if text == "" {
		return Projection{Status: StatusNone}
	}
	p := Projection{Active: true, Text: text, Status: StatusNone}
	if dueAt.IsZero() {
		return p
	}
	if warnWithin <= 0 {
		warnWithin = DefaultWarnWithin
	}

	p.HasDeadline = true
	p.DueAt = dueAt
	p.Remaining = dueAt.Sub(now)
	switch {
	case p.Remaining < 0:
		p.Status = StatusOverdue
	case p.Remaining <= warnWithin:
		p.Status = StatusWarning
	default:
		p.Status = StatusNormal
	}
	p.Label = Label(p.Remaining)
	return p
}

// Label formats remaining time in its largest whole unit.
func Label(remaining time.Duration) string {
	switch {
	case remaining < 0:
		return "overdue"
	case remaining >= 24*time.Hour:
		return fmt.Sprintf("%dd left", int64(remaining/(24*time.Hour)))
	case remaining >= time.Hour:
		return fmt.Sprintf("%dh left", int64(remaining/time.Hour))
	default:
		return fmt.Sprintf("%dm left", int64(remaining/time.Minute))
	}
}

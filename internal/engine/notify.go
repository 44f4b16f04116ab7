package engine

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/SoarinFerret/ActivityLedger/internal/goal"
)

// DesktopNotifier posts goal notifications through
// org.freedesktop.Notifications on the given session bus.
type DesktopNotifier struct {
	conn    *dbus.Conn
	appName string
}

func NewDesktopNotifier(conn *dbus.Conn) *DesktopNotifier {
	return &DesktopNotifier{conn: conn, appName: "ActivityLedger"}
}

func (n *DesktopNotifier) Notify(ctx context.Context, p goal.Projection) error {
	summary, body, urgency := notificationText(p)

	obj := n.conn.Object("org.freedesktop.Notifications", "/org/freedesktop/Notifications")
	call := obj.CallWithContext(ctx, "org.freedesktop.Notifications.Notify", 0,
		n.appName,        // app_name
		uint32(0),        // replaces_id
		"dialog-warning", // app_icon
		summary,          // summary
		body,             // body
		[]string{},       // actions
		map[string]dbus.Variant{ // hints
			"urgency": dbus.MakeVariant(urgency),
		},
		int32(10000), // expire_timeout (10 seconds)
	)

	if call.Err != nil {
		return fmt.Errorf("failed to send notification: %w", call.Err)
	}

	return nil
}

// notificationText returns summary, body and urgency for a projection.
func notificationText(p goal.Projection) (string, string, byte) {
	if p.Status == goal.StatusOverdue {
		return "Goal overdue", fmt.Sprintf("%s is past its deadline", p.Text), 2
	}
	return "Goal deadline approaching", fmt.Sprintf("%s: %s", p.Text, p.Label), 1
}

package loginctl

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/godbus/dbus/v5"
)

const (
	login1Service   = "org.freedesktop.login1"
	login1Path      = "/org/freedesktop/login1"
	managerIface    = "org.freedesktop.login1.Manager"
	sessionIface    = "org.freedesktop.login1.Session"
	propertiesIface = "org.freedesktop.DBus.Properties"
)

// Sink receives engagement changes derived from logind.
type Sink interface {
	SetVisible(bool)
	SetFocused(bool)
	RecordInteraction()
}

// watcher folds logind signals into visible/focused state for one session.
type watcher struct {
	session  dbus.ObjectPath // empty matches every session
	sink     Sink
	sleeping bool
	active   bool
	locked   bool
	idle     bool
}

func newWatcher(session dbus.ObjectPath, sink Sink) *watcher {
	return &watcher{session: session, sink: sink, active: true}
}

// Watch follows logind on the system bus until ctx is cancelled. The
// session of this process is resolved from its PID or XDG_SESSION_ID; when
// neither resolves, every session's changes are applied.
func Watch(ctx context.Context, sink Sink) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}
	defer conn.Close()

	session, err := ownSession(conn)
	if err != nil {
		log.Println("Could not resolve own logind session, following all sessions:", err)
	} else {
		log.Println("Following logind session", session)
	}
	w := newWatcher(session, sink)
	if session != "" {
		w.loadInitial(conn)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(login1Path),
		dbus.WithMatchInterface(managerIface),
		dbus.WithMatchMember("PrepareForSleep"),
	); err != nil {
		return fmt.Errorf("add match failed: %w", err)
	}

	// watch for property changes (session locked, idle, switched away)
	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(propertiesIface),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		return fmt.Errorf("add match for PropertiesChanged failed: %w", err)
	}

	c := make(chan *dbus.Signal, 10)
	conn.Signal(c)
	defer conn.RemoveSignal(c)

	for {
		select {
		case sig, ok := <-c:
			if !ok {
				return nil
			}
			w.handleSignal(sig)
		case <-ctx.Done():
			return nil
		}
	}
}

// handleSignal applies one logind signal and reports whether it changed
// anything.
func (w *watcher) handleSignal(sig *dbus.Signal) bool {
	switch sig.Name {
	case managerIface + ".PrepareForSleep":
		if len(sig.Body) == 0 {
			return false
		}
		sleeping, ok := sig.Body[0].(bool)
		if !ok {
			return false
		}
		if sleeping {
			log.Println("System is going to sleep")
		} else {
			log.Println("System has woken up")
		}
		w.sleeping = sleeping
		w.push(false)
		return true

	case propertiesIface + ".PropertiesChanged":
		if len(sig.Body) < 2 {
			return false
		}
		iface, ok := sig.Body[0].(string)
		if !ok || iface != sessionIface {
			return false
		}
		if w.session != "" && sig.Path != w.session {
			return false
		}
		changed, ok := sig.Body[1].(map[string]dbus.Variant)
		if !ok {
			return false
		}
		return w.applyProperties(changed)
	}
	return false
}

func (w *watcher) applyProperties(props map[string]dbus.Variant) bool {
	handled := false
	interaction := false
	if v, ok := boolProp(props, "LockedHint"); ok {
		interaction = w.locked && !v
		w.locked = v
		handled = true
	}
	if v, ok := boolProp(props, "IdleHint"); ok {
		interaction = interaction || (w.idle && !v)
		w.idle = v
		handled = true
	}
	if v, ok := boolProp(props, "Active"); ok {
		w.active = v
		handled = true
	}
	if handled {
		w.push(interaction)
	}
	return handled
}

// push forwards the folded state. Unlocking and leaving idle count as an
// interaction.
func (w *watcher) push(interaction bool) {
	w.sink.SetVisible(w.active && !w.sleeping)
	w.sink.SetFocused(!w.locked && !w.idle)
	if interaction {
		w.sink.RecordInteraction()
	}
}

func (w *watcher) loadInitial(conn *dbus.Conn) {
	obj := conn.Object(login1Service, w.session)
	props := map[string]dbus.Variant{}
	for _, name := range []string{"LockedHint", "IdleHint", "Active"} {
		v, err := obj.GetProperty(sessionIface + "." + name)
		if err != nil {
			log.Printf("Failed to read session %s: %v", name, err)
			continue
		}
		props[name] = v
	}
	w.applyProperties(props)
}

func boolProp(props map[string]dbus.Variant, name string) (bool, bool) {
	v, ok := props[name]
	if !ok {
		return false, false
	}
	b, ok := v.Value().(bool)
	return b, ok
}

func ownSession(conn *dbus.Conn) (dbus.ObjectPath, error) {
	manager := conn.Object(login1Service, login1Path)

	var path dbus.ObjectPath
	err := manager.Call(managerIface+".GetSessionByPID", 0, uint32(os.Getpid())).Store(&path)
	if err == nil {
		return path, nil
	}
	if id := os.Getenv("XDG_SESSION_ID"); id != "" {
		if err := manager.Call(managerIface+".GetSession", 0, id).Store(&path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("failed to get session for pid %d: %w", os.Getpid(), err)
}

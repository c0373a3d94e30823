//go:build linux

package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	dbusNotifyDest      = "org.freedesktop.Notifications"
	dbusNotifyPath      = "/org/freedesktop/Notifications"
	dbusNotifyInterface = "org.freedesktop.Notifications"

	signalActionInvoked      = dbusNotifyInterface + ".ActionInvoked"
	signalNotificationClosed = dbusNotifyInterface + ".NotificationClosed"

	actionBufferSize = 16
)

// dbusNotifier sends notifications via D-Bus.
type dbusNotifier struct {
	appName string
	conn    *dbus.Conn
	obj     dbus.BusObject
	log     *zap.Logger

	signals chan *dbus.Signal
	actions chan ActionResponse
	done    chan struct{}

	mu         sync.Mutex
	categories map[string]Category
	sent       map[uint32]struct{}
	shutdown   bool
}

// New creates a Notifier that sends desktop notifications via D-Bus.
// Returns a no-op notifier if D-Bus is unavailable.
func New(appName string, log *zap.Logger) (Notifier, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := dbus.SessionBus()
	if err != nil {
		log.Info("no session bus, notifications disabled", zap.Error(err))
		return Nop{}, nil //nolint:nilerr // graceful fallback when D-Bus unavailable
	}

	n := &dbusNotifier{
		appName:    appName,
		conn:       conn,
		obj:        conn.Object(dbusNotifyDest, dbusNotifyPath),
		log:        log,
		signals:    make(chan *dbus.Signal, actionBufferSize),
		actions:    make(chan ActionResponse, actionBufferSize),
		done:       make(chan struct{}),
		categories: make(map[string]Category),
		sent:       make(map[uint32]struct{}),
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(dbusNotifyPath),
		dbus.WithMatchInterface(dbusNotifyInterface),
	); err != nil {
		log.Warn("subscribe to notification signals", zap.Error(err))
	}
	conn.Signal(n.signals)
	go n.listen()

	return n, nil
}

// listen forwards ActionInvoked signals and forgets closed notifications.
func (n *dbusNotifier) listen() {
	defer close(n.actions)
	for {
		select {
		case <-n.done:
			return
		case sig, ok := <-n.signals:
			if !ok {
				return
			}
			n.handleSignal(sig)
		}
	}
}

func (n *dbusNotifier) handleSignal(sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		return
	}
	id, ok := sig.Body[0].(uint32)
	if !ok {
		return
	}

	switch sig.Name {
	case signalActionInvoked:
		key, _ := sig.Body[1].(string)
		if !n.owns(id) {
			return
		}
		select {
		case n.actions <- ActionResponse{NotificationID: id, ActionID: key}:
		default:
			n.log.Warn("dropping notification action", zap.String("action", key))
		}
	case signalNotificationClosed:
		n.mu.Lock()
		delete(n.sent, id)
		n.mu.Unlock()
	}
}

// owns reports whether id was sent by this notifier. Other applications'
// notifications raise the same signals.
func (n *dbusNotifier) owns(id uint32) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.sent[id]
	return ok
}

// RegisterCategory stores the category's actions for later notifications.
func (n *dbusNotifier) RegisterCategory(c Category) error {
	if c.ID == "" {
		return errors.New("category id is empty")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.categories[c.ID] = c
	return nil
}

// Notify sends a notification via D-Bus.
func (n *dbusNotifier) Notify(ctx context.Context, notif Notification) (uint32, error) {
	n.mu.Lock()
	cat := n.categories[notif.Category]
	n.mu.Unlock()

	// Build hints map
	hints := map[string]dbus.Variant{
		"urgency":       dbus.MakeVariant(byte(notif.Urgency)),
		"desktop-entry": dbus.MakeVariant(n.appName),
	}
	if notif.Category != "" {
		hints["category"] = dbus.MakeVariant(notif.Category)
	}
	for k, v := range notif.Payload {
		hints["x-"+n.appName+"-"+k] = dbus.MakeVariant(v)
	}

	actions := actionList(cat, notif.ActionTitles)

	// D-Bus Notify method signature:
	// Notify(app_name, replaces_id, icon, summary, body, actions, hints, timeout) -> id
	call := n.obj.CallWithContext(ctx,
		dbusNotifyInterface+".Notify",
		0,             // flags
		n.appName,     // app_name
		uint32(0),     // replaces_id
		notif.Icon,    // app_icon (path or icon name)
		notif.Title,   // summary
		notif.Body,    // body
		actions,       // actions
		hints,         // hints
		notif.Timeout, // expire_timeout
	)

	if call.Err != nil {
		return 0, call.Err
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, err
	}

	n.mu.Lock()
	n.sent[id] = struct{}{}
	n.mu.Unlock()
	return id, nil
}

// actionList flattens actions into the D-Bus [key, label, key, label...] form.
func actionList(c Category, titles map[string]string) []string {
	out := make([]string, 0, 2*len(c.Actions))
	for _, a := range c.Actions {
		title := a.Title
		if t, ok := titles[a.ID]; ok {
			title = t
		}
		out = append(out, a.ID, title)
	}
	return out
}

// Close closes a notification by ID.
func (n *dbusNotifier) Close(ctx context.Context, id uint32) error {
	n.mu.Lock()
	delete(n.sent, id)
	n.mu.Unlock()

	call := n.obj.CallWithContext(ctx, dbusNotifyInterface+".CloseNotification", 0, id)
	return call.Err
}

// CloseAll closes every notification still open.
func (n *dbusNotifier) CloseAll(ctx context.Context) error {
	n.mu.Lock()
	ids := make([]uint32, 0, len(n.sent))
	for id := range n.sent {
		ids = append(ids, id)
	}
	n.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := n.Close(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *dbusNotifier) Actions() <-chan ActionResponse {
	return n.actions
}

// Shutdown stops listening for signals. The shared session bus stays open.
func (n *dbusNotifier) Shutdown() error {
	n.mu.Lock()
	if n.shutdown {
		n.mu.Unlock()
		return nil
	}
	n.shutdown = true
	n.mu.Unlock()

	n.conn.RemoveSignal(n.signals)
	close(n.done)
	return n.conn.RemoveMatchSignal(
		dbus.WithMatchObjectPath(dbusNotifyPath),
		dbus.WithMatchInterface(dbusNotifyInterface),
	)
}

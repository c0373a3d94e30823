// Package notify provides desktop notifications via D-Bus.
package notify

import "context"

// Urgency represents notification priority levels per freedesktop spec.
type Urgency byte

const (
	UrgencyLow      Urgency = 0
	UrgencyNormal   Urgency = 1
	UrgencyCritical Urgency = 2
)

// DefaultActionID is the action reported when the notification body is clicked.
const DefaultActionID = "default"

// Action is a button on a notification.
type Action struct {
	ID    string
	Title string
}

// Category is a named set of actions shared by notifications.
type Category struct {
	ID      string
	Actions []Action
}

// Notification contains data for a desktop notification.
type Notification struct {
	Title    string  // Summary text (required)
	Body     string  // Body text (optional, supports basic markup)
	Icon     string  // Path, file:// URI or icon name (optional)
	Timeout  int32   // ms, -1 = server default, 0 = never expire
	Urgency  Urgency // Low, Normal, Critical
	Category string  // registered category id; its actions are attached
	// ActionTitles overrides category action titles by action id.
	ActionTitles map[string]string
	Payload      map[string]string
}

// ActionResponse is a user's interaction with a notification.
type ActionResponse struct {
	NotificationID uint32
	ActionID       string
}

// Notifier sends desktop notifications.
type Notifier interface {
	// RegisterCategory makes a category's actions available to Notify.
	RegisterCategory(c Category) error
	// Notify sends a notification and returns its ID.
	// Returns 0 and nil error if notifications are disabled or unavailable.
	Notify(ctx context.Context, n Notification) (uint32, error)
	// Close closes a notification by ID.
	Close(ctx context.Context, id uint32) error
	// CloseAll closes every notification this notifier sent.
	CloseAll(ctx context.Context) error
	// Actions delivers action responses. It may be nil.
	Actions() <-chan ActionResponse
	// Shutdown releases the notifier's connection.
	Shutdown() error
}

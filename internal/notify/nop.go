package notify

import "context"

// Nop is a notifier that shows nothing. It is used when notifications are
// disabled or no notification server is reachable.
type Nop struct{}

func (Nop) RegisterCategory(Category) error                      { return nil }
func (Nop) Notify(context.Context, Notification) (uint32, error) { return 0, nil }
func (Nop) Close(context.Context, uint32) error                  { return nil }
func (Nop) CloseAll(context.Context) error                       { return nil }
func (Nop) Actions() <-chan ActionResponse                       { return nil }
func (Nop) Shutdown() error                                      { return nil }

var _ Notifier = Nop{}

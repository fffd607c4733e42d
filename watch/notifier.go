package watch

import "context"

// Notification is one accountNotification or programNotification frame.
// Params is already in wire form.
type Notification struct {
	Method string
	Params any
}

// Notifier delivers notifications to one subscriber connection. Notify is
// called from the commit loop, so a slow notifier delays every later commit
// for that watcher.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

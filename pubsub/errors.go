package pubsub

import (
	"errors"
	"fmt"
)

var (
	// ErrTransportSevered means the server side dropped the connection
	// before the endpoint was shut down.
	ErrTransportSevered = errors.New("pubsub: transport severed")
	// ErrClosed is returned by operations on an endpoint that is shutting
	// down or closed.
	ErrClosed = errors.New("pubsub: endpoint closed")
)

// SubscriptionError reports a subscription that could not be established.
type SubscriptionError struct {
	Kind   Kind
	Target string
	Err    error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("%s subscription to %s: %v", e.Kind, e.Target, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// ShutdownError reports a shutdown whose unsubscribe or transport teardown
// could not be confirmed. The endpoint's log is still valid.
type ShutdownError struct {
	Kind   Kind
	Target string
	Err    error
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("shutdown %s subscription to %s: %v", e.Kind, e.Target, e.Err)
}

func (e *ShutdownError) Unwrap() error { return e.Err }

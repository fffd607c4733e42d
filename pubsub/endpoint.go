// Package pubsub is the client side of account and program subscriptions.
// Each Endpoint owns one NotificationChannel and materializes its
// notifications into an append-only log that callers read at their own pace.
package pubsub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/acctwatch/server/ledger"
	"github.com/acctwatch/server/rpc"
)

const defaultShutdownTimeout = 5 * time.Second

type Options struct {
	// Commitment is passed through on subscribe. Empty lets the server pick.
	Commitment rpc.Commitment
	// Filters narrow program subscriptions. Ignored for account subscriptions.
	Filters []rpc.Filter
	// QueueSize bounds the events buffered between the transport and the log
	// writer. A full queue applies backpressure to the connection.
	QueueSize int
	// ShutdownTimeout bounds Shutdown.
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = defaultShutdownTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type State int

const (
	StateOpen State = iota
	StateShuttingDown
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateShuttingDown:
		return "shutting_down"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Endpoint is one live subscription and its notification log.
type Endpoint struct {
	kind   Kind
	target ledger.Key
	opts   Options
	ch     *NotificationChannel

	mu    sync.RWMutex
	log   []Notification
	state State

	shutdownMu sync.Mutex
	stop       chan struct{}
	writerDone chan struct{}
}

// Open establishes a subscription to target on the pubsub server at url.
// Failures are reported as *SubscriptionError.
func Open(ctx context.Context, url string, kind Kind, target string, opts Options) (*Endpoint, error) {
	opts = opts.withDefaults()

	if !kind.valid() {
		return nil, &SubscriptionError{Kind: kind, Target: target, Err: fmt.Errorf("unknown kind")}
	}
	key, err := ledger.ParseKey(target)
	if err != nil {
		return nil, &SubscriptionError{Kind: kind, Target: target, Err: err}
	}

	ch, err := dialChannel(ctx, url, kind, key, opts)
	if err != nil {
		return nil, &SubscriptionError{Kind: kind, Target: target, Err: err}
	}

	e := &Endpoint{
		kind:       kind,
		target:     key,
		opts:       opts,
		ch:         ch,
		state:      StateOpen,
		stop:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	go e.writeLoop()

	opts.Logger.Debug("subscription opened", "kind", kind.String(), "target", key, "subscription", ch.ID())
	return e, nil
}

// writeLoop is the only writer of the log.
func (e *Endpoint) writeLoop() {
	defer close(e.writerDone)
	queue := e.ch.queue()
	for {
		select {
		case <-e.stop:
			return
		case ev := <-queue:
			if ev.barrier != nil {
				close(ev.barrier)
				continue
			}
			e.mu.Lock()
			if e.state == StateOpen {
				e.log = append(e.log, ev.note)
			}
			e.mu.Unlock()
		}
	}
}

func (e *Endpoint) Kind() Kind         { return e.kind }
func (e *Endpoint) Target() ledger.Key { return e.target }

// ID is the server-assigned subscription id.
func (e *Endpoint) ID() uint64 { return e.ch.ID() }

// Len is the number of notifications logged so far.
func (e *Endpoint) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.log)
}

// Notifications returns a copy of the log in commit order.
func (e *Endpoint) Notifications() []Notification {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Notification, len(e.log))
	copy(out, e.log)
	return out
}

func (e *Endpoint) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Severed reports whether the server dropped the transport.
func (e *Endpoint) Severed() bool {
	return e.ch.Severed()
}

// Sync waits until every notification the server sent before this call has
// been appended to the log. After a confirmed mutation, Len is exact once
// Sync returns.
func (e *Endpoint) Sync(ctx context.Context) error {
	if e.State() != StateOpen {
		return ErrClosed
	}
	barrier, err := e.ch.sync(ctx)
	if err != nil {
		return fmt.Errorf("sync %s subscription to %s: %w", e.kind, e.target, err)
	}
	select {
	case <-barrier:
		return nil
	case <-e.writerDone:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops logging, unsubscribes and closes the transport, taking at
// most ShutdownTimeout. It must be called once per endpoint; later calls
// return nil. A *ShutdownError leaves the log intact.
func (e *Endpoint) Shutdown(ctx context.Context) error {
	e.shutdownMu.Lock()
	defer e.shutdownMu.Unlock()

	e.mu.Lock()
	if e.state != StateOpen {
		e.mu.Unlock()
		return nil
	}
	e.state = StateShuttingDown
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, e.opts.ShutdownTimeout)
	defer cancel()

	err := e.ch.Close(ctx)
	close(e.stop)
	<-e.writerDone

	e.mu.Lock()
	e.state = StateClosed
	n := len(e.log)
	e.mu.Unlock()

	if err != nil {
		e.opts.Logger.Warn("subscription shutdown failed", "kind", e.kind.String(), "target", e.target, "error", err)
		return &ShutdownError{Kind: e.kind, Target: e.target.String(), Err: err}
	}
	e.opts.Logger.Debug("subscription closed", "kind", e.kind.String(), "target", e.target, "notifications", n)
	return nil
}

package pubsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/acctwatch/server/ledger"
	"github.com/acctwatch/server/rpc"
	"github.com/coder/websocket"
	"github.com/sourcegraph/jsonrpc2"
)

const defaultQueueSize = 1024

// event is one queue item. A barrier carries no notification; the consumer
// closes it once everything queued before it has been handled.
type event struct {
	note    Notification
	barrier chan struct{}
}

// NotificationChannel is one WebSocket connection carrying exactly one
// subscription. Notifications are decoded in the connection's read loop and
// queued in arrival order; the queue has a single consumer.
type NotificationChannel struct {
	kind   Kind
	target ledger.Key
	log    *slog.Logger

	stream *rpc.WebSocketStream
	conn   *jsonrpc2.Conn
	// id is zero until the subscribe reply arrives.
	id atomic.Uint64

	events    chan event
	closing   chan struct{}
	closeOnce sync.Once
	severed   atomic.Bool
}

// dialChannel connects to url and subscribes to target. The subscription id
// is known once it returns; notifications arriving ahead of the reply are
// kept, since the connection carries nothing else.
func dialChannel(ctx context.Context, url string, kind Kind, target ledger.Key, opts Options) (*NotificationChannel, error) {
	wsConn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	c := &NotificationChannel{
		kind:    kind,
		target:  target,
		log:     opts.Logger.With("kind", kind.String(), "target", target),
		stream:  rpc.NewWebSocketStream(wsConn),
		events:  make(chan event, opts.QueueSize),
		closing: make(chan struct{}),
	}
	// The handler runs synchronously in the read loop so queue order is
	// arrival order.
	c.conn = jsonrpc2.NewConn(context.Background(), c.stream, c)

	var id uint64
	if err := c.conn.Call(ctx, kind.subscribeMethod(), kind.subscribeParams(target, opts), &id); err != nil {
		c.closeOnce.Do(func() { close(c.closing) })
		c.conn.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	c.id.Store(id)

	go c.watchDisconnect()
	return c, nil
}

func (c *NotificationChannel) ID() uint64 { return c.id.Load() }

// Handle implements jsonrpc2.Handler.
func (c *NotificationChannel) Handle(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) {
	if !req.Notif || req.Method != c.kind.notificationMethod() {
		c.log.Debug("ignoring unexpected message", "method", req.Method)
		return
	}
	note, err := c.kind.decode(c.target, req.Params)
	if err != nil {
		c.log.Warn("dropping malformed notification", "error", err)
		return
	}
	if id := c.id.Load(); id != 0 && note.Subscription != id {
		c.log.Warn("dropping notification for another subscription", "subscription", note.Subscription, "want", id)
		return
	}

	select {
	case c.events <- event{note: note}:
	case <-c.closing:
	}
}

func (c *NotificationChannel) watchDisconnect() {
	<-c.conn.DisconnectNotify()
	select {
	case <-c.closing:
	default:
		c.severed.Store(true)
		c.log.Warn("transport severed by server")
	}
}

// Severed reports whether the server dropped the connection first.
func (c *NotificationChannel) Severed() bool {
	return c.severed.Load()
}

func (c *NotificationChannel) queue() <-chan event {
	return c.events
}

// sync returns once every notification the server sent before replying to
// a getSlot on this connection has been queued, followed by a barrier.
func (c *NotificationChannel) sync(ctx context.Context) (chan struct{}, error) {
	var slot uint64
	if err := c.conn.Call(ctx, rpc.MethodGetSlot, nil, &slot); err != nil {
		if c.Severed() {
			return nil, ErrTransportSevered
		}
		return nil, err
	}

	barrier := make(chan struct{})
	select {
	case c.events <- event{barrier: barrier}:
		return barrier, nil
	case <-c.closing:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops queueing, unsubscribes and tears the connection down, waiting
// for the read loop to exit until ctx is done.
func (c *NotificationChannel) Close(ctx context.Context) error {
	select {
	case <-c.conn.DisconnectNotify():
		c.severed.Store(true)
	default:
	}
	c.closeOnce.Do(func() { close(c.closing) })

	var errs []error
	if c.Severed() {
		errs = append(errs, ErrTransportSevered)
	} else {
		var ok bool
		err := c.conn.Call(ctx, c.kind.unsubscribeMethod(), rpc.UnsubscribeParams{ID: c.ID()}, &ok)
		switch {
		case err != nil && c.Severed():
			errs = append(errs, ErrTransportSevered)
		case err != nil:
			errs = append(errs, fmt.Errorf("unsubscribe: %w", err))
		case !ok:
			errs = append(errs, errors.New("unsubscribe not confirmed"))
		}
	}

	go c.conn.Close()

	select {
	case <-c.conn.DisconnectNotify():
	case <-ctx.Done():
		c.stream.Abort()
		errs = append(errs, fmt.Errorf("close transport: %w", ctx.Err()))
	}
	return errors.Join(errs...)
}

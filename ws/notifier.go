package ws

import (
	"context"

	"github.com/acctwatch/server/watch"
	"github.com/sourcegraph/jsonrpc2"
)

// JSONRPCNotifier adapts jsonrpc2.Conn to watch.Notifier interface.
type JSONRPCNotifier struct {
	conn *jsonrpc2.Conn
}

var _ watch.Notifier = (*JSONRPCNotifier)(nil)

func NewJSONRPCNotifier(conn *jsonrpc2.Conn) *JSONRPCNotifier {
	return &JSONRPCNotifier{conn: conn}
}

// Notify fails fast once the peer is gone instead of attempting the write.
func (n *JSONRPCNotifier) Notify(ctx context.Context, notif watch.Notification) error {
	select {
	case <-n.conn.DisconnectNotify():
		return jsonrpc2.ErrClosed
	default:
	}
	return n.conn.Notify(ctx, notif.Method, notif.Params)
}

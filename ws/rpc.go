package ws

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/acctwatch/server/ledger"
	"github.com/acctwatch/server/logger"
	"github.com/acctwatch/server/rpc"
	"github.com/acctwatch/server/watch"
	"github.com/coder/websocket"
	"github.com/sourcegraph/jsonrpc2"
)

const defaultConfirmTimeout = 10 * time.Second

type Options struct {
	// Token, when set, must be passed as the "token" query parameter.
	Token string
	// InsecureSkipVerify disables the websocket origin check.
	InsecureSkipVerify bool
	// ConfirmTimeout bounds how long sendTransaction waits for notification
	// fan-out at confirmed/finalized commitment.
	ConfirmTimeout time.Duration
}

// RPCHandler handles JSON-RPC 2.0 over WebSocket.
type RPCHandler struct {
	opts   Options
	ledger *ledger.Ledger
	hub    *watch.Hub

	connsMu sync.Mutex
	conns   map[*rpc.WebSocketStream]struct{}
	closed  bool
}

func NewRPCHandler(l *ledger.Ledger, hub *watch.Hub, opts Options) *RPCHandler {
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = defaultConfirmTimeout
	}
	return &RPCHandler{
		opts:   opts,
		ledger: l,
		hub:    hub,
		conns:  make(map[*rpc.WebSocketStream]struct{}),
	}
}

func (h *RPCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.opts.Token != "" {
		queryToken := r.URL.Query().Get("token")
		if queryToken == "" {
			http.Error(w, "Missing token", http.StatusUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(queryToken), []byte(h.opts.Token)) != 1 {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: h.opts.InsecureSkipVerify,
	})
	if err != nil {
		slog.Error("failed to accept websocket", "error", err)
		return
	}

	stream := rpc.NewWebSocketStream(conn)
	if !h.track(stream) {
		stream.GoAway("server shutting down")
		return
	}
	defer h.untrack(stream)

	h.HandleStream(r.Context(), stream)
}

func (h *RPCHandler) track(s *rpc.WebSocketStream) bool {
	h.connsMu.Lock()
	defer h.connsMu.Unlock()
	if h.closed {
		return false
	}
	h.conns[s] = struct{}{}
	return true
}

func (h *RPCHandler) untrack(s *rpc.WebSocketStream) {
	h.connsMu.Lock()
	defer h.connsMu.Unlock()
	delete(h.conns, s)
}

// Close disconnects every open connection and refuses new ones. It returns
// the number of connections closed.
func (h *RPCHandler) Close() int {
	h.connsMu.Lock()
	h.closed = true
	conns := make([]*rpc.WebSocketStream, 0, len(h.conns))
	for s := range h.conns {
		conns = append(conns, s)
	}
	h.connsMu.Unlock()

	var wg sync.WaitGroup
	for _, s := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.GoAway("server shutting down")
		}()
	}
	wg.Wait()
	return len(conns)
}

// HandleStream serves one JSON-RPC connection until it disconnects, then
// drops every subscription it opened.
func (h *RPCHandler) HandleStream(ctx context.Context, stream jsonrpc2.ObjectStream) {
	log, connID := logger.NewConnLogger()

	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r, "websocket connection crashed", "connId", connID)
		}
	}()

	log.Info("new connection")

	state := &rpcConnState{
		connID:        connID,
		log:           log,
		subscriptions: make(map[uint64]watch.Watcher),
	}

	handler := &rpcMethodHandler{
		RPCHandler: h,
		state:      state,
		log:        log,
	}

	// Handlers run under connCtx so a pending confirmation wait ends with
	// the connection.
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rpcConn := jsonrpc2.NewConn(connCtx, stream, jsonrpc2.AsyncHandler(handler))
	state.setConn(rpcConn)

	<-rpcConn.DisconnectNotify()
	cancel()

	n := state.cleanup()
	log.Info("connection closed", "droppedSubscriptions", n)
}

// rpcConnState tracks per-connection state.
type rpcConnState struct {
	mu            sync.Mutex
	connID        string
	conn          *jsonrpc2.Conn
	notifier      *JSONRPCNotifier
	log           *slog.Logger
	subscriptions map[uint64]watch.Watcher // subID → watcher for cleanup
	closed        bool
	inflight      sync.WaitGroup
}

// begin registers a request handler. It reports false once cleanup started.
func (s *rpcConnState) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.inflight.Add(1)
	return true
}

func (s *rpcConnState) done() {
	s.inflight.Done()
}

func (s *rpcConnState) setConn(conn *jsonrpc2.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.notifier = NewJSONRPCNotifier(conn)
	s.mu.Unlock()
}

func (s *rpcConnState) getNotifier() watch.Notifier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifier
}

// trackSubscription records id for cleanup. It reports false if the
// connection is already closed; the caller must then drop the subscription.
func (s *rpcConnState) trackSubscription(id uint64, watcher watch.Watcher) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.subscriptions[id] = watcher
	return true
}

// untrackSubscription removes id only if it was opened by this connection
// through watcher.
func (s *rpcConnState) untrackSubscription(id uint64, watcher watch.Watcher) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.subscriptions[id]; !ok || w != watcher {
		return false
	}
	delete(s.subscriptions, id)
	return true
}

// cleanup refuses new handlers, waits for running ones and unsubscribes
// everything the connection still holds.
func (s *rpcConnState) cleanup() int {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.inflight.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.subscriptions)
	for id, watcher := range s.subscriptions {
		watcher.Unsubscribe(id)
	}
	clear(s.subscriptions)
	return n
}

type rpcMethodHandler struct {
	*RPCHandler
	state *rpcConnState
	log   *slog.Logger
}

func (h *rpcMethodHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	if !h.state.begin() {
		h.log.Debug("dropping request after disconnect", "method", req.Method)
		return
	}
	defer h.state.done()

	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r, "rpc handler panic", "method", req.Method, "connId", h.state.connID)
		}
	}()

	if req.Notif {
		h.log.Debug("ignoring client notification", "method", req.Method)
		return
	}

	h.log.Debug("received request", "method", req.Method, "id", req.ID)

	switch req.Method {
	case rpc.MethodAccountSubscribe:
		h.handleAccountSubscribe(ctx, conn, req)
	case rpc.MethodAccountUnsubscribe:
		h.handleUnsubscribe(ctx, conn, req, h.hub.Accounts, "account")
	case rpc.MethodProgramSubscribe:
		h.handleProgramSubscribe(ctx, conn, req)
	case rpc.MethodProgramUnsubscribe:
		h.handleUnsubscribe(ctx, conn, req, h.hub.Programs, "program")
	case rpc.MethodGetAccountInfo:
		h.handleGetAccountInfo(ctx, conn, req)
	case rpc.MethodGetSlot:
		h.handleGetSlot(ctx, conn, req)
	case rpc.MethodSendTransaction:
		h.handleSendTransaction(ctx, conn, req)
	default:
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (h *rpcMethodHandler) replyError(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID, code int64, message string) {
	err := &jsonrpc2.Error{
		Code:    code,
		Message: message,
	}
	if replyErr := conn.ReplyWithError(ctx, id, err); replyErr != nil {
		h.log.Error("failed to send error response", "error", replyErr)
	}
}

func (h *rpcMethodHandler) reply(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, result any) {
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send response", "method", req.Method, "error", err)
	}
}

func unmarshalParams(req *jsonrpc2.Request, v interface{}) error {
	if req.Params == nil {
		return errors.New("params required")
	}
	return json.Unmarshal(*req.Params, v)
}

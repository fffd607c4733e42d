// Package validator runs a single-node test validator: an in-memory ledger
// with provisioned counter accounts behind a JSON-RPC pubsub endpoint.
package validator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/acctwatch/server/ledger"
	"github.com/acctwatch/server/middleware"
	"github.com/acctwatch/server/watch"
	"github.com/acctwatch/server/ws"
)

const defaultAddr = "127.0.0.1:0"

type Config struct {
	// Addr defaults to a free loopback port.
	Addr string
	// Keys are provisioned as counter accounts at genesis.
	Keys  []ledger.Key
	Token string
	// CommitBuffer is the per-watcher commit channel size.
	CommitBuffer   int
	ConfirmTimeout time.Duration
}

type Validator struct {
	cfg      Config
	ledger   *ledger.Ledger
	hub      *watch.Hub
	rpc      *ws.RPCHandler
	listener net.Listener
	server   *http.Server
	serveErr chan error

	closeOnce sync.Once
	closeErr  error
}

// Start boots the ledger and serves it until Close. ctx only bounds startup.
func Start(ctx context.Context, cfg Config) (*Validator, error) {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}

	genesis := make([]ledger.Account, 0, len(cfg.Keys))
	for _, key := range cfg.Keys {
		genesis = append(genesis, ledger.NewCounter(key))
	}
	l := ledger.New(genesis...)

	hub := watch.NewHub(l, cfg.CommitBuffer)
	hub.Start()

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", cfg.Addr)
	if err != nil {
		hub.Stop()
		return nil, fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}

	v := &Validator{
		cfg:      cfg,
		ledger:   l,
		hub:      hub,
		listener: listener,
		serveErr: make(chan error, 1),
	}
	v.rpc = ws.NewRPCHandler(l, hub, ws.Options{
		Token:          cfg.Token,
		ConfirmTimeout: cfg.ConfirmTimeout,
	})
	v.server = &http.Server{
		Handler:           v.newHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		err := v.server.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		v.serveErr <- err
	}()

	slog.Info("validator started", "addr", listener.Addr().String(), "accounts", len(cfg.Keys))
	return v, nil
}

func (v *Validator) newHandler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /api/subscriptions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v.hub.Stats())
	})

	// WebSocket endpoint (handles its own auth via query param)
	mux.Handle("GET /ws", v.rpc)

	return middleware.Auth(v.cfg.Token, "/health", "/ws")(mux)
}

func (v *Validator) Addr() string {
	return v.listener.Addr().String()
}

// HTTPURL is the base URL of the admin endpoints.
func (v *Validator) HTTPURL() string {
	return "http://" + v.Addr()
}

// PubsubURL is the WebSocket URL clients subscribe on, token included.
func (v *Validator) PubsubURL() string {
	u := url.URL{Scheme: "ws", Host: v.Addr(), Path: "/ws"}
	if v.cfg.Token != "" {
		u.RawQuery = url.Values{"token": {v.cfg.Token}}.Encode()
	}
	return u.String()
}

func (v *Validator) Keys() []ledger.Key {
	return append([]ledger.Key(nil), v.cfg.Keys...)
}

func (v *Validator) Ledger() *ledger.Ledger { return v.ledger }
func (v *Validator) Hub() *watch.Hub        { return v.hub }

// Close stops accepting requests, disconnects pubsub clients and stops the
// watchers. Later calls return the first result.
func (v *Validator) Close(ctx context.Context) error {
	v.closeOnce.Do(func() { v.closeErr = v.close(ctx) })
	return v.closeErr
}

func (v *Validator) close(ctx context.Context) error {
	shutdownErr := v.server.Shutdown(ctx)
	n := v.rpc.Close()
	v.hub.Stop()

	var serveErr error
	select {
	case serveErr = <-v.serveErr:
	case <-ctx.Done():
		serveErr = ctx.Err()
	}

	slog.Info("validator stopped", "disconnected", n)
	return errors.Join(shutdownErr, serveErr)
}

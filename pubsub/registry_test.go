package pubsub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/acctwatch/server/ledger"
	"github.com/acctwatch/server/validator"
)

func TestRegistry_ShutdownAll(t *testing.T) {
	env := newTestEnv(t, 2)
	reg := NewRegistry(env.v.PubsubURL(), Options{})

	for _, key := range env.keys {
		if _, err := reg.Open(env.ctx, KindAccount, key.String()); err != nil {
			t.Fatalf("Open: %v", err)
		}
	}
	if _, err := reg.Open(env.ctx, KindProgram, ledger.CounterProgram.String()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if n := len(reg.Leaked()); n != 3 {
		t.Errorf("expected 3 open endpoints, got %d", n)
	}

	if err := reg.ShutdownAll(env.ctx); err != nil {
		t.Fatalf("ShutdownAll: %v", err)
	}
	if leaked := reg.Leaked(); len(leaked) != 0 {
		t.Errorf("expected no leaked endpoints, got %d", len(leaked))
	}
	if stats := env.v.Hub().Stats(); stats.Account != 0 || stats.Program != 0 {
		t.Errorf("expected server subscriptions to be gone, got %+v", stats)
	}
	if err := reg.ShutdownAll(env.ctx); err != nil {
		t.Errorf("second ShutdownAll: %v", err)
	}
}

func TestRegistry_OpenFailureNotTracked(t *testing.T) {
	reg := NewRegistry("ws://127.0.0.1:1/ws", Options{})
	if _, err := reg.Open(context.Background(), KindAccount, ""); err == nil {
		t.Fatal("expected error for empty target")
	}
	if n := len(reg.Endpoints()); n != 0 {
		t.Errorf("expected nothing tracked, got %d", n)
	}
}

func TestRegistry_ShutdownAllAggregates(t *testing.T) {
	healthy := newTestEnv(t, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	brokenKey := ledger.NewKey()
	broken, err := validator.Start(ctx, validator.Config{Keys: []ledger.Key{brokenKey}})
	if err != nil {
		t.Fatalf("start validator: %v", err)
	}
	t.Cleanup(func() { broken.Close(context.Background()) })

	reg := NewRegistry(healthy.v.PubsubURL(), Options{})
	good, err := reg.Open(ctx, KindAccount, healthy.keys[0].String())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	bad, err := Open(ctx, broken.PubsubURL(), KindAccount, brokenKey.String(), Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	reg.Track(bad)

	if err := broken.Close(ctx); err != nil {
		t.Fatalf("close validator: %v", err)
	}
	for !bad.Severed() {
		if ctx.Err() != nil {
			t.Fatal("endpoint did not observe the disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}

	err = reg.ShutdownAll(ctx)
	var shutdownErr *ShutdownError
	if !errors.As(err, &shutdownErr) {
		t.Fatalf("expected *ShutdownError, got %v", err)
	}
	if shutdownErr.Target != brokenKey.String() {
		t.Errorf("expected failure for %s, got %s", brokenKey, shutdownErr.Target)
	}
	if good.State() != StateClosed || bad.State() != StateClosed {
		t.Errorf("expected both endpoints closed, got %s and %s", good.State(), bad.State())
	}
	if leaked := reg.Leaked(); len(leaked) != 0 {
		t.Errorf("expected no leaked endpoints, got %d", len(leaked))
	}
}

// Package watch turns ledger commits into subscription notifications.
package watch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/acctwatch/server/ledger"
	"github.com/acctwatch/server/rpc"
)

// Subscription is one registered subscriber. Target is the account key for
// account subscriptions and the program id for program subscriptions.
type Subscription struct {
	ID         uint64
	Notifier   Notifier
	Target     ledger.Key
	Commitment rpc.Commitment
	Filters    []DataFilter
}

// IDSource hands out subscription ids unique across every watcher sharing it.
type IDSource struct {
	next atomic.Uint64
}

func (s *IDSource) Next() uint64 {
	return s.next.Add(1)
}

// BaseWatcher provides common subscription management for all watcher types.
type BaseWatcher struct {
	ids *IDSource

	subMu         sync.RWMutex
	subscriptions map[uint64]*Subscription

	ctx    context.Context
	cancel context.CancelFunc
}

func NewBaseWatcher(ids *IDSource) *BaseWatcher {
	if ids == nil {
		ids = &IDSource{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BaseWatcher{
		ids:           ids,
		subscriptions: make(map[uint64]*Subscription),
		ctx:           ctx,
		cancel:        cancel,
	}
}

func (b *BaseWatcher) GenerateID() uint64 {
	return b.ids.Next()
}

func (b *BaseWatcher) AddSubscription(sub *Subscription) {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	b.subscriptions[sub.ID] = sub
}

func (b *BaseWatcher) RemoveSubscription(id uint64) *Subscription {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	sub, ok := b.subscriptions[id]
	if !ok {
		return nil
	}

	delete(b.subscriptions, id)
	return sub
}

func (b *BaseWatcher) GetAllSubscriptions() []*Subscription {
	b.subMu.RLock()
	defer b.subMu.RUnlock()

	subs := make([]*Subscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		subs = append(subs, sub)
	}
	return subs
}

func (b *BaseWatcher) GetSubscription(id uint64) *Subscription {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	return b.subscriptions[id]
}

// NotifyMatching sends method to every subscription for which makeParams
// reports a match, and returns how many were notified.
func (b *BaseWatcher) NotifyMatching(method string, makeParams func(sub *Subscription) (any, bool)) int {
	sent := 0
	for _, sub := range b.GetAllSubscriptions() {
		params, ok := makeParams(sub)
		if !ok {
			continue
		}
		n := Notification{Method: method, Params: params}
		if err := sub.Notifier.Notify(b.ctx, n); err != nil {
			slog.Debug("failed to notify subscriber",
				"id", sub.ID,
				"method", method,
				"error", err)
			continue
		}
		sent++
	}
	return sent
}

func (b *BaseWatcher) Context() context.Context { return b.ctx }
func (b *BaseWatcher) Cancel()                  { b.cancel() }

func (b *BaseWatcher) Count() int {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	return len(b.subscriptions)
}

func (b *BaseWatcher) HasSubscriptions() bool {
	return b.Count() > 0
}

// Unsubscribe removes the subscription and reports whether it existed.
func (b *BaseWatcher) Unsubscribe(id uint64) bool {
	return b.RemoveSubscription(id) != nil
}

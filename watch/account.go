package watch

import (
	"log/slog"

	"github.com/acctwatch/server/ledger"
	"github.com/acctwatch/server/rpc"
)

// AccountWatcher notifies subscribers of every write to a single account.
type AccountWatcher struct {
	*BaseWatcher
	*commitFeed
}

func NewAccountWatcher(ids *IDSource, buffer int) *AccountWatcher {
	w := &AccountWatcher{BaseWatcher: NewBaseWatcher(ids)}
	w.commitFeed = newCommitFeed(w.Context(), buffer, w.handleCommit)
	return w
}

func (w *AccountWatcher) Start() {
	go w.eventLoop()
	slog.Info("AccountWatcher started")
}

func (w *AccountWatcher) Stop() {
	w.Cancel()
	slog.Info("AccountWatcher stopped")
}

// Subscribe registers notifier for writes to key and returns the subscription id.
func (w *AccountWatcher) Subscribe(notifier Notifier, key ledger.Key, commitment rpc.Commitment) uint64 {
	sub := &Subscription{
		ID:         w.GenerateID(),
		Notifier:   notifier,
		Target:     key,
		Commitment: commitment,
	}
	w.AddSubscription(sub)
	return sub.ID
}

func (w *AccountWatcher) handleCommit(c ledger.Commit) {
	if !w.HasSubscriptions() {
		return
	}
	for _, u := range c.Updates {
		n := w.NotifyMatching(rpc.MethodAccountNotification, func(sub *Subscription) (any, bool) {
			if !matchesAccount(sub, u) {
				return nil, false
			}
			return rpc.AccountNotificationParams{
				Subscription: sub.ID,
				Result: rpc.AccountNotificationResult{
					Context: rpc.Context{Slot: c.Slot},
					Value:   rpc.EncodeAccount(u.Account),
				},
			}, true
		})
		if n > 0 {
			slog.Debug("notified account update", "pubkey", u.Account.Key, "slot", c.Slot, "removed", u.Removed, "subscribers", n)
		}
	}
}

package watch

import (
	"log/slog"

	"github.com/acctwatch/server/ledger"
	"github.com/acctwatch/server/rpc"
)

// ProgramWatcher notifies subscribers of writes to any account whose owner,
// after the commit, is the subscribed program.
type ProgramWatcher struct {
	*BaseWatcher
	*commitFeed
}

func NewProgramWatcher(ids *IDSource, buffer int) *ProgramWatcher {
	w := &ProgramWatcher{BaseWatcher: NewBaseWatcher(ids)}
	w.commitFeed = newCommitFeed(w.Context(), buffer, w.handleCommit)
	return w
}

func (w *ProgramWatcher) Start() {
	go w.eventLoop()
	slog.Info("ProgramWatcher started")
}

func (w *ProgramWatcher) Stop() {
	w.Cancel()
	slog.Info("ProgramWatcher stopped")
}

// Subscribe registers notifier for accounts owned by program that pass every filter.
func (w *ProgramWatcher) Subscribe(notifier Notifier, program ledger.Key, commitment rpc.Commitment, filters []DataFilter) uint64 {
	sub := &Subscription{
		ID:         w.GenerateID(),
		Notifier:   notifier,
		Target:     program,
		Commitment: commitment,
		Filters:    filters,
	}
	w.AddSubscription(sub)
	return sub.ID
}

func (w *ProgramWatcher) handleCommit(c ledger.Commit) {
	if !w.HasSubscriptions() {
		return
	}
	for _, u := range c.Updates {
		n := w.NotifyMatching(rpc.MethodProgramNotification, func(sub *Subscription) (any, bool) {
			if !matchesProgram(sub, u) {
				return nil, false
			}
			return rpc.ProgramNotificationParams{
				Subscription: sub.ID,
				Result: rpc.ProgramNotificationResult{
					Context: rpc.Context{Slot: c.Slot},
					Value: rpc.KeyedAccount{
						Pubkey:  u.Account.Key.String(),
						Account: rpc.EncodeAccount(u.Account),
					},
				},
			}, true
		})
		if n > 0 {
			slog.Debug("notified program account update", "pubkey", u.Account.Key, "owner", u.Account.Owner, "slot", c.Slot, "subscribers", n)
		}
	}
}

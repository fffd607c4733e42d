package watch

import (
	"context"

	"github.com/acctwatch/server/ledger"
	"github.com/acctwatch/server/rpc"
)

// Watcher is the unsubscribe side shared by both watcher kinds, used for
// per-connection cleanup.
type Watcher interface {
	Unsubscribe(id uint64) bool
}

// Hub owns the account and program watchers of one ledger.
type Hub struct {
	ledger   *ledger.Ledger
	Accounts *AccountWatcher
	Programs *ProgramWatcher
}

func NewHub(l *ledger.Ledger, buffer int) *Hub {
	ids := &IDSource{}
	return &Hub{
		ledger:   l,
		Accounts: NewAccountWatcher(ids, buffer),
		Programs: NewProgramWatcher(ids, buffer),
	}
}

func (h *Hub) Start() {
	h.Accounts.Start()
	h.Programs.Start()
	h.ledger.AddListener(h.Accounts)
	h.ledger.AddListener(h.Programs)
}

// Stop cancels the watchers before detaching them so a commit blocked on a
// full buffer is released.
func (h *Hub) Stop() {
	h.Accounts.Stop()
	h.Programs.Stop()
	h.ledger.RemoveListener(h.Accounts)
	h.ledger.RemoveListener(h.Programs)
}

// WaitFlushed blocks until both watchers have pushed every notification for slot.
func (h *Hub) WaitFlushed(ctx context.Context, slot uint64) error {
	if err := h.Accounts.WaitFlushed(ctx, slot); err != nil {
		return err
	}
	return h.Programs.WaitFlushed(ctx, slot)
}

func (h *Hub) Stats() rpc.SubscriptionStats {
	return rpc.SubscriptionStats{
		Account: h.Accounts.Count(),
		Program: h.Programs.Count(),
		Slot:    h.ledger.Slot(),
		Flushed: min(h.Accounts.FlushedSlot(), h.Programs.FlushedSlot()),
	}
}

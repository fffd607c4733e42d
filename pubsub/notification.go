package pubsub

import "github.com/acctwatch/server/ledger"

// Notification is one observed commit, as delivered to a subscription.
type Notification struct {
	// Subscription is the server-assigned subscription id.
	Subscription uint64
	Slot         uint64
	// Account is the post-commit snapshot. For a closed account it has the
	// system program as owner, zero lamports and no data.
	Account ledger.Account
}

// Closed reports whether the snapshot shows a destroyed account.
func (n Notification) Closed() bool {
	return !n.Account.Alive() && n.Account.Owner == ledger.SystemProgram
}

package ledger

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// CommitListener is called for every commit, in commit order.
// It runs while the ledger lock is held: it must not call back into the
// ledger and must not modify the commit.
type CommitListener interface {
	OnCommit(c Commit)
}

// Ledger holds accounts and serializes instruction processing.
type Ledger struct {
	mu        sync.Mutex
	slot      uint64
	accounts  map[Key]Account
	listeners []CommitListener
}

// New creates a ledger seeded with the genesis accounts.
func New(genesis ...Account) *Ledger {
	l := &Ledger{accounts: make(map[Key]Account, len(genesis))}
	for _, a := range genesis {
		l.accounts[a.Key] = a.Clone()
	}
	return l
}

func (l *Ledger) AddListener(lis CommitListener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, lis)
}

func (l *Ledger) RemoveListener(lis CommitListener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = slices.DeleteFunc(l.listeners, func(x CommitListener) bool { return x == lis })
}

// Get returns a copy of the account, or false if it does not exist.
func (l *Ledger) Get(key Key) (Account, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[key]
	if !ok {
		return Account{}, false
	}
	return a.Clone(), true
}

// Lookup is Get plus the slot the read was taken at.
func (l *Ledger) Lookup(key Key) (Account, uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[key]
	if !ok {
		return Account{}, l.slot, false
	}
	return a.Clone(), l.slot, true
}

// Slot returns the slot of the latest commit.
func (l *Ledger) Slot() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.slot
}

// Apply runs ins atomically. On error the ledger is unchanged and no commit
// is published.
func (l *Ledger) Apply(ins Instruction) (Commit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ins.ProgramID != CounterProgram {
		return Commit{}, fmt.Errorf("%w: unknown program %s", ErrInvalidInstruction, ins.ProgramID)
	}

	tx := &txn{ledger: l, work: make(map[Key]*Account)}
	if err := runCounter(tx, ins); err != nil {
		return Commit{}, err
	}

	l.slot++
	commit := Commit{
		Slot:      l.slot,
		Signature: uuid.Must(uuid.NewV7()).String(),
		Updates:   make([]AccountUpdate, 0, len(tx.written)),
	}
	for _, key := range tx.written {
		a := tx.work[key]
		removed := tx.isRemoved(key)
		if removed {
			delete(l.accounts, key)
		} else {
			l.accounts[key] = a.Clone()
		}
		commit.Updates = append(commit.Updates, AccountUpdate{Account: a.Clone(), Removed: removed})
	}

	for _, lis := range l.listeners {
		lis.OnCommit(commit)
	}
	return commit, nil
}

// txn is the working set of one instruction. Nothing reaches the ledger
// until Apply copies it back.
type txn struct {
	ledger  *Ledger
	work    map[Key]*Account
	written []Key
	removed []Key
}

func (t *txn) load(key Key) (*Account, bool) {
	if a, ok := t.work[key]; ok {
		return a, true
	}
	a, ok := t.ledger.accounts[key]
	if !ok {
		return nil, false
	}
	c := a.Clone()
	t.work[key] = &c
	return &c, true
}

func (t *txn) loadOrCreate(key, owner Key) *Account {
	if a, ok := t.load(key); ok {
		return a
	}
	a := &Account{Key: key, Owner: owner, Data: []byte{}}
	t.work[key] = a
	return a
}

func (t *txn) write(key Key) {
	if !slices.Contains(t.written, key) {
		t.written = append(t.written, key)
	}
}

func (t *txn) remove(key Key) {
	t.write(key)
	t.removed = append(t.removed, key)
}

func (t *txn) isRemoved(key Key) bool {
	return slices.Contains(t.removed, key)
}

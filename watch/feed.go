package watch

import (
	"context"
	"errors"
	"sync"

	"github.com/acctwatch/server/ledger"
)

// ErrStopped is returned when waiting on a watcher that has been stopped.
var ErrStopped = errors.New("watcher stopped")

const DefaultCommitBuffer = 256

// commitFeed moves ledger commits onto the watcher's own goroutine.
// OnCommit runs under the ledger lock; it blocks on a full buffer rather than
// dropping, so every commit is delivered in order.
type commitFeed struct {
	ctx     context.Context
	eventCh chan ledger.Commit
	handle  func(ledger.Commit)

	mu      sync.Mutex
	flushed uint64
	changed chan struct{}
}

func newCommitFeed(ctx context.Context, buffer int, handle func(ledger.Commit)) *commitFeed {
	if buffer <= 0 {
		buffer = DefaultCommitBuffer
	}
	return &commitFeed{
		ctx:     ctx,
		eventCh: make(chan ledger.Commit, buffer),
		handle:  handle,
		changed: make(chan struct{}),
	}
}

// OnCommit implements ledger.CommitListener.
func (f *commitFeed) OnCommit(c ledger.Commit) {
	select {
	case f.eventCh <- c:
	case <-f.ctx.Done():
	}
}

func (f *commitFeed) eventLoop() {
	for {
		select {
		case <-f.ctx.Done():
			return
		case c := <-f.eventCh:
			f.handle(c)
			f.advance(c.Slot)
		}
	}
}

func (f *commitFeed) advance(slot uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if slot > f.flushed {
		f.flushed = slot
	}
	close(f.changed)
	f.changed = make(chan struct{})
}

// FlushedSlot is the latest slot whose notifications have all been handed to
// the subscribers' transports.
func (f *commitFeed) FlushedSlot() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushed
}

// WaitFlushed blocks until slot has been flushed.
func (f *commitFeed) WaitFlushed(ctx context.Context, slot uint64) error {
	for {
		f.mu.Lock()
		done := f.flushed >= slot
		changed := f.changed
		f.mu.Unlock()

		if done {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		case <-f.ctx.Done():
			return ErrStopped
		}
	}
}

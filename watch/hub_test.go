package watch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/acctwatch/server/ledger"
	"github.com/acctwatch/server/rpc"
)

type recordingNotifier struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return nil
}

func (r *recordingNotifier) all() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notes...)
}

var failingNotifier = NotifierFunc(func(context.Context, Notification) error {
	return errors.New("broken pipe")
})

type hubEnv struct {
	t      *testing.T
	ledger *ledger.Ledger
	hub    *Hub
}

func newHubEnv(t *testing.T, keys ...ledger.Key) *hubEnv {
	genesis := make([]ledger.Account, len(keys))
	for i, k := range keys {
		genesis[i] = ledger.NewCounter(k)
	}
	l := ledger.New(genesis...)
	hub := NewHub(l, 4)
	hub.Start()
	t.Cleanup(hub.Stop)
	return &hubEnv{t: t, ledger: l, hub: hub}
}

// apply runs ins and waits until its notifications have been delivered.
func (e *hubEnv) apply(ins ledger.Instruction) {
	e.t.Helper()
	commit, err := e.ledger.Apply(ins)
	if err != nil {
		e.t.Fatalf("apply: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.hub.WaitFlushed(ctx, commit.Slot); err != nil {
		e.t.Fatalf("wait flushed: %v", err)
	}
}

func TestHub_ClosureAsymmetry(t *testing.T) {
	key1, key2 := ledger.NewKey(), ledger.NewKey()
	env := newHubEnv(t, key1, key2)

	acct1 := &recordingNotifier{}
	acct2 := &recordingNotifier{}
	prog := &recordingNotifier{}
	env.hub.Accounts.Subscribe(acct1, key1, rpc.CommitmentProcessed)
	env.hub.Accounts.Subscribe(acct2, key2, rpc.CommitmentProcessed)
	progID := env.hub.Programs.Subscribe(prog, ledger.CounterProgram, rpc.CommitmentProcessed, nil)

	for i := 0; i < 3; i++ {
		env.apply(ledger.IncrementInstruction(key1))
		env.apply(ledger.IncrementInstruction(key2))
	}
	env.apply(ledger.CloseInstruction(key2))

	if got := len(acct1.all()); got != 3 {
		t.Errorf("account #1: expected 3 notifications, got %d", got)
	}
	if got := len(acct2.all()); got != 4 {
		t.Errorf("account #2: expected 4 notifications, got %d", got)
	}
	progNotes := prog.all()
	if len(progNotes) != 6 {
		t.Errorf("program: expected 6 notifications, got %d", len(progNotes))
	}

	last := acct2.all()[3]
	if last.Method != rpc.MethodAccountNotification {
		t.Errorf("expected %s, got %s", rpc.MethodAccountNotification, last.Method)
	}
	params := last.Params.(rpc.AccountNotificationParams)
	if params.Result.Value.Owner != ledger.SystemProgram.String() {
		t.Errorf("expected close to report owner %s, got %s", ledger.SystemProgram, params.Result.Value.Owner)
	}
	if params.Result.Value.Lamports != 0 || params.Result.Value.Space != 0 {
		t.Errorf("expected zeroed account in close notification, got %+v", params.Result.Value)
	}

	for _, n := range progNotes {
		p := n.Params.(rpc.ProgramNotificationParams)
		if p.Subscription != progID {
			t.Errorf("expected subscription %d, got %d", progID, p.Subscription)
		}
		if p.Result.Value.Account.Owner != ledger.CounterProgram.String() {
			t.Errorf("program notification with foreign owner %s", p.Result.Value.Account.Owner)
		}
	}
}

func TestHub_NotificationsInCommitOrder(t *testing.T) {
	key := ledger.NewKey()
	env := newHubEnv(t, key)
	rec := &recordingNotifier{}
	env.hub.Accounts.Subscribe(rec, key, rpc.CommitmentProcessed)

	// More commits than the feed buffer holds.
	for i := 0; i < 20; i++ {
		if _, err := env.ledger.Apply(ledger.IncrementInstruction(key)); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := env.hub.WaitFlushed(ctx, env.ledger.Slot()); err != nil {
		t.Fatalf("wait flushed: %v", err)
	}

	notes := rec.all()
	if len(notes) != 20 {
		t.Fatalf("expected 20 notifications, got %d", len(notes))
	}
	var prev uint64
	for i, n := range notes {
		slot := n.Params.(rpc.AccountNotificationParams).Result.Context.Slot
		if slot <= prev {
			t.Fatalf("notification %d out of order: slot %d after %d", i, slot, prev)
		}
		prev = slot
	}
}

func TestHub_ProgramFilters(t *testing.T) {
	key1, key2 := ledger.NewKey(), ledger.NewKey()
	env := newHubEnv(t, key1, key2)

	sized := &recordingNotifier{}
	wrongSize := &recordingNotifier{}
	valueTwo := &recordingNotifier{}
	env.hub.Programs.Subscribe(sized, ledger.CounterProgram, rpc.CommitmentProcessed, []DataFilter{DataSize(1)})
	env.hub.Programs.Subscribe(wrongSize, ledger.CounterProgram, rpc.CommitmentProcessed, []DataFilter{DataSize(8)})
	env.hub.Programs.Subscribe(valueTwo, ledger.CounterProgram, rpc.CommitmentProcessed, []DataFilter{Memcmp(0, []byte{2})})

	env.apply(ledger.IncrementInstruction(key1)) // key1 = 1
	env.apply(ledger.IncrementInstruction(key1)) // key1 = 2
	env.apply(ledger.IncrementInstruction(key2)) // key2 = 1

	if got := len(sized.all()); got != 3 {
		t.Errorf("dataSize(1): expected 3, got %d", got)
	}
	if got := len(wrongSize.all()); got != 0 {
		t.Errorf("dataSize(8): expected 0, got %d", got)
	}
	if got := len(valueTwo.all()); got != 1 {
		t.Errorf("memcmp(0, 02): expected 1, got %d", got)
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	key := ledger.NewKey()
	env := newHubEnv(t, key)
	rec := &recordingNotifier{}
	id := env.hub.Accounts.Subscribe(rec, key, rpc.CommitmentProcessed)

	env.apply(ledger.IncrementInstruction(key))
	if !env.hub.Accounts.Unsubscribe(id) {
		t.Fatal("expected unsubscribe to succeed")
	}
	if env.hub.Accounts.Unsubscribe(id) {
		t.Error("expected second unsubscribe to report false")
	}
	env.apply(ledger.IncrementInstruction(key))

	if got := len(rec.all()); got != 1 {
		t.Errorf("expected 1 notification, got %d", got)
	}
}

func TestHub_FailingNotifierDoesNotBlockOthers(t *testing.T) {
	key := ledger.NewKey()
	env := newHubEnv(t, key)
	rec := &recordingNotifier{}
	env.hub.Accounts.Subscribe(failingNotifier, key, rpc.CommitmentProcessed)
	env.hub.Accounts.Subscribe(rec, key, rpc.CommitmentProcessed)

	env.apply(ledger.IncrementInstruction(key))

	if got := len(rec.all()); got != 1 {
		t.Errorf("expected 1 notification, got %d", got)
	}
}

func TestHub_Stats(t *testing.T) {
	key := ledger.NewKey()
	env := newHubEnv(t, key)
	env.hub.Accounts.Subscribe(&recordingNotifier{}, key, rpc.CommitmentProcessed)
	env.hub.Programs.Subscribe(&recordingNotifier{}, ledger.CounterProgram, rpc.CommitmentProcessed, nil)
	env.hub.Programs.Subscribe(&recordingNotifier{}, ledger.CounterProgram, rpc.CommitmentProcessed, nil)
	env.apply(ledger.IncrementInstruction(key))

	stats := env.hub.Stats()
	if stats.Account != 1 || stats.Program != 2 || stats.Slot != 1 || stats.Flushed != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestHub_WaitFlushedAfterStop(t *testing.T) {
	l := ledger.New()
	hub := NewHub(l, 1)
	hub.Start()
	hub.Stop()

	err := hub.WaitFlushed(context.Background(), 1)
	if !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}

func TestFiltersFromWire(t *testing.T) {
	size := 1
	neg := -1
	tests := []struct {
		name    string
		filters []rpc.Filter
		wantErr bool
	}{
		{"none", nil, false},
		{"dataSize", []rpc.Filter{{DataSize: &size}}, false},
		{"memcmp", []rpc.Filter{{Memcmp: &rpc.Memcmp{Offset: 0, Bytes: "AQ=="}}}, false},
		{"both set", []rpc.Filter{{DataSize: &size, Memcmp: &rpc.Memcmp{Bytes: "AQ=="}}}, true},
		{"empty", []rpc.Filter{{}}, true},
		{"negative size", []rpc.Filter{{DataSize: &neg}}, true},
		{"bad bytes", []rpc.Filter{{Memcmp: &rpc.Memcmp{Bytes: "!!"}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FiltersFromWire(tt.filters)
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestMemcmp_OutOfRange(t *testing.T) {
	f := Memcmp(1, []byte{0})
	if f([]byte{0}) {
		t.Error("expected no match past the end of data")
	}
	if f(nil) {
		t.Error("expected no match on empty data")
	}
}

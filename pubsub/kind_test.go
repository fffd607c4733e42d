package pubsub

import (
	"encoding/json"
	"testing"

	"github.com/acctwatch/server/ledger"
	"github.com/acctwatch/server/rpc"
)

func TestKind_Methods(t *testing.T) {
	tests := []struct {
		kind                      Kind
		sub, unsub, notif, String string
	}{
		{KindAccount, rpc.MethodAccountSubscribe, rpc.MethodAccountUnsubscribe, rpc.MethodAccountNotification, "account"},
		{KindProgram, rpc.MethodProgramSubscribe, rpc.MethodProgramUnsubscribe, rpc.MethodProgramNotification, "program"},
	}
	for _, tt := range tests {
		t.Run(tt.String, func(t *testing.T) {
			if got := tt.kind.subscribeMethod(); got != tt.sub {
				t.Errorf("subscribe: got %s", got)
			}
			if got := tt.kind.unsubscribeMethod(); got != tt.unsub {
				t.Errorf("unsubscribe: got %s", got)
			}
			if got := tt.kind.notificationMethod(); got != tt.notif {
				t.Errorf("notification: got %s", got)
			}
			if got := tt.kind.String(); got != tt.String {
				t.Errorf("String: got %s", got)
			}
		})
	}
}

func TestKind_Decode(t *testing.T) {
	key := ledger.NewKey()
	acc := ledger.NewCounter(key)
	acc.Data[0] = 9

	t.Run("account uses target", func(t *testing.T) {
		raw, _ := json.Marshal(rpc.AccountNotificationParams{
			Subscription: 4,
			Result: rpc.AccountNotificationResult{
				Context: rpc.Context{Slot: 12},
				Value:   rpc.EncodeAccount(acc),
			},
		})
		msg := json.RawMessage(raw)
		note, err := KindAccount.decode(key, &msg)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if note.Subscription != 4 || note.Slot != 12 || note.Account.Key != key || note.Account.Data[0] != 9 {
			t.Errorf("unexpected notification %+v", note)
		}
	})

	t.Run("program uses pubkey", func(t *testing.T) {
		raw, _ := json.Marshal(rpc.ProgramNotificationParams{
			Subscription: 5,
			Result: rpc.ProgramNotificationResult{
				Context: rpc.Context{Slot: 13},
				Value:   rpc.KeyedAccount{Pubkey: key.String(), Account: rpc.EncodeAccount(acc)},
			},
		})
		msg := json.RawMessage(raw)
		note, err := KindProgram.decode(ledger.CounterProgram, &msg)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if note.Account.Key != key || note.Account.Owner != ledger.CounterProgram {
			t.Errorf("unexpected notification %+v", note)
		}
	})

	t.Run("nil params", func(t *testing.T) {
		if _, err := KindAccount.decode(key, nil); err == nil {
			t.Error("expected error")
		}
	})
}

func TestNotification_Closed(t *testing.T) {
	live := Notification{Account: ledger.NewCounter(ledger.NewKey())}
	if live.Closed() {
		t.Error("live counter reported closed")
	}
	dead := Notification{Account: ledger.Account{Owner: ledger.SystemProgram, Data: []byte{}}}
	if !dead.Closed() {
		t.Error("closed account not reported closed")
	}
}

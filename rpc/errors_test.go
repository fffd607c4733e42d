package rpc

import (
	"errors"
	"fmt"
	"testing"

	"github.com/acctwatch/server/ledger"
)

func TestLedgerError_RestoresAccountError(t *testing.T) {
	key := ledger.NewKey()
	orig := &ledger.AccountError{Op: "close", Key: key, Err: ledger.ErrMissingAccount}

	got := LedgerError(TransactionError(fmt.Errorf("apply: %w", orig)))

	if !errors.Is(got, ledger.ErrMissingAccount) {
		t.Fatalf("expected ErrMissingAccount, got %v", got)
	}
	var accErr *ledger.AccountError
	if !errors.As(got, &accErr) {
		t.Fatalf("expected AccountError, got %T", got)
	}
	if accErr.Key != key || accErr.Op != "close" {
		t.Errorf("unexpected fields %+v", accErr)
	}
}

func TestLedgerError_Kinds(t *testing.T) {
	for _, want := range []error{
		ledger.ErrMalformedData,
		ledger.ErrIllegalOwner,
		ledger.ErrInvalidInstruction,
	} {
		got := LedgerError(TransactionError(want))
		if !errors.Is(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	}
}

func TestLedgerError_PassesThroughOtherErrors(t *testing.T) {
	other := errors.New("connection reset")
	if got := LedgerError(other); got != other {
		t.Errorf("expected error unchanged, got %v", got)
	}
}

func TestDecodeAccount(t *testing.T) {
	acc := ledger.NewCounter(ledger.NewKey())
	acc.Data[0] = 9

	got, err := EncodeAccount(acc).Decode(acc.Key)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Owner != acc.Owner || got.Lamports != acc.Lamports || len(got.Data) != 1 || got.Data[0] != 9 {
		t.Errorf("expected %+v, got %+v", acc, got)
	}

	bad := UiAccount{Data: [2]string{"AA==", "base58"}}
	if _, err := bad.Decode(acc.Key); err == nil {
		t.Error("expected error for unsupported encoding")
	}
}

package rpc

import (
	"encoding/json"
	"errors"

	"github.com/acctwatch/server/ledger"
	"github.com/sourcegraph/jsonrpc2"
)

// CodeTransactionFailed is returned when an instruction is rejected by the ledger.
const CodeTransactionFailed int64 = -32002

// Transaction failure kinds carried in the error data.
const (
	KindMissingAccount     = "missing_account"
	KindMalformedData      = "malformed_data"
	KindIllegalOwner       = "illegal_owner"
	KindInvalidInstruction = "invalid_instruction"
)

type TransactionErrorData struct {
	Kind   string `json:"kind"`
	Pubkey string `json:"pubkey,omitempty"`
	Op     string `json:"op,omitempty"`
}

var kindErrors = []struct {
	kind string
	err  error
}{
	{KindMissingAccount, ledger.ErrMissingAccount},
	{KindMalformedData, ledger.ErrMalformedData},
	{KindIllegalOwner, ledger.ErrIllegalOwner},
	{KindInvalidInstruction, ledger.ErrInvalidInstruction},
}

// TransactionError converts a ledger failure into a JSON-RPC error.
func TransactionError(err error) *jsonrpc2.Error {
	data := TransactionErrorData{Kind: KindInvalidInstruction}
	for _, ke := range kindErrors {
		if errors.Is(err, ke.err) {
			data.Kind = ke.kind
			break
		}
	}
	var accErr *ledger.AccountError
	if errors.As(err, &accErr) {
		data.Pubkey = accErr.Key.String()
		data.Op = accErr.Op
	}

	rpcErr := &jsonrpc2.Error{Code: CodeTransactionFailed, Message: err.Error()}
	rpcErr.SetError(data)
	return rpcErr
}

// LedgerError converts a JSON-RPC error back into the ledger error it was
// built from. Errors of other shapes are returned unchanged.
func LedgerError(err error) error {
	var rpcErr *jsonrpc2.Error
	if !errors.As(err, &rpcErr) || rpcErr.Code != CodeTransactionFailed || rpcErr.Data == nil {
		return err
	}
	var data TransactionErrorData
	if json.Unmarshal(*rpcErr.Data, &data) != nil {
		return err
	}

	base := err
	for _, ke := range kindErrors {
		if ke.kind == data.Kind {
			base = ke.err
			break
		}
	}
	if data.Pubkey == "" {
		return base
	}
	return &ledger.AccountError{Op: data.Op, Key: ledger.Key(data.Pubkey), Err: base}
}

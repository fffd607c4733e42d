package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrMissingAccount     = errors.New("account not found")
	ErrMalformedData      = errors.New("account data too small")
	ErrIllegalOwner       = errors.New("account not owned by program")
	ErrInvalidInstruction = errors.New("invalid instruction")
	ErrMalformedKey       = errors.New("malformed key")
)

// AccountError reports a failed operation on a specific account.
type AccountError struct {
	Op  string
	Key Key
	Err error
}

func (e *AccountError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *AccountError) Unwrap() error { return e.Err }

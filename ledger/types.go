// Package ledger provides an in-memory single-node account ledger that runs
// the counter program and publishes every commit to its listeners.
package ledger

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
)

// Key identifies an account or a program.
type Key string

// Well-known keys.
const (
	SystemProgram  Key = "11111111111111111111111111111111"
	Incinerator    Key = "1nc1nerator11111111111111111111111111111111"
	CounterProgram Key = "Counter111111111111111111111111111111111111"
)

const maxKeyLen = 64

// NewKey returns a fresh unique key.
func NewKey() Key {
	return Key(uuid.Must(uuid.NewV7()).String())
}

// ParseKey validates s as a key.
func ParseKey(s string) (Key, error) {
	if s == "" || len(s) > maxKeyLen {
		return "", fmt.Errorf("%w: %q", ErrMalformedKey, s)
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return "", fmt.Errorf("%w: %q", ErrMalformedKey, s)
		}
	}
	return Key(s), nil
}

func (k Key) String() string { return string(k) }

// Account is a mutable record addressed by Key.
type Account struct {
	Key      Key    `json:"key"`
	Owner    Key    `json:"owner"`
	Lamports uint64 `json:"lamports"`
	Data     []byte `json:"data"`
}

// Alive reports whether the account still exists as a distinct entity.
func (a Account) Alive() bool {
	return a.Lamports > 0 || len(a.Data) > 0
}

// Clone returns a deep copy so callers never share the data slice with the ledger.
func (a Account) Clone() Account {
	a.Data = bytes.Clone(a.Data)
	if a.Data == nil {
		a.Data = []byte{}
	}
	return a
}

// MinimumBalance is the rent-exempt balance for an account holding dataLen bytes.
func MinimumBalance(dataLen int) uint64 {
	const (
		accountOverhead     = 128
		lamportsPerByteYear = 3480
		exemptionYears      = 2
	)
	return uint64(accountOverhead+dataLen) * lamportsPerByteYear * exemptionYears
}

// NewCounter returns a provisioned counter account owned by the counter program.
func NewCounter(key Key) Account {
	return Account{
		Key:      key,
		Owner:    CounterProgram,
		Lamports: MinimumBalance(1),
		Data:     []byte{0},
	}
}

// Instruction is one program invocation.
type Instruction struct {
	ProgramID Key
	Accounts  []Key
	Data      []byte
}

// Counter program opcodes.
const (
	OpIncrement byte = 0
	OpClose     byte = 1
)

// IncrementInstruction builds the counter increment for key.
func IncrementInstruction(key Key) Instruction {
	return Instruction{
		ProgramID: CounterProgram,
		Accounts:  []Key{key},
		Data:      []byte{OpIncrement},
	}
}

// CloseInstruction builds the counter close for key, sending lamports to the incinerator.
func CloseInstruction(key Key) Instruction {
	return Instruction{
		ProgramID: CounterProgram,
		Accounts:  []Key{key, Incinerator},
		Data:      []byte{OpClose},
	}
}

// AccountUpdate is the post-commit state of one written account.
type AccountUpdate struct {
	Account Account
	// Removed is set when the commit destroyed the account.
	Removed bool
}

// Commit is one applied instruction.
type Commit struct {
	Slot      uint64
	Signature string
	Updates   []AccountUpdate
}

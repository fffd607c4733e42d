// Package rpc defines JSON-RPC 2.0 wire format types for the pubsub and
// ledger endpoints.
package rpc

import (
	"encoding/base64"
	"fmt"

	"github.com/acctwatch/server/ledger"
)

// Methods
const (
	MethodAccountSubscribe    = "accountSubscribe"
	MethodAccountUnsubscribe  = "accountUnsubscribe"
	MethodAccountNotification = "accountNotification"
	MethodProgramSubscribe    = "programSubscribe"
	MethodProgramUnsubscribe  = "programUnsubscribe"
	MethodProgramNotification = "programNotification"
	MethodGetAccountInfo      = "getAccountInfo"
	MethodGetSlot             = "getSlot"
	MethodSendTransaction     = "sendTransaction"
)

type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// ParseCommitment validates c; empty means def.
func ParseCommitment(c Commitment, def Commitment) (Commitment, error) {
	switch c {
	case "":
		return def, nil
	case CommitmentProcessed, CommitmentConfirmed, CommitmentFinalized:
		return c, nil
	default:
		return "", fmt.Errorf("unknown commitment %q", c)
	}
}

const EncodingBase64 = "base64"

// ParseEncoding validates an account data encoding; empty means base64.
func ParseEncoding(enc string) error {
	if enc != "" && enc != EncodingBase64 {
		return fmt.Errorf("unsupported encoding %q", enc)
	}
	return nil
}

type Context struct {
	Slot uint64 `json:"slot"`
}

// UiAccount is the wire form of an account. Data is [payload, encoding].
type UiAccount struct {
	Lamports   uint64    `json:"lamports"`
	Owner      string    `json:"owner"`
	Data       [2]string `json:"data"`
	Executable bool      `json:"executable"`
	RentEpoch  uint64    `json:"rentEpoch"`
	Space      int       `json:"space"`
}

func EncodeAccount(a ledger.Account) UiAccount {
	return UiAccount{
		Lamports: a.Lamports,
		Owner:    a.Owner.String(),
		Data:     [2]string{base64.StdEncoding.EncodeToString(a.Data), EncodingBase64},
		Space:    len(a.Data),
	}
}

// Decode converts the wire form back into an account stored under key.
func (u UiAccount) Decode(key ledger.Key) (ledger.Account, error) {
	if u.Data[1] != "" && u.Data[1] != EncodingBase64 {
		return ledger.Account{}, fmt.Errorf("unsupported encoding %q", u.Data[1])
	}
	data, err := base64.StdEncoding.DecodeString(u.Data[0])
	if err != nil {
		return ledger.Account{}, fmt.Errorf("decode account data: %w", err)
	}
	return ledger.Account{
		Key:      key,
		Owner:    ledger.Key(u.Owner),
		Lamports: u.Lamports,
		Data:     data,
	}, nil
}

// Client → Server

type AccountSubscribeParams struct {
	Pubkey     string     `json:"pubkey"`
	Commitment Commitment `json:"commitment,omitempty"`
	Encoding   string     `json:"encoding,omitempty"`
}

type ProgramSubscribeParams struct {
	ProgramID  string     `json:"program_id"`
	Commitment Commitment `json:"commitment,omitempty"`
	Encoding   string     `json:"encoding,omitempty"`
	Filters    []Filter   `json:"filters,omitempty"`
}

// Filter narrows a program subscription. Exactly one field is set.
type Filter struct {
	DataSize *int    `json:"dataSize,omitempty"`
	Memcmp   *Memcmp `json:"memcmp,omitempty"`
}

// Memcmp matches Bytes (base64) at Offset of the account data.
type Memcmp struct {
	Offset int    `json:"offset"`
	Bytes  string `json:"bytes"`
}

type UnsubscribeParams struct {
	ID uint64 `json:"id"`
}

type GetAccountInfoParams struct {
	Pubkey     string     `json:"pubkey"`
	Commitment Commitment `json:"commitment,omitempty"`
}

type AccountInfoResult struct {
	Context Context    `json:"context"`
	Value   *UiAccount `json:"value"`
}

type InstructionParams struct {
	ProgramID string   `json:"program_id"`
	Accounts  []string `json:"accounts"`
	Data      string   `json:"data"` // base64
}

func EncodeInstruction(ins ledger.Instruction) InstructionParams {
	accounts := make([]string, len(ins.Accounts))
	for i, k := range ins.Accounts {
		accounts[i] = k.String()
	}
	return InstructionParams{
		ProgramID: ins.ProgramID.String(),
		Accounts:  accounts,
		Data:      base64.StdEncoding.EncodeToString(ins.Data),
	}
}

func (p InstructionParams) Decode() (ledger.Instruction, error) {
	programID, err := ledger.ParseKey(p.ProgramID)
	if err != nil {
		return ledger.Instruction{}, err
	}
	accounts := make([]ledger.Key, len(p.Accounts))
	for i, s := range p.Accounts {
		if accounts[i], err = ledger.ParseKey(s); err != nil {
			return ledger.Instruction{}, err
		}
	}
	data, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		return ledger.Instruction{}, fmt.Errorf("decode instruction data: %w", err)
	}
	return ledger.Instruction{ProgramID: programID, Accounts: accounts, Data: data}, nil
}

type SendTransactionParams struct {
	Instruction InstructionParams `json:"instruction"`
	Commitment  Commitment        `json:"commitment,omitempty"`
}

type SendTransactionResult struct {
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
}

// Server → Client

type AccountNotificationParams struct {
	Subscription uint64                    `json:"subscription"`
	Result       AccountNotificationResult `json:"result"`
}

type AccountNotificationResult struct {
	Context Context   `json:"context"`
	Value   UiAccount `json:"value"`
}

type ProgramNotificationParams struct {
	Subscription uint64                    `json:"subscription"`
	Result       ProgramNotificationResult `json:"result"`
}

type ProgramNotificationResult struct {
	Context Context      `json:"context"`
	Value   KeyedAccount `json:"value"`
}

type KeyedAccount struct {
	Pubkey  string    `json:"pubkey"`
	Account UiAccount `json:"account"`
}

// Health

type SubscriptionStats struct {
	Account int    `json:"account"`
	Program int    `json:"program"`
	Slot    uint64 `json:"slot"`
	// Flushed is the latest slot both watchers have fully delivered.
	Flushed uint64 `json:"flushed"`
}

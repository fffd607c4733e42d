// Package mutator is a JSON-RPC client that submits counter program
// instructions and reads current account state.
package mutator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/acctwatch/server/ledger"
	"github.com/acctwatch/server/rpc"
	"github.com/coder/websocket"
	"github.com/sourcegraph/jsonrpc2"
	"golang.org/x/time/rate"
)

type Options struct {
	// Commitment for submissions. Defaults to confirmed, which returns only
	// after the server has fanned out the commit's notifications.
	Commitment rpc.Commitment
	// RateLimit caps submissions per second. Zero means unlimited.
	RateLimit rate.Limit
	Burst     int
}

// Receipt confirms one committed instruction.
type Receipt struct {
	Signature string
	Slot      uint64
}

type Client struct {
	conn       *jsonrpc2.Conn
	commitment rpc.Commitment
	limiter    *rate.Limiter
}

// ignoreHandler drops server-initiated messages; this connection never subscribes.
type ignoreHandler struct{}

func (ignoreHandler) Handle(context.Context, *jsonrpc2.Conn, *jsonrpc2.Request) {}

func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	commitment, err := rpc.ParseCommitment(opts.Commitment, rpc.CommitmentConfirmed)
	if err != nil {
		return nil, err
	}

	wsConn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	limit, burst := rate.Inf, opts.Burst
	if opts.RateLimit > 0 {
		limit = opts.RateLimit
		if burst <= 0 {
			burst = 1
		}
	}

	return &Client{
		conn:       jsonrpc2.NewConn(context.Background(), rpc.NewWebSocketStream(wsConn), ignoreHandler{}),
		commitment: commitment,
		limiter:    rate.NewLimiter(limit, burst),
	}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Increment adds one to the counter in key's data, saturating at 255.
func (c *Client) Increment(ctx context.Context, key ledger.Key) (Receipt, error) {
	return c.submit(ctx, ledger.IncrementInstruction(key))
}

// CloseAccount destroys key: data emptied, lamports sent to the incinerator,
// owner reassigned to the system program.
func (c *Client) CloseAccount(ctx context.Context, key ledger.Key) (Receipt, error) {
	return c.submit(ctx, ledger.CloseInstruction(key))
}

// Submit sends an arbitrary instruction.
func (c *Client) Submit(ctx context.Context, ins ledger.Instruction) (Receipt, error) {
	return c.submit(ctx, ins)
}

func (c *Client) submit(ctx context.Context, ins ledger.Instruction) (Receipt, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Receipt{}, err
	}

	var res rpc.SendTransactionResult
	err := c.conn.Call(ctx, rpc.MethodSendTransaction, rpc.SendTransactionParams{
		Instruction: rpc.EncodeInstruction(ins),
		Commitment:  c.commitment,
	}, &res)
	if err != nil {
		return Receipt{}, rpc.LedgerError(err)
	}
	slog.Debug("transaction confirmed", "programId", ins.ProgramID, "slot", res.Slot, "signature", res.Signature)
	return Receipt{Signature: res.Signature, Slot: res.Slot}, nil
}

// GetAccount reads key's current state. A missing account is reported as
// found == false, not as an error.
func (c *Client) GetAccount(ctx context.Context, key ledger.Key) (ledger.Account, bool, error) {
	var res rpc.AccountInfoResult
	if err := c.conn.Call(ctx, rpc.MethodGetAccountInfo, rpc.GetAccountInfoParams{Pubkey: key.String()}, &res); err != nil {
		return ledger.Account{}, false, err
	}
	if res.Value == nil {
		return ledger.Account{}, false, nil
	}
	acc, err := res.Value.Decode(key)
	if err != nil {
		return ledger.Account{}, false, err
	}
	return acc, true, nil
}

// Counter reads the counter value stored in key's first data byte.
func (c *Client) Counter(ctx context.Context, key ledger.Key) (uint8, error) {
	acc, found, err := c.GetAccount(ctx, key)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, &ledger.AccountError{Op: "read", Key: key, Err: ledger.ErrMissingAccount}
	}
	if len(acc.Data) == 0 {
		return 0, &ledger.AccountError{Op: "read", Key: key, Err: ledger.ErrMalformedData}
	}
	return acc.Data[0], nil
}

func (c *Client) Slot(ctx context.Context) (uint64, error) {
	var slot uint64
	if err := c.conn.Call(ctx, rpc.MethodGetSlot, nil, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}

package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/acctwatch/server/ledger"
	"github.com/acctwatch/server/mutator"
	"github.com/mark3labs/mcp-go/mcp"
)

type accountResult struct {
	Pubkey   string `json:"pubkey"`
	Owner    string `json:"owner"`
	Lamports uint64 `json:"lamports"`
	Data     string `json:"data"`
}

type receiptResult struct {
	Pubkey    string `json:"pubkey"`
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
}

func requireKey(req mcp.CallToolRequest) (ledger.Key, *mcp.CallToolResult) {
	s, err := req.RequireString("pubkey")
	if err != nil {
		return "", ValidationError("pubkey is required")
	}
	key, err := ledger.ParseKey(s)
	if err != nil {
		return "", ValidationError(err.Error())
	}
	return key, nil
}

func (s *Server) handleAccountGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, errResult := requireKey(req)
	if errResult != nil {
		return errResult, nil
	}

	acc, found, err := s.ledger.GetAccount(ctx, key)
	if err != nil {
		return InternalError(err), nil
	}
	if !found {
		return NotFound(key), nil
	}
	return jsonResult(accountResult{
		Pubkey:   key.String(),
		Owner:    acc.Owner.String(),
		Lamports: acc.Lamports,
		Data:     base64.StdEncoding.EncodeToString(acc.Data),
	})
}

func (s *Server) handleCounterGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, errResult := requireKey(req)
	if errResult != nil {
		return errResult, nil
	}

	value, err := s.ledger.Counter(ctx, key)
	if err != nil {
		return LedgerError(key, err), nil
	}
	return jsonResult(map[string]any{"pubkey": key.String(), "counter": value})
}

func (s *Server) handleCounterIncrement(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.submit(ctx, req, s.ledger.Increment)
}

func (s *Server) handleCounterClose(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.submit(ctx, req, s.ledger.CloseAccount)
}

func (s *Server) submit(
	ctx context.Context,
	req mcp.CallToolRequest,
	op func(context.Context, ledger.Key) (mutator.Receipt, error),
) (*mcp.CallToolResult, error) {
	key, errResult := requireKey(req)
	if errResult != nil {
		return errResult, nil
	}

	receipt, err := op(ctx, key)
	if err != nil {
		return LedgerError(key, err), nil
	}
	return jsonResult(receiptResult{
		Pubkey:    key.String(),
		Signature: receipt.Signature,
		Slot:      receipt.Slot,
	})
}

func (s *Server) handleSlotGet(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slot, err := s.ledger.Slot(ctx)
	if err != nil {
		return InternalError(err), nil
	}
	return jsonResult(map[string]any{"slot": slot})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(data)), nil
}

package mcp

import (
	"encoding/json"
	"errors"

	"github.com/acctwatch/server/ledger"
	"github.com/mark3labs/mcp-go/mcp"
)

type ErrorCode string

const (
	ErrNotFound   ErrorCode = "not_found"
	ErrValidation ErrorCode = "validation"
	ErrRejected   ErrorCode = "rejected"
	ErrInternal   ErrorCode = "internal"
)

type ToolError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e ToolError) ToResult() *mcp.CallToolResult {
	data, _ := json.Marshal(e)
	return mcp.NewToolResultError(string(data))
}

func NotFound(key ledger.Key) *mcp.CallToolResult {
	return ToolError{
		Code:    ErrNotFound,
		Message: "account not found",
		Details: map[string]any{"pubkey": key.String()},
	}.ToResult()
}

func ValidationError(msg string) *mcp.CallToolResult {
	return ToolError{
		Code:    ErrValidation,
		Message: msg,
	}.ToResult()
}

// LedgerError reports a rejected instruction. A missing account is reported
// as not_found.
func LedgerError(key ledger.Key, err error) *mcp.CallToolResult {
	if errors.Is(err, ledger.ErrMissingAccount) {
		return NotFound(key)
	}
	for _, sentinel := range []error{ledger.ErrMalformedData, ledger.ErrIllegalOwner, ledger.ErrInvalidInstruction} {
		if errors.Is(err, sentinel) {
			return ToolError{
				Code:    ErrRejected,
				Message: err.Error(),
				Details: map[string]any{"pubkey": key.String()},
			}.ToResult()
		}
	}
	return InternalError(err)
}

func InternalError(err error) *mcp.CallToolResult {
	return ToolError{
		Code:    ErrInternal,
		Message: err.Error(),
	}.ToResult()
}

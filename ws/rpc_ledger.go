package ws

import (
	"context"

	"github.com/acctwatch/server/ledger"
	"github.com/acctwatch/server/rpc"
	"github.com/sourcegraph/jsonrpc2"
)

func (h *rpcMethodHandler) handleGetAccountInfo(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.GetAccountInfoParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	key, err := ledger.ParseKey(params.Pubkey)
	if err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, err.Error())
		return
	}
	if _, err := rpc.ParseCommitment(params.Commitment, rpc.CommitmentFinalized); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, err.Error())
		return
	}

	acc, slot, ok := h.ledger.Lookup(key)
	result := rpc.AccountInfoResult{Context: rpc.Context{Slot: slot}}
	if ok {
		ui := rpc.EncodeAccount(acc)
		result.Value = &ui
	}
	h.reply(ctx, conn, req, result)
}

func (h *rpcMethodHandler) handleGetSlot(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	h.reply(ctx, conn, req, h.ledger.Slot())
}

func (h *rpcMethodHandler) handleSendTransaction(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.SendTransactionParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	ins, err := params.Instruction.Decode()
	if err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, err.Error())
		return
	}
	commitment, err := rpc.ParseCommitment(params.Commitment, rpc.CommitmentConfirmed)
	if err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, err.Error())
		return
	}

	commit, err := h.ledger.Apply(ins)
	if err != nil {
		h.log.Info("transaction failed", "programId", ins.ProgramID, "error", err)
		if replyErr := conn.ReplyWithError(ctx, req.ID, rpc.TransactionError(err)); replyErr != nil {
			h.log.Error("failed to send error response", "error", replyErr)
		}
		return
	}
	h.log.Debug("transaction committed", "slot", commit.Slot, "signature", commit.Signature)

	if commitment != rpc.CommitmentProcessed {
		waitCtx, cancel := context.WithTimeout(ctx, h.opts.ConfirmTimeout)
		err := h.hub.WaitFlushed(waitCtx, commit.Slot)
		cancel()
		if err != nil {
			h.log.Warn("confirmation wait failed", "slot", commit.Slot, "error", err)
			h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInternalError, "confirmation failed: "+err.Error())
			return
		}
	}

	h.reply(ctx, conn, req, rpc.SendTransactionResult{
		Signature: commit.Signature,
		Slot:      commit.Slot,
	})
}

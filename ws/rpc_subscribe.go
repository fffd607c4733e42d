package ws

import (
	"context"

	"github.com/acctwatch/server/ledger"
	"github.com/acctwatch/server/rpc"
	"github.com/acctwatch/server/watch"
	"github.com/sourcegraph/jsonrpc2"
)

func (h *rpcMethodHandler) handleAccountSubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.AccountSubscribeParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	key, err := ledger.ParseKey(params.Pubkey)
	if err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, err.Error())
		return
	}
	commitment, err := rpc.ParseCommitment(params.Commitment, rpc.CommitmentFinalized)
	if err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, err.Error())
		return
	}
	if err := rpc.ParseEncoding(params.Encoding); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, err.Error())
		return
	}

	id := h.hub.Accounts.Subscribe(h.state.getNotifier(), key, commitment)
	if !h.state.trackSubscription(id, h.hub.Accounts) {
		h.hub.Accounts.Unsubscribe(id)
		h.log.Debug("dropped account subscription of closed connection", "subscription", id)
		return
	}
	h.log.Debug("subscribed to account", "pubkey", key, "subscription", id)

	h.reply(ctx, conn, req, id)
}

func (h *rpcMethodHandler) handleProgramSubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.ProgramSubscribeParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	program, err := ledger.ParseKey(params.ProgramID)
	if err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, err.Error())
		return
	}
	commitment, err := rpc.ParseCommitment(params.Commitment, rpc.CommitmentFinalized)
	if err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, err.Error())
		return
	}
	if err := rpc.ParseEncoding(params.Encoding); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, err.Error())
		return
	}
	filters, err := watch.FiltersFromWire(params.Filters)
	if err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, err.Error())
		return
	}

	id := h.hub.Programs.Subscribe(h.state.getNotifier(), program, commitment, filters)
	if !h.state.trackSubscription(id, h.hub.Programs) {
		h.hub.Programs.Unsubscribe(id)
		h.log.Debug("dropped program subscription of closed connection", "subscription", id)
		return
	}
	h.log.Debug("subscribed to program", "programId", program, "filters", len(filters), "subscription", id)

	h.reply(ctx, conn, req, id)
}

func (h *rpcMethodHandler) handleUnsubscribe(
	ctx context.Context,
	conn *jsonrpc2.Conn,
	req *jsonrpc2.Request,
	watcher watch.Watcher,
	logName string,
) {
	var params rpc.UnsubscribeParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	if !h.state.untrackSubscription(params.ID, watcher) {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid subscription id")
		return
	}

	ok := watcher.Unsubscribe(params.ID)
	h.log.Debug("unsubscribed", "watcher", logName, "subscription", params.ID)

	h.reply(ctx, conn, req, ok)
}

package frontend

import (
	"github.com/lmarchetti/kvrpc/jsonrpc"
	"github.com/lmarchetti/kvrpc/kvstore"
	"github.com/lmarchetti/kvrpc/signedreq"
)

// processJSON is the executor (spec.md §4.5): dispatch ordering inside one
// decoded, authenticated RPC.
func (f *Frontend) processJSON(
	ctx *RPCContext,
	callerID kvstore.CallerId,
	rpc jsonrpc.Request,
	signed *signedreq.SignedReq,
) *jsonrpc.Response {
	ctx.SeqNo = rpc.ID

	if rpc.JSONRPC != jsonrpc.RPCVersion {
		return jsonrpc.ErrorResponseMsg(ctx.SeqNo, jsonrpc.InvalidRequest, "Unexpected jsonrpc version.")
	}
	switch rpc.Params.(type) {
	case nil, map[string]interface{}, []interface{}:
	default:
		return jsonrpc.ErrorResponseMsg(ctx.SeqNo, jsonrpc.InvalidRequest, "Params must be an array or object.")
	}

	h, ok := f.lookupHandler(rpc.Method)
	if !ok {
		return jsonrpc.ErrorResponse(ctx.SeqNo, jsonrpc.MethodNotFound, rpc.Method)
	}

	info := f.consensusInfo()
	isLeader := info == nil || info.IsLeader()
	if !isLeader {
		switch h.RW {
		case Write:
			return f.forwardOrRedirectJSON(ctx, callerID, rpc, h.Forwardable)
		case MayWrite:
			readonly := true
			if rpc.Readonly != nil {
				readonly = *rpc.Readonly
			}
			if !readonly {
				return f.forwardOrRedirectJSON(ctx, callerID, rpc, h.Forwardable)
			}
		}
	}

	f.incTxCount()

	maxRetries := f.getMaxRetries()
	for attempt := 0; ; attempt++ {
		tx := f.store.Begin()
		if signed != nil {
			f.storeSignature(tx, callerID, signed)
		}
		args := &RequestArgs{Ctx: ctx, Tx: tx, CallerID: callerID, Method: rpc.Method, Params: rpc.Params, Signed: signed}
		result, err := h.Func(args)
		if err != nil {
			return f.errorResponse(ctx.SeqNo, err)
		}

		switch tx.Commit() {
		case kvstore.CommitOK:
			resp := jsonrpc.ResultResponse(ctx.SeqNo, result)
			commit := commitVersionOf(tx, f.store)
			resp.Commit = uint64(commit)
			if info != nil {
				term := info.Term()
				globalCommit := info.GlobalCommitIdx()
				resp.Term = &term
				resp.GlobalCommit = &globalCommit
			}
			if isLeader && f.sigMaxTx > 0 && resp.Commit%f.sigMaxTx == f.sigMaxTx/2 {
				if h := f.history(); h != nil {
					h.EmitSignature()
					f.store.MarkSigned()
				}
			}
			return resp
		case kvstore.CommitConflict:
			if maxRetries > 0 && attempt >= maxRetries {
				return jsonrpc.ErrorResponseMsg(ctx.SeqNo, jsonrpc.TxFailedToReplicate, "Too many conflicting commits.")
			}
			continue
		case kvstore.CommitNoReplicate:
			return jsonrpc.ErrorResponseMsg(ctx.SeqNo, jsonrpc.TxFailedToReplicate, "Failed to replicate.")
		}
	}
}

// commitVersionOf implements the fallback chain from spec.md's invariant
// list: commit_version(), else read_version(), else the store's current
// version.
func commitVersionOf(tx *kvstore.Tx, store *kvstore.Store) kvstore.Version {
	if v := tx.CommitVersion(); v != 0 {
		return v
	}
	if v := tx.ReadVersion(); v != 0 {
		return v
	}
	return store.CurrentVersion()
}

// errorResponse maps a handler failure to a JSON-RPC error envelope
// (spec.md §4.5 step 8 / §7).
func (f *Frontend) errorResponse(seqNo interface{}, err error) *jsonrpc.Response {
	switch e := err.(type) {
	case *jsonrpc.RPCError:
		return jsonrpc.ErrorResponseMsg(seqNo, e.Code, e.Msg)
	case *jsonrpc.PointerError:
		return &jsonrpc.Response{
			JSONRPC: jsonrpc.RPCVersion,
			ID:      seqNo,
			Error: &jsonrpc.ErrObj{
				Code:    jsonrpc.ParseError,
				Message: e.Msg,
				Data:    e.Pointer,
			},
		}
	default:
		return jsonrpc.ErrorResponseMsg(seqNo, jsonrpc.InternalError, err.Error())
	}
}

// forwardOrRedirectJSON implements the leader router (spec.md §4.6).
func (f *Frontend) forwardOrRedirectJSON(ctx *RPCContext, callerID kvstore.CallerId, rpc jsonrpc.Request, forwardable Forwardable) *jsonrpc.Response {
	f.mu.Lock()
	fwd := f.fwd
	f.mu.Unlock()

	if fwd != nil && forwardable == CanForward && ctx.Fwd == nil {
		ctx.IsPending = true
		return nil
	}

	info := f.consensusInfo()
	if info == nil {
		return jsonrpc.ErrorResponseMsg(ctx.SeqNo, jsonrpc.TxNotLeader, "Not leader, leader unknown.")
	}
	leaderID, ok := info.Leader()
	if !ok {
		return jsonrpc.ErrorResponseMsg(ctx.SeqNo, jsonrpc.TxNotLeader, "Not leader, leader unknown.")
	}
	f.mu.Lock()
	resolver := f.endpoints
	f.mu.Unlock()
	if resolver != nil {
		if host, port, ok := resolver.Endpoint(leaderID); ok {
			return jsonrpc.ErrorResponse(ctx.SeqNo, jsonrpc.TxNotLeader, host+":"+port)
		}
	}
	return jsonrpc.ErrorResponseMsg(ctx.SeqNo, jsonrpc.TxNotLeader, "Not leader, leader unknown.")
}

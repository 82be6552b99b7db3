package frontend

import (
	"github.com/lmarchetti/kvrpc/history"
	"github.com/lmarchetti/kvrpc/jsonrpc"
	"github.com/lmarchetti/kvrpc/kvstore"
	"github.com/lmarchetti/kvrpc/signedreq"
)

// decodeRequest converts a decoded JSON-shaped envelope into the typed
// jsonrpc.Request the executor works with.
func decodeRequest(obj map[string]interface{}) jsonrpc.Request {
	req := jsonrpc.Request{JSONRPC: jsonrpc.RPCVersion}
	if v, ok := obj[jsonrpc.FieldJSONRPC].(string); ok {
		req.JSONRPC = v
	}
	req.ID = obj[jsonrpc.FieldID]
	if v, ok := obj[jsonrpc.FieldMethod].(string); ok {
		req.Method = v
	}
	req.Params = obj[jsonrpc.FieldParams]
	if v, ok := obj[jsonrpc.FieldReadonly].(bool); ok {
		req.Readonly = &v
	}
	return req
}

func packOrNil(resp *jsonrpc.Response, pack jsonrpc.Pack) []byte {
	if resp == nil {
		return nil
	}
	b, err := jsonrpc.PackValue(resp, pack)
	if err != nil {
		return nil
	}
	return b
}

// Process is the client-facing entry point (spec.md §4.7): detect pack,
// resolve the caller, verify an optional signature, record history, then
// hand the authenticated call to the executor.
//
// Per spec.md §9's Open Question, the original always sets is_pending and
// defers the real dispatch to process_forwarded/process_pbft. This
// implementation narrows "pending" to the one case processJSON/
// forwardOrRedirectJSON actually produce it for: a Write/MayWrite call
// that must travel to the leader. Everything processJSON can answer
// locally (every Read, and any Write/MayWrite already on the leader) is
// answered synchronously here, since nothing outside this package would
// ever complete a truly-deferred call — see DESIGN.md.
func (f *Frontend) Process(ctx *RPCContext, input []byte) []byte {
	pack, ok := jsonrpc.DetectPack(input)
	if !ok {
		ctx.Pack = jsonrpc.PackText
		return packOrNil(jsonrpc.ErrorResponseMsg(0, jsonrpc.InvalidRequest, "Empty request."), jsonrpc.PackText)
	}
	ctx.Pack = pack

	probeTx := f.store.Begin()
	callerID, ok := f.validCaller(probeTx, ctx.CallerCert)
	if !ok {
		return packOrNil(jsonrpc.ErrorResponseMsg(0, jsonrpc.InvalidCallerID, "No corresponding caller entry exists."), pack)
	}

	obj, ok, errResp := jsonrpc.UnpackJSON(input, pack)
	if !ok {
		return packOrNil(errResp.(*jsonrpc.Response), pack)
	}

	rpcObj := obj
	var signed *signedreq.SignedReq
	if jsonrpc.IsSigned(obj) {
		reqVal, _ := obj[jsonrpc.FieldReq].(map[string]interface{})
		s, okSig := f.verifyClientSignature(callerID, ctx.CallerCert, input, obj, ctx.Fwd != nil)
		if !okSig {
			var seqNo interface{}
			if reqVal != nil {
				seqNo = reqVal[jsonrpc.FieldID]
			}
			return packOrNil(jsonrpc.ErrorResponseMsg(seqNo, jsonrpc.InvalidClientSignature, "Failed to verify client signature."), pack)
		}
		signed = s
		if reqVal != nil {
			rpcObj = reqVal
		}
	}

	rpc := decodeRequest(rpcObj)

	h := f.history()
	var reqID history.RequestID
	if h != nil {
		reqID = reqIDFromParams(int(callerID), ctx.SessionID, rpc.ID)
		h.AddRequest(reqID, "users", input)
	}

	resp := f.processJSON(ctx, callerID, rpc, signed)
	if resp != nil {
		ctx.IsPending = false
		if h != nil && resp.Error == nil {
			h.MarkCommitted(reqID)
		}
		return packOrNil(resp, pack)
	}

	// ctx.IsPending is now true: forwardOrRedirectJSON decided this call
	// belongs on the leader and a forwarder is configured. processJSON only
	// sees decoded params, so the actual raw forward happens here, where
	// the original wire bytes are still in hand.
	f.mu.Lock()
	fwd := f.fwd
	f.mu.Unlock()
	info := f.consensusInfo()
	if fwd == nil || info == nil {
		ctx.IsPending = false
		return packOrNil(jsonrpc.ErrorResponseMsg(rpc.ID, jsonrpc.TxLeaderUnknown, "Not leader, leader unknown."), pack)
	}
	leaderID, ok := info.Leader()
	if !ok {
		ctx.IsPending = false
		return packOrNil(jsonrpc.ErrorResponseMsg(rpc.ID, jsonrpc.TxLeaderUnknown, "Not leader, leader unknown."), pack)
	}
	if err := fwd.ForwardRPC(leaderID, int(callerID), byte(pack), input); err != nil {
		f.logger.WithError(err).Warn("forwarding request to leader failed")
		ctx.IsPending = false
		return packOrNil(jsonrpc.ErrorResponseMsg(rpc.ID, jsonrpc.TxFailedToReplicate, "Failed to forward to leader."), pack)
	}
	// Fire-and-forget per spec.md §5: the follower has handed the call off,
	// and returns an empty body; the forwarding node's own client-facing
	// edge (not modeled here) is responsible for the out-of-band reply.
	return nil
}

// ProcessForwarded handles one call that arrived over the forwarder
// channel (spec.md §4.7 process_forwarded). It matches forwarder.Sink's
// signature so it can be wired directly as the leader-side sink when
// constructing a forwarder.NodeForwarder. Unlike Process, it never
// re-verifies the client signature: the originating follower already did,
// per spec.md §4.3.
func (f *Frontend) ProcessForwarded(callerID int, pack byte, rawReq []byte) ([]byte, error) {
	p := jsonrpc.Pack(pack)
	obj, ok, errResp := jsonrpc.UnpackJSON(rawReq, p)
	if !ok {
		return jsonrpc.PackValue(errResp, p)
	}

	rpcObj := obj
	var signed *signedreq.SignedReq
	if jsonrpc.IsSigned(obj) {
		if reqVal, ok := obj[jsonrpc.FieldReq].(map[string]interface{}); ok {
			rpcObj = reqVal
		}
		if sigBytes, err := signedreq.ExtractBytes(obj[jsonrpc.FieldSig]); err == nil {
			md, _ := obj[jsonrpc.FieldMD].(string)
			packedReq, err := jsonrpc.PackValue(obj[jsonrpc.FieldReq], jsonrpc.PackMsgPack)
			if err == nil {
				signed = &signedreq.SignedReq{Sig: sigBytes, Req: packedReq, RawReq: rawReq, MD: signedreq.HashAlg(md)}
			}
		}
	}

	rpc := decodeRequest(rpcObj)
	cid := kvstore.CallerId(callerID)
	ctx := &RPCContext{
		Pack: p,
		Fwd:  &ForwardedContext{CallerID: cid, LeaderID: f.nodeID},
	}

	resp := f.processJSON(ctx, cid, rpc, signed)
	if resp == nil {
		// forwardOrRedirectJSON refused to answer a request that is
		// already on the leader with ctx.Fwd set — matches the original's
		// "forwarded RPC cannot be forwarded" logic error, which here
		// surfaces as an internal error rather than a panic.
		return jsonrpc.PackValue(jsonrpc.ErrorResponseMsg(rpc.ID, jsonrpc.InternalError, "forwarded RPC cannot be forwarded"), p)
	}
	return jsonrpc.PackValue(resp, p)
}

// ProcessPBFT handles a BFT-replicated command (spec.md §4.7
// process_pbft): fixed msgpack pack, a synthesized caller id, and no
// signature verification (the envelope has already been agreed by the
// BFT protocol before this call is reached). There is no commit flag: this
// path always commits.
func (f *Frontend) ProcessPBFT(input []byte) []byte {
	const pbftPack = jsonrpc.PackMsgPack
	const pbftCallerID = kvstore.CallerId(1)

	obj, ok, errResp := jsonrpc.UnpackJSON(input, pbftPack)
	if !ok {
		return packOrNil(errResp.(*jsonrpc.Response), pbftPack)
	}

	rpcObj := obj
	if reqVal, ok := obj[jsonrpc.FieldReq].(map[string]interface{}); jsonrpc.IsSigned(obj) && ok {
		rpcObj = reqVal
	}

	rpc := decodeRequest(rpcObj)
	ctx := &RPCContext{Pack: pbftPack}
	resp := f.processJSON(ctx, pbftCallerID, rpc, nil)
	return packOrNil(resp, pbftPack)
}

package frontend

import (
	"github.com/lmarchetti/kvrpc/history"
	"github.com/lmarchetti/kvrpc/jsonrpc"
	"github.com/lmarchetti/kvrpc/kvstore"
)

func reqIDFromParams(callerID int, sessionID uint64, seqNo interface{}) history.RequestID {
	return history.RequestID{CallerID: callerID, SessionID: sessionID, SeqNo: seqNo}
}

// installBuiltins auto-installs the always-present management methods
// (spec.md §4.4). Called once from New.
func (f *Frontend) installBuiltins() {
	f.Install("GET_COMMIT", f.handleGetCommit, Read, DoNotForward)
	f.Install("GET_METRICS", f.handleGetMetrics, Read, DoNotForward)
	f.Install("MK_SIGN", f.handleMkSign, Write, CanForward)
	f.Install("GET_LEADER_INFO", f.handleGetLeaderInfo, Read, DoNotForward)
	f.Install("GET_NETWORK_INFO", f.handleGetNetworkInfo, Read, DoNotForward)
	f.Install("LIST_METHODS", f.handleListMethods, Read, DoNotForward)
	f.Install("GET_SCHEMA", f.handleGetSchema, Read, DoNotForward)
	// Added beyond the distilled spec: a trivial liveness probe and a way
	// for a client to poll a request's status in this node's own history
	// ("pending", "committed" or "unknown"). Process marks a request
	// committed only when this node answers it successfully; a write this
	// node forwarded to the leader stays "pending" here.
	f.Install("PING", f.handlePing, Read, DoNotForward)
	f.Install("GET_TX_STATUS", f.handleGetTxStatus, Read, DoNotForward)
}

type commitResult struct {
	Term   uint64 `json:"term"`
	Commit uint64 `json:"commit"`
}

func (f *Frontend) handleGetCommit(args *RequestArgs) (interface{}, error) {
	commit := uint64(f.store.CurrentVersion())
	if n, ok := paramUint64(args.Params, "commit"); ok {
		commit = n
	}
	res := commitResult{Commit: commit}
	if info := f.consensusInfo(); info != nil {
		res.Term = info.Term()
	}
	return res, nil
}

func (f *Frontend) handleGetMetrics(args *RequestArgs) (interface{}, error) {
	return f.metricsEngine.Snapshot(), nil
}

func (f *Frontend) handleMkSign(args *RequestArgs) (interface{}, error) {
	h := f.history()
	if h == nil {
		return nil, jsonrpc.NewRPCError(jsonrpc.InternalError, "no history configured")
	}
	root := h.EmitSignature()
	f.store.MarkSigned()
	return map[string]interface{}{"signed": root != nil}, nil
}

type leaderInfoResult struct {
	LeaderID string `json:"leader_id"`
	PubHost  string `json:"pubhost"`
	TLSPort  string `json:"tlsport"`
}

func (f *Frontend) handleGetLeaderInfo(args *RequestArgs) (interface{}, error) {
	info := f.consensusInfo()
	if info == nil {
		return nil, jsonrpc.NewRPCError(jsonrpc.TxLeaderUnknown, "no consensus configured")
	}
	leaderID, ok := info.Leader()
	if !ok {
		return nil, jsonrpc.NewRPCError(jsonrpc.TxLeaderUnknown, "leader unknown")
	}
	res := leaderInfoResult{LeaderID: string(leaderID)}
	f.mu.Lock()
	resolver := f.endpoints
	f.mu.Unlock()
	if resolver != nil {
		if host, port, ok := resolver.Endpoint(leaderID); ok {
			res.PubHost, res.TLSPort = host, port
		}
	}
	return res, nil
}

type networkInfoResult struct {
	LeaderID string           `json:"leader_id"`
	Nodes    []kvstore.NodeInfo `json:"nodes"`
}

func (f *Frontend) handleGetNetworkInfo(args *RequestArgs) (interface{}, error) {
	res := networkInfoResult{Nodes: []kvstore.NodeInfo{}}
	if info := f.consensusInfo(); info != nil {
		if leaderID, ok := info.Leader(); ok {
			res.LeaderID = string(leaderID)
		}
	}
	kvstore.Nodes(args.Tx).Foreach(func(_ string, n kvstore.NodeInfo) bool {
		if n.Status == kvstore.NodeTrusted {
			res.Nodes = append(res.Nodes, n)
		}
		return true
	})
	return res, nil
}

func (f *Frontend) handleListMethods(args *RequestArgs) (interface{}, error) {
	return f.methodNames(), nil
}

type schemaResult struct {
	Params interface{} `json:"params"`
	Result interface{} `json:"result"`
}

func (f *Frontend) handleGetSchema(args *RequestArgs) (interface{}, error) {
	method, ok := paramString(args.Params, "method")
	if !ok {
		return nil, jsonrpc.NewRPCError(jsonrpc.InvalidParams, "missing \"method\"")
	}
	h, ok := f.schemaFor(method)
	if !ok {
		return nil, jsonrpc.NewRPCError(jsonrpc.InvalidParams, "unknown method: "+method)
	}
	return schemaResult{Params: h.ParamsSchema, Result: h.ResultSchema}, nil
}

func (f *Frontend) handlePing(args *RequestArgs) (interface{}, error) {
	return map[string]interface{}{"ok": true}, nil
}

func (f *Frontend) handleGetTxStatus(args *RequestArgs) (interface{}, error) {
	sessionID, _ := paramUint64(args.Params, "session_id")
	seqNo := paramValue(args.Params, "seq_no")
	callerID, _ := paramUint64(args.Params, "caller_id")

	h := f.history()
	if h == nil {
		return nil, jsonrpc.NewRPCError(jsonrpc.InternalError, "no history configured")
	}
	status, ok := h.Status(reqIDFromParams(int(callerID), sessionID, seqNo))
	if !ok {
		return map[string]interface{}{"status": "unknown"}, nil
	}
	return map[string]interface{}{"status": status.String()}, nil
}

// paramString/paramUint64/paramValue pull an optional field out of a
// decoded JSON-shaped params value (object form only; array-form params
// have no named fields to probe).
func paramObj(params interface{}) (map[string]interface{}, bool) {
	m, ok := params.(map[string]interface{})
	return m, ok
}

func paramValue(params interface{}, key string) interface{} {
	m, ok := paramObj(params)
	if !ok {
		return nil
	}
	return m[key]
}

func paramString(params interface{}, key string) (string, bool) {
	v, ok := paramObj(params)
	if !ok {
		return "", false
	}
	s, ok := v[key].(string)
	return s, ok
}

func paramUint64(params interface{}, key string) (uint64, bool) {
	v, ok := paramObj(params)
	if !ok {
		return 0, false
	}
	n, ok := v[key].(float64)
	if !ok {
		return 0, false
	}
	return uint64(n), true
}

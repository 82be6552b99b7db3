package frontend

import (
	"encoding/json"
	"testing"

	"github.com/lmarchetti/kvrpc/history"
	"github.com/lmarchetti/kvrpc/jsonrpc"
	"github.com/lmarchetti/kvrpc/kvstore"
	"github.com/lmarchetti/kvrpc/rpccore"
)

const testCert = "test-cert"

func newTestFrontend(t *testing.T) (*Frontend, *kvstore.Store) {
	t.Helper()
	store := kvstore.NewStore()

	tx := store.Begin()
	kvstore.Certs(tx).Put(testCert, kvstore.CallerId(1))
	if res := tx.Commit(); res != kvstore.CommitOK {
		t.Fatalf("seeding cert failed: %v", res)
	}

	hist := history.NewMerkleHistory(nil)
	f := New(store, func() history.TxHistory { return hist }, rpccore.NodeID("n1"), nil)
	return f, store
}

func callProcess(t *testing.T, f *Frontend, ctx *RPCContext, method string, params interface{}) *jsonrpc.Response {
	t.Helper()
	req := map[string]interface{}{
		jsonrpc.FieldJSONRPC: jsonrpc.RPCVersion,
		jsonrpc.FieldID:      1,
		jsonrpc.FieldMethod:  method,
		jsonrpc.FieldParams:  params,
	}
	raw, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out := f.Process(ctx, raw)
	if out == nil {
		return nil
	}
	var resp jsonrpc.Response
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return &resp
}

func TestProcessRejectsUnknownCaller(t *testing.T) {
	f, _ := newTestFrontend(t)
	ctx := &RPCContext{CallerCert: []byte("not-a-known-cert")}

	resp := callProcess(t, f, ctx, "PING", nil)
	if resp == nil || resp.Error == nil {
		t.Fatalf("expected INVALID_CALLER_ID error, got %+v", resp)
	}
	if resp.Error.Code != jsonrpc.InvalidCallerID {
		t.Errorf("expected code %v, got %v", jsonrpc.InvalidCallerID, resp.Error.Code)
	}
}

func TestBuiltinPing(t *testing.T) {
	f, _ := newTestFrontend(t)
	ctx := &RPCContext{CallerCert: []byte(testCert)}

	resp := callProcess(t, f, ctx, "PING", nil)
	if resp == nil || resp.Error != nil {
		t.Fatalf("expected a successful response, got %+v", resp)
	}
}

func TestUnknownMethodWithoutDefault(t *testing.T) {
	f, _ := newTestFrontend(t)
	ctx := &RPCContext{CallerCert: []byte(testCert)}

	resp := callProcess(t, f, ctx, "NOT_A_REAL_METHOD", nil)
	if resp == nil || resp.Error == nil {
		t.Fatalf("expected METHOD_NOT_FOUND, got %+v", resp)
	}
	if resp.Error.Code != jsonrpc.MethodNotFound {
		t.Errorf("expected code %v, got %v", jsonrpc.MethodNotFound, resp.Error.Code)
	}
}

func TestWriteHandlerCommits(t *testing.T) {
	f, store := newTestFrontend(t)
	f.InstallMinimal("SET_NODE", func(tx *kvstore.Tx, params interface{}) (interface{}, error) {
		kvstore.Nodes(tx).Put("node-a", kvstore.NodeInfo{NodeID: "node-a", Status: kvstore.NodeTrusted})
		return map[string]interface{}{"ok": true}, nil
	}, Write, CanForward)

	ctx := &RPCContext{CallerCert: []byte(testCert)}
	resp := callProcess(t, f, ctx, "SET_NODE", nil)
	if resp == nil || resp.Error != nil {
		t.Fatalf("expected a successful commit, got %+v", resp)
	}

	tx := store.Begin()
	info, ok := kvstore.Nodes(tx).Get("node-a")
	if !ok || info.Status != kvstore.NodeTrusted {
		t.Errorf("expected node-a to be committed trusted, got %+v, ok=%v", info, ok)
	}
}

func TestWriteWithoutConsensusConfiguredIsTreatedAsLeader(t *testing.T) {
	// With no SetConsensus call, processJSON treats the node as leader
	// (info == nil), so a Write commits directly rather than redirecting.
	f, _ := newTestFrontend(t)
	called := false
	f.InstallMinimal("MARK", func(tx *kvstore.Tx, params interface{}) (interface{}, error) {
		called = true
		return nil, nil
	}, Write, CanForward)

	ctx := &RPCContext{CallerCert: []byte(testCert)}
	resp := callProcess(t, f, ctx, "MARK", nil)
	if !called {
		t.Fatal("expected the write handler to run")
	}
	if resp == nil || resp.Error != nil {
		t.Fatalf("expected success, got %+v", resp)
	}
}

func TestInstallWithSchemaInfersSchemasAndDecodesParams(t *testing.T) {
	f, _ := newTestFrontend(t)

	type echoParams struct {
		Msg string `json:"msg"`
	}
	type echoResult struct {
		Echoed string `json:"echoed"`
	}

	InstallWithSchema(f, "ECHO", func(args *RequestArgs, p echoParams) (echoResult, error) {
		return echoResult{Echoed: p.Msg}, nil
	}, Read, DoNotForward)

	h, ok := f.schemaFor("ECHO")
	if !ok {
		t.Fatal("expected ECHO to be installed")
	}
	params, ok := h.ParamsSchema.(fieldSchema)
	if !ok || params.Type != "object" || params.Props["msg"].Type != "string" {
		t.Errorf("unexpected params schema: %+v", h.ParamsSchema)
	}

	ctx := &RPCContext{CallerCert: []byte(testCert)}
	resp := callProcess(t, f, ctx, "ECHO", map[string]interface{}{"msg": "hi"})
	if resp == nil || resp.Error != nil {
		t.Fatalf("expected success, got %+v", resp)
	}
	m, ok := resp.Result.(map[string]interface{})
	if !ok || m["echoed"] != "hi" {
		t.Errorf("expected echoed \"hi\", got %+v", resp.Result)
	}
}

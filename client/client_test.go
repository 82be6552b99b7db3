package client

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"testing"
	"time"

	"github.com/lmarchetti/kvrpc/jsonrpc"
	"github.com/lmarchetti/kvrpc/rpccore"
)

// fakeServer answers every RPCMethodCall by echoing the request's method
// name back as a successful JSON-RPC result, exercising Call's full
// gob(CallReq)/json(jsonrpc.Request) round trip without a real Frontend.
func fakeServer(t *testing.T, node rpccore.Node) {
	t.Helper()
	node.RegisterRawRequestCallback(func(source rpccore.NodeID, method string, data []byte) ([]byte, error) {
		if method != RPCMethodCall {
			t.Fatalf("unexpected method %q", method)
		}
		var req CallReq
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&req); err != nil {
			t.Fatalf("decode CallReq: %v", err)
		}

		var rpc jsonrpc.Request
		if err := json.Unmarshal(req.RawReq, &rpc); err != nil {
			t.Fatalf("decode inner request: %v", err)
		}

		resp := jsonrpc.ResultResponse(rpc.ID, map[string]interface{}{"echo": rpc.Method})
		rawResp, err := json.Marshal(resp)
		if err != nil {
			t.Fatalf("marshal response: %v", err)
		}

		res := CallRes{RawRes: rawResp}
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(res); err != nil {
			t.Fatalf("encode CallRes: %v", err)
		}
		return buf.Bytes(), nil
	})
}

func TestClientCallRoundTrip(t *testing.T) {
	net := rpccore.NewChanNetwork(time.Second)
	defer net.Shutdown()

	serverNode, err := net.NewNode("server")
	if err != nil {
		t.Fatalf("NewNode(server): %v", err)
	}
	fakeServer(t, serverNode)

	clientNode, err := net.NewNode("client")
	if err != nil {
		t.Fatalf("NewNode(client): %v", err)
	}

	c := New(clientNode, "server", []byte("test-cert"))
	resp, err := c.Call("PING", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("expected no error, got %+v", resp.Error)
	}
	m, ok := resp.Result.(map[string]interface{})
	if !ok || m["echo"] != "PING" {
		t.Errorf("expected echoed method PING, got %+v", resp.Result)
	}
}

func TestClientCallPendingIsAnError(t *testing.T) {
	net := rpccore.NewChanNetwork(time.Second)
	defer net.Shutdown()

	serverNode, err := net.NewNode("server")
	if err != nil {
		t.Fatalf("NewNode(server): %v", err)
	}
	serverNode.RegisterRawRequestCallback(func(source rpccore.NodeID, method string, data []byte) ([]byte, error) {
		res := CallRes{Pending: true}
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(res); err != nil {
			t.Fatalf("encode CallRes: %v", err)
		}
		return buf.Bytes(), nil
	})

	clientNode, err := net.NewNode("client")
	if err != nil {
		t.Fatalf("NewNode(client): %v", err)
	}

	c := New(clientNode, "server", []byte("test-cert"))
	if _, err := c.Call("SET", nil); err == nil {
		t.Error("expected an error for a pending response")
	}
}

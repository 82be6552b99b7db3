// Package client is a thin JSON-RPC caller over rpccore.Node, grounded on
// the teacher's client/rpc.go gob-request-over-SendRawRequest pattern
// (callRPC), generalized to carry an arbitrary JSON-RPC envelope instead
// of a fixed sm.TSMAction/TSMQuery pair.
package client

import (
	"bytes"
	"encoding/gob"
	"encoding/json"

	"github.com/lmarchetti/kvrpc/jsonrpc"
	"github.com/lmarchetti/kvrpc/rpccore"
	"github.com/pkg/errors"
)

// RPCMethodCall is the rpccore method name a client call travels under,
// alongside raft's "rv"/"ae" and the forwarder's "fwd".
const RPCMethodCall = "cl"

func init() {
	gob.Register(CallReq{})
	gob.Register(CallRes{})
}

// CallReq carries one client JSON-RPC request to a peer.
type CallReq struct {
	CallerCert []byte
	SessionID  uint64
	Pack       byte
	RawReq     []byte
}

// CallRes is the peer's JSON-RPC response, or an empty RawRes with
// Pending set if the peer forwarded the call instead of answering it
// synchronously (spec.md §4.7).
type CallRes struct {
	RawRes  []byte
	Pending bool
}

// Client dials a single peer over an already-constructed rpccore.Node.
type Client struct {
	node     rpccore.Node
	target   rpccore.NodeID
	cert     []byte
	session  uint64
	seqNo    int
}

// New returns a Client that calls target over node, identifying itself
// with callerCert.
func New(node rpccore.Node, target rpccore.NodeID, callerCert []byte) *Client {
	return &Client{node: node, target: target, cert: callerCert, session: 1}
}

// Call sends one JSON-RPC request (method, params) and returns the
// decoded response.
func (c *Client) Call(method string, params interface{}) (*jsonrpc.Response, error) {
	c.seqNo++
	req := jsonrpc.Request{JSONRPC: jsonrpc.RPCVersion, ID: c.seqNo, Method: method, Params: params}
	raw, err := jsonrpc.PackValue(map[string]interface{}{
		jsonrpc.FieldJSONRPC: req.JSONRPC,
		jsonrpc.FieldID:      req.ID,
		jsonrpc.FieldMethod:  req.Method,
		jsonrpc.FieldParams:  req.Params,
	}, jsonrpc.PackText)
	if err != nil {
		return nil, err
	}

	callReq := CallReq{CallerCert: c.cert, SessionID: c.session, Pack: byte(jsonrpc.PackText), RawReq: raw}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(callReq); err != nil {
		return nil, errors.WithStack(err)
	}

	resData, err := c.node.SendRawRequest(c.target, RPCMethodCall, buf.Bytes())
	if err != nil {
		return nil, err
	}

	var res CallRes
	if err := gob.NewDecoder(bytes.NewReader(resData)).Decode(&res); err != nil {
		return nil, errors.WithStack(err)
	}
	if res.Pending {
		return nil, errors.New("request forwarded, no synchronous reply available")
	}

	var resp jsonrpc.Response
	if err := json.Unmarshal(res.RawRes, &resp); err != nil {
		return nil, errors.WithStack(err)
	}
	return &resp, nil
}

// Package forwarder implements the "forwarder channel" spec.md treats as an
// external collaborator: the fire-and-forget path a follower uses to hand a
// Write call off to the leader. Transport is gob-over-rpccore.Node, the same
// pairing raft-lite's raft.Peer and client.Client use for their own RPCs.
package forwarder

import (
	"bytes"
	"encoding/gob"

	"github.com/lmarchetti/kvrpc/rpccore"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// RPCMethodForward is the rpccore method name a forwarded request travels
// under, alongside raft's "rv"/"ae" and client's "cl".
const RPCMethodForward = "fwd"

func init() {
	gob.Register(ForwardReq{})
	gob.Register(ForwardRes{})
}

// ForwardReq carries one client request from a follower to the leader.
type ForwardReq struct {
	CallerID int
	Pack     byte
	RawReq   []byte
}

// ForwardRes is the leader's JSON-RPC response, relayed back to the
// follower. NodeForwarder.ForwardRPC reads only Err from it; RawRes is
// discarded and does not reach the original caller.
type ForwardRes struct {
	RawRes []byte
	Err    string
}

// Sink is what a forwarded request is handed to once it reaches the
// leader: ordinarily frontend.Frontend.ProcessForwarded.
type Sink func(callerID int, pack byte, rawReq []byte) ([]byte, error)

// AbstractForwarder is the narrow interface the frontend depends on to hand
// a Write request to the leader without waiting for the reply inline.
type AbstractForwarder interface {
	// ForwardRPC ships rawReq to target under callerID's identity. The
	// call is fire-and-forget from the frontend's point of view: the
	// reply (if any) is delivered out of band via a Sink registered on
	// the target node, not as this call's return value.
	ForwardRPC(target rpccore.NodeID, callerID int, pack byte, rawReq []byte) error
}

// NodeForwarder is the concrete AbstractForwarder, grounded on
// raft.Peer.callRPC / raft.Peer.dispatch (gob request/response framing
// over rpccore.Node.SendRawRequest / RegisterRawRequestCallback).
//
// NodeForwarder does not call node.RegisterRawRequestCallback itself: a
// rpccore.Node has exactly one raw-request callback, and raft.Peer already
// uses that slot for "rv"/"ae". Whoever wires the node (peer.go)
// multiplexes by method name and routes RPCMethodForward to HandleRaw, the
// same way raft.Peer.dispatch switches on method.
type NodeForwarder struct {
	node   rpccore.Node
	logger *logrus.Entry
	sink   Sink
}

// NewNodeForwarder returns a forwarder that sends over node and, once
// wired into node's method dispatcher via HandleRaw, delivers incoming
// forwarded requests to sink.
func NewNodeForwarder(node rpccore.Node, logger *logrus.Entry, sink Sink) *NodeForwarder {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	return &NodeForwarder{node: node, logger: logger, sink: sink}
}

// HandleRaw handles one RPCMethodForward call. Callers multiplexing several
// rpccore.Callback-shaped handlers on one node should route method ==
// RPCMethodForward here.
func (f *NodeForwarder) HandleRaw(source rpccore.NodeID, method string, data []byte) ([]byte, error) {
	return f.handleRaw(source, method, data)
}

// ForwardRPC implements AbstractForwarder.
func (f *NodeForwarder) ForwardRPC(target rpccore.NodeID, callerID int, pack byte, rawReq []byte) error {
	req := ForwardReq{CallerID: callerID, Pack: pack, RawReq: rawReq}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(req); err != nil {
		return errors.WithStack(err)
	}
	resData, err := f.node.SendRawRequest(target, RPCMethodForward, buf.Bytes())
	if err != nil {
		return err
	}
	var res ForwardRes
	if err := gob.NewDecoder(bytes.NewReader(resData)).Decode(&res); err != nil {
		return errors.WithStack(err)
	}
	if res.Err != "" {
		return errors.New(res.Err)
	}
	return nil
}

func (f *NodeForwarder) handleRaw(source rpccore.NodeID, method string, data []byte) ([]byte, error) {
	var req ForwardReq
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&req); err != nil {
		return nil, errors.WithStack(err)
	}
	f.logger.Tracef("received forwarded request from %v, caller %v", source, req.CallerID)

	rawRes, sinkErr := f.sink(req.CallerID, req.Pack, req.RawReq)
	res := ForwardRes{RawRes: rawRes}
	if sinkErr != nil {
		res.Err = sinkErr.Error()
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(res); err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}

// Package frontend is the RPC frontend: request intake and decoding,
// caller/signature authentication, handler dispatch, leader/follower
// routing, and transactional execution with retry. Grounded on raft-lite's
// raft.Peer.handleRPCCall / HandleClientRequest for the overall shape of
// "decode, classify, dispatch, commit" but reworked around this module's
// own kvstore/consensus/forwarder/history collaborators rather than
// raft-lite's log-replicated state machine.
package frontend

import (
	"github.com/lmarchetti/kvrpc/jsonrpc"
	"github.com/lmarchetti/kvrpc/kvstore"
	"github.com/lmarchetti/kvrpc/rpccore"
	"github.com/lmarchetti/kvrpc/signedreq"
)

// RWClass classifies a handler's effect on the store.
type RWClass int

const (
	Read RWClass = iota
	Write
	MayWrite
)

func (c RWClass) String() string {
	switch c {
	case Write:
		return "Write"
	case MayWrite:
		return "MayWrite"
	default:
		return "Read"
	}
}

// Forwardable controls whether a follower may transparently forward a
// Write/MayWrite call to the leader rather than redirecting the caller.
type Forwardable bool

const (
	CanForward   Forwardable = true
	DoNotForward Forwardable = false
)

// HandlerFunc is the homogeneous handler closure type: schemas are data,
// not types, so the registry can hold handlers with different parameter
// and result shapes behind one signature.
type HandlerFunc func(args *RequestArgs) (interface{}, error)

// MinimalHandlerFunc is the convenience shape that only needs the
// transaction and decoded params, adapted into a HandlerFunc by
// InstallMinimal.
type MinimalHandlerFunc func(tx *kvstore.Tx, params interface{}) (interface{}, error)

// Handler is one registry entry.
type Handler struct {
	Func         HandlerFunc
	RW           RWClass
	ParamsSchema interface{}
	ResultSchema interface{}
	Forwardable  Forwardable
}

// ForwardedContext is present on RPCContext only for a request that
// arrived over the forwarder channel.
type ForwardedContext struct {
	CallerID kvstore.CallerId
	LeaderID rpccore.NodeID
}

// RPCContext is owned by the transport and mutated by the frontend across
// a single call's lifetime.
type RPCContext struct {
	CallerCert []byte
	SessionID  uint64
	Pack       jsonrpc.Pack
	SeqNo      interface{}
	IsPending  bool
	Fwd        *ForwardedContext
}

// RequestArgs is the per-invocation bundle passed to a handler.
type RequestArgs struct {
	Ctx      *RPCContext
	Tx       *kvstore.Tx
	CallerID kvstore.CallerId
	Method   string
	Params   interface{}
	Signed   *signedreq.SignedReq
}

package kvstore

import "github.com/lmarchetti/kvrpc/signedreq"

// CallerId identifies an authenticated client certificate.
type CallerId int

// InvalidID is the sentinel CallerId the frontend's validCaller returns,
// together with ok=false, both when no certificate map is configured and
// when the presented cert is empty or not found.
const InvalidID CallerId = -1

const (
	TableCerts            = "certs"
	TableNodes            = "nodes"
	TableClientSignatures = "client_signatures"
)

// NodeStatus mirrors ccf::NodeStatus; only Trusted nodes are reported by
// GET_NETWORK_INFO.
type NodeStatus int

const (
	NodePending NodeStatus = iota
	NodeTrusted
	NodeRetired
)

// NodeInfo is the directory entry for one cluster node.
type NodeInfo struct {
	NodeID  string
	PubHost string
	TLSPort string
	Status  NodeStatus
}

// CertsView is the typed view over the certificate -> CallerId table. The
// key is the raw certificate bytes, stringified.
type CertsView = *View[string, CallerId]

// NodesView is the typed view over the node directory.
type NodesView = *View[string, NodeInfo]

// ClientSignaturesView is the typed view over the latest-accepted
// SignedReq per caller.
type ClientSignaturesView = *View[CallerId, signedreq.SignedReq]

func Certs(tx *Tx) CertsView {
	return NewView[string, CallerId](tx, TableCerts)
}

func Nodes(tx *Tx) NodesView {
	return NewView[string, NodeInfo](tx, TableNodes)
}

func ClientSignatures(tx *Tx) ClientSignaturesView {
	return NewView[CallerId, signedreq.SignedReq](tx, TableClientSignatures)
}

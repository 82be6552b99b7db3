// Package consensus defines the narrow view onto leader election, term, and
// commit index that the frontend needs from the replication layer. spec.md
// treats the consensus module as an external collaborator referenced only
// by its interface; this package is that interface, implemented by the
// raft package.
package consensus

import (
	"net"

	"github.com/lmarchetti/kvrpc/rpccore"
)

// Info is what frontend.Frontend reads from the replication layer on every
// call: whether this node can accept writes, and who to redirect to if not.
type Info interface {
	// ID is this node's own identity.
	ID() rpccore.NodeID

	// IsLeader reports whether this node currently believes itself to be
	// the leader of its term.
	IsLeader() bool

	// Term is the current consensus term.
	Term() uint64

	// CommitIdx is the highest log index known committed.
	CommitIdx() uint64

	// GlobalCommitIdx is the highest index committed across the whole
	// configuration (== CommitIdx for a single-group deployment).
	GlobalCommitIdx() uint64

	// Leader reports the current leader's node id, if known. ok is false
	// if no leader has been observed yet.
	Leader() (id rpccore.NodeID, ok bool)
}

// EndpointResolver maps a consensus node id to the host/port a client
// should be redirected to, the data GET_LEADER_INFO and the TX_NOT_LEADER
// error's "host:port" data need. It is kept separate from Info because the
// consensus layer knows node identities, not their public RPC endpoints.
// The one implementation here, StaticEndpoints, reads that mapping from a
// fixed address map; kvstore's node table (NodeInfo.PubHost/TLSPort) is
// not consulted.
type EndpointResolver interface {
	Endpoint(id rpccore.NodeID) (host, port string, ok bool)
}

// StaticEndpoints resolves endpoints from a fixed node-id -> "host:port"
// map, the shape nodeconfig.PeerConfig.NodeAddrMap already carries.
type StaticEndpoints struct {
	addrs map[rpccore.NodeID]string
}

func NewStaticEndpoints(addrs map[rpccore.NodeID]string) *StaticEndpoints {
	return &StaticEndpoints{addrs: addrs}
}

func (s *StaticEndpoints) Endpoint(id rpccore.NodeID) (host, port string, ok bool) {
	addr, ok := s.addrs[id]
	if !ok {
		return "", "", false
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", "", false
	}
	return host, port, true
}

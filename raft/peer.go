// Package raft implements consensus.Info: leader election and term
// tracking over real RPCs. Grounded on raft-lite's raft.Peer (same field
// names: currentTerm, votedFor, commitIndex, nextIndex, matchIndex, the
// Follower/Candidate/Leader state machine) but raft-lite's own
// Start/runTimer/startElection/sendHeartBeats are empty stubs and its
// append-entries/request-vote handlers are duplicated across two files
// with incompatible signatures (append_entry.go vs.
// append_entry_handler.go) — this package fills in the election and
// heartbeat loops so Info reports a real leader.
//
// Log replication of application commands is intentionally out of scope:
// the frontend only needs leader identity, term, and commit index
// (spec.md treats the consensus module as an external collaborator
// referenced only by its interface), and kvstore's own optimistic-
// concurrency commit loop is what actually guards writes.
package raft

import (
	"sync"
	"time"

	"github.com/lmarchetti/kvrpc/rpccore"
	"github.com/sirupsen/logrus"
)

type PeerState int

const (
	Follower PeerState = iota
	Candidate
	Leader
)

func (s PeerState) String() string {
	switch s {
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	default:
		return "follower"
	}
}

// LogEntry is a no-op placeholder log slot: this package only replicates
// heartbeats, so every entry beyond the index-0 sentinel carries the term
// it was appended in and nothing else.
type LogEntry struct {
	Term uint64
}

const (
	electionTimeoutMin = 300 * time.Millisecond
	electionTimeoutMax = 600 * time.Millisecond
	heartbeatInterval  = 75 * time.Millisecond
	rpcTimeout         = 200 * time.Millisecond
)

// Peer is one node of a single raft group.
type Peer struct {
	mu     sync.Mutex
	id     rpccore.NodeID
	node   rpccore.Node
	peers  []rpccore.NodeID
	logger *logrus.Entry

	state       PeerState
	currentTerm uint64
	votedFor    *rpccore.NodeID
	leaderID    *rpccore.NodeID

	commitIndex uint64
	nextIndex   map[rpccore.NodeID]uint64
	matchIndex  map[rpccore.NodeID]uint64

	resetAt time.Time
	timeout time.Duration

	dead bool
	stop chan struct{}

	// Fallback handles rpccore methods this peer doesn't own, e.g. the
	// forwarder's RPCMethodForward. One rpccore.Node has one raw-request
	// callback slot, so Peer.dispatch multiplexes by method name the same
	// way raft-lite's handleRPCCall does, and anything it doesn't
	// recognize falls through here.
	Fallback rpccore.Callback
}

// NewPeer wires node's raw-request callback to this peer and returns it
// idle; call Start to begin the election timer.
func NewPeer(node rpccore.Node, peers []rpccore.NodeID, logger *logrus.Entry) *Peer {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	p := &Peer{
		id:         node.NodeID(),
		node:       node,
		peers:      append([]rpccore.NodeID{}, peers...),
		logger:     logger,
		nextIndex:  make(map[rpccore.NodeID]uint64),
		matchIndex: make(map[rpccore.NodeID]uint64),
		stop:       make(chan struct{}),
	}
	node.RegisterRawRequestCallback(p.dispatch)
	return p
}

// Start begins the election timer in the background.
func (p *Peer) Start() {
	p.mu.Lock()
	p.resetElectionTimer()
	p.mu.Unlock()
	go p.runTimer()
}

// Shutdown stops the election timer and any heartbeat loop.
func (p *Peer) Shutdown() {
	p.mu.Lock()
	if p.dead {
		p.mu.Unlock()
		return
	}
	p.dead = true
	p.mu.Unlock()
	close(p.stop)
}

// --- consensus.Info ---

// ID returns this node's own identity.
func (p *Peer) ID() rpccore.NodeID { return p.id }

// IsLeader reports whether this node believes itself leader of its term.
func (p *Peer) IsLeader() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == Leader
}

// Term returns the current term.
func (p *Peer) Term() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentTerm
}

// CommitIdx returns the highest index known committed.
func (p *Peer) CommitIdx() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.commitIndex
}

// GlobalCommitIdx equals CommitIdx for this single-group deployment.
func (p *Peer) GlobalCommitIdx() uint64 { return p.CommitIdx() }

// Leader reports the current leader's id, if known.
func (p *Peer) Leader() (rpccore.NodeID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Leader {
		return p.id, true
	}
	if p.leaderID == nil {
		return "", false
	}
	return *p.leaderID, true
}

func (p *Peer) changeState(s PeerState) {
	if p.state != s {
		p.logger.Debugf("%v: %v -> %v (term %v)", p.id, p.state, s, p.currentTerm)
	}
	p.state = s
}

func (p *Peer) updateTerm(term uint64) {
	if term > p.currentTerm {
		p.currentTerm = term
		p.votedFor = nil
	}
}

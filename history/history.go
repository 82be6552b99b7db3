// Package history implements the request log / signature-emission
// collaborator spec.md treats as external (the "history/merkle module").
// Signature emission is used as an ordering/commit marker: each call to
// EmitSignature folds every raw request logged since the last signature
// into a merkle root, the Go stand-in for kv::TxHistory::emit_signature.
package history

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// RequestID identifies one client request for log/dedup purposes, the Go
// name for kv::TxHistory::RequestID.
type RequestID struct {
	CallerID  int
	SessionID uint64
	SeqNo     interface{}
}

// EntryStatus tracks whether a logged request has gone on to commit.
type EntryStatus int

const (
	StatusPending EntryStatus = iota
	StatusCommitted
)

func (s EntryStatus) String() string {
	if s == StatusCommitted {
		return "committed"
	}
	return "pending"
}

type logEntry struct {
	reqID  RequestID
	actor  string
	raw    []byte
	status EntryStatus
}

// TxHistory is the narrow interface the frontend depends on.
type TxHistory interface {
	AddRequest(reqID RequestID, actor string, raw []byte)
	MarkCommitted(reqID RequestID)
	Status(reqID RequestID) (EntryStatus, bool)
	EmitSignature() []byte
	LastSignature() []byte
}

// MerkleHistory is the concrete, in-memory TxHistory implementation this
// repository exercises the frontend against.
type MerkleHistory struct {
	mu      sync.Mutex
	logger  *logrus.Entry
	entries []*logEntry
	byID    map[RequestID]*logEntry

	unsigned   [][]byte
	lastSigRoot []byte
}

// NewMerkleHistory returns an empty history log.
func NewMerkleHistory(logger *logrus.Entry) *MerkleHistory {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	return &MerkleHistory{
		logger: logger,
		byID:   make(map[RequestID]*logEntry),
	}
}

// AddRequest appends raw to the log under reqID, the Go name for
// kv::TxHistory::add_request.
func (h *MerkleHistory) AddRequest(reqID RequestID, actor string, raw []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e := &logEntry{reqID: reqID, actor: actor, raw: raw, status: StatusPending}
	h.entries = append(h.entries, e)
	h.byID[reqID] = e
	h.unsigned = append(h.unsigned, raw)
	h.logger.Tracef("logged request %+v from actor %s", reqID, actor)
}

// MarkCommitted records that reqID's transaction has committed, letting
// GET_TX_STATUS distinguish "pending" from "committed".
func (h *MerkleHistory) MarkCommitted(reqID RequestID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.byID[reqID]; ok {
		e.status = StatusCommitted
	}
}

// Status reports the logged status of reqID, if known.
func (h *MerkleHistory) Status(reqID RequestID) (EntryStatus, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.byID[reqID]
	if !ok {
		return 0, false
	}
	return e.status, true
}

// EmitSignature folds every raw request logged since the last call into a
// merkle root, stamps it as the latest signature, and returns it.
func (h *MerkleHistory) EmitSignature() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.unsigned) == 0 {
		return h.lastSigRoot
	}
	root := merkleRoot(h.unsigned)
	h.lastSigRoot = root
	h.unsigned = nil
	h.logger.Debugf("emitted signature over merkle root %x", root)
	return root
}

// LastSignature returns the most recently emitted root, or nil if none has
// been emitted yet.
func (h *MerkleHistory) LastSignature() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastSigRoot
}

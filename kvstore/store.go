// Package kvstore is the in-memory transactional store the frontend drives
// through commit/retry. spec.md treats the transactional store as an
// external collaborator referenced only by interface; this package supplies
// the concrete implementation this repository exercises the frontend
// against. Durability is explicitly a non-goal (spec.md §1) — the optional
// snapshot in snapshot.go is best-effort, not a consistency mechanism.
package kvstore

import (
	"sync/atomic"

	"github.com/sasha-s/go-deadlock"
)

// Version is a monotonic store-wide commit version, the Go name for
// kv::Version.
type Version uint64

// CommitResult mirrors kv::CommitSuccess.
type CommitResult int

const (
	CommitOK CommitResult = iota
	CommitConflict
	CommitNoReplicate
)

func (r CommitResult) String() string {
	switch r {
	case CommitOK:
		return "OK"
	case CommitConflict:
		return "CONFLICT"
	case CommitNoReplicate:
		return "NO_REPLICATE"
	default:
		return "UNKNOWN"
	}
}

type entry struct {
	key     interface{}
	value   interface{}
	version Version
}

// table is a single named map-backed table, guarded by its own lock so
// unrelated tables never contend. go-deadlock stands in for sync.RWMutex so
// a lock-ordering bug between a table lock and the store-wide commit lock
// is caught in tests rather than hanging.
type table struct {
	mu   deadlock.RWMutex
	name string
	data map[string]entry
}

func newTable(name string) *table {
	return &table{name: name, data: make(map[string]entry)}
}

// ReplicateHook lets a consensus adapter veto a commit (CommitNoReplicate)
// when the underlying log failed to replicate the transaction, mirroring
// kv::CommitSuccess::NO_REPLICATE. A nil hook always succeeds.
type ReplicateHook func() bool

// Store is the transactional store. Every request opens a fresh Tx; each
// row keeps only its latest committed value and version, reads see that
// latest value, and Commit rejects the Tx if any row it read has changed
// since (optimistic concurrency).
type Store struct {
	commitMu deadlock.Mutex // serializes Commit: conflict-check + apply

	tablesMu deadlock.Mutex
	tables   map[string]*table

	version      atomic.Uint64
	lastSigned   atomic.Uint64
	ReplicateHook ReplicateHook
}

// NewStore returns an empty store with the built-in tables pre-created.
func NewStore() *Store {
	s := &Store{tables: make(map[string]*table)}
	for _, name := range []string{TableCerts, TableNodes, TableClientSignatures} {
		s.tables[name] = newTable(name)
	}
	return s
}

func (s *Store) table(name string) *table {
	s.tablesMu.Lock()
	defer s.tablesMu.Unlock()
	t, ok := s.tables[name]
	if !ok {
		t = newTable(name)
		s.tables[name] = t
	}
	return t
}

// CurrentVersion returns the store's current committed version.
func (s *Store) CurrentVersion() Version {
	return Version(s.version.Load())
}

// CommitGap reports how many versions have committed since the last
// emitted signature, used by Tick (spec.md §4.8) to decide whether there is
// anything new worth signing.
func (s *Store) CommitGap() Version {
	cur := s.version.Load()
	last := s.lastSigned.Load()
	if cur <= last {
		return 0
	}
	return Version(cur - last)
}

// MarkSigned records that a signature has been emitted covering up to the
// store's current version, called by the frontend right after it calls
// history.EmitSignature.
func (s *Store) MarkSigned() {
	s.lastSigned.Store(s.version.Load())
}

// Begin opens a new transaction.
func (s *Store) Begin() *Tx {
	return &Tx{
		store:       s,
		readVersion: s.CurrentVersion(),
		reads:       make(map[string]Version),
		writes:      make(map[string]writeOp),
	}
}

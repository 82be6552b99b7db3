package kvstore

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"

	"github.com/lmarchetti/kvrpc/signedreq"
	"github.com/natefinch/atomic"
	"github.com/pkg/errors"
)

// snapshot is the gob-serializable projection of the built-in tables,
// adapted from the teacher's pstorage.FileBased (gob + atomic.WriteFile).
// Durability of the store is explicitly a non-goal (spec.md §1); this is a
// best-effort restart aid, not a consistency mechanism.
type snapshot struct {
	Version           uint64
	Certs             map[string]CallerId
	Nodes             map[string]NodeInfo
	ClientSignatures  map[CallerId]signedreq.SignedReq
}

func (s *Store) toSnapshot() snapshot {
	snap := snapshot{
		Version:          s.version.Load(),
		Certs:            make(map[string]CallerId),
		Nodes:            make(map[string]NodeInfo),
		ClientSignatures: make(map[CallerId]signedreq.SignedReq),
	}

	for ks, e := range s.table(TableCerts).snapshotEntries() {
		if v, ok := e.(CallerId); ok {
			snap.Certs[ks] = v
		}
	}
	for ks, e := range s.table(TableNodes).snapshotEntries() {
		if v, ok := e.(NodeInfo); ok {
			snap.Nodes[ks] = v
		}
	}
	for ks, e := range s.table(TableClientSignatures).snapshotEntries() {
		if v, ok := e.(signedreq.SignedReq); ok {
			caller, ok := parseCallerKey(ks)
			if ok {
				snap.ClientSignatures[caller] = v
			}
		}
	}
	return snap
}

func (t *table) snapshotEntries() map[string]interface{} {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]interface{}, len(t.data))
	for k, e := range t.data {
		out[k] = e.value
	}
	return out
}

func parseCallerKey(ks string) (CallerId, bool) {
	var id int
	n, err := fmt.Sscanf(ks, "%d", &id)
	if err != nil || n != 1 {
		return 0, false
	}
	return CallerId(id), true
}

// SaveSnapshot persists the built-in tables to path via an atomic rename,
// matching the teacher's FileBased.Save.
func (s *Store) SaveSnapshot(path string) error {
	snap := s.toSnapshot()
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(atomic.WriteFile(path, &buf))
}

// LoadSnapshot restores the built-in tables from path, if it exists.
func (s *Store) LoadSnapshot(path string) (bool, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, errors.WithStack(err)
	}

	f, err := os.Open(path)
	if err != nil {
		return false, errors.WithStack(err)
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return false, errors.WithStack(err)
	}

	tx := s.Begin()
	certs := Certs(tx)
	for k, v := range snap.Certs {
		certs.Put(k, v)
	}
	nodes := Nodes(tx)
	for k, v := range snap.Nodes {
		nodes.Put(k, v)
	}
	sigs := ClientSignatures(tx)
	for k, v := range snap.ClientSignatures {
		sigs.Put(k, v)
	}
	if res := tx.Commit(); res != CommitOK {
		return false, errors.Errorf("kvstore: snapshot restore commit failed: %v", res)
	}
	s.version.Store(snap.Version)
	return true, nil
}

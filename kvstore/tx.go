package kvstore

import "fmt"

type writeOp struct {
	table   string
	key     string
	origKey interface{}
	value   interface{}
	delete  bool
}

// Tx is a single transaction: a recorded read set plus a buffered write
// set, applied atomically (or rejected as a conflict) on Commit.
type Tx struct {
	store       *Store
	readVersion Version
	reads       map[string]Version
	writes      map[string]writeOp

	commitVersion Version
	committed     bool
}

func rowKey(table, key string) string {
	return table + "\x00" + key
}

// ReadVersion returns the version the transaction's reads are consistent
// with, the Go name for Store::Tx::get_read_version.
func (tx *Tx) ReadVersion() Version {
	return tx.readVersion
}

// CommitVersion returns the version this transaction committed at, or 0 if
// it has not committed or committed without any writes (matching cv == 0 in
// the original before the fallback chain in spec.md's invariant list).
func (tx *Tx) CommitVersion() Version {
	return tx.commitVersion
}

func (tx *Tx) recordRead(table, key string, ver Version) {
	rk := rowKey(table, key)
	if _, ok := tx.reads[rk]; !ok {
		tx.reads[rk] = ver
	}
}

func (tx *Tx) recordWrite(table, key string, origKey, value interface{}, del bool) {
	rk := rowKey(table, key)
	tx.writes[rk] = writeOp{table: table, key: key, origKey: origKey, value: value, delete: del}
}

func (tx *Tx) pendingWrite(table, key string) (writeOp, bool) {
	w, ok := tx.writes[rowKey(table, key)]
	return w, ok
}

// Commit validates every read recorded during the transaction against the
// store's current state and, if none conflict, applies the buffered writes
// atomically. The store version is bumped only when the Tx wrote something.
func (tx *Tx) Commit() CommitResult {
	if tx.committed {
		panic("kvstore: Tx committed twice")
	}

	tx.store.commitMu.Lock()
	defer tx.store.commitMu.Unlock()

	for rk, sawVersion := range tx.reads {
		table, key := splitRowKey(rk)
		t := tx.store.table(table)
		t.mu.RLock()
		e, ok := t.data[key]
		t.mu.RUnlock()
		var curVersion Version
		if ok {
			curVersion = e.version
		}
		if curVersion != sawVersion {
			return CommitConflict
		}
	}

	if tx.store.ReplicateHook != nil && !tx.store.ReplicateHook() {
		return CommitNoReplicate
	}

	if len(tx.writes) > 0 {
		newVersion := Version(tx.store.version.Load() + 1)
		for _, w := range tx.writes {
			t := tx.store.table(w.table)
			t.mu.Lock()
			if w.delete {
				delete(t.data, w.key)
			} else {
				t.data[w.key] = entry{key: w.origKey, value: w.value, version: newVersion}
			}
			t.mu.Unlock()
		}
		tx.store.version.Store(uint64(newVersion))
		tx.commitVersion = newVersion
	}
	tx.committed = true
	return CommitOK
}

func splitRowKey(rk string) (string, string) {
	for i := 0; i < len(rk); i++ {
		if rk[i] == 0 {
			return rk[:i], rk[i+1:]
		}
	}
	panic(fmt.Sprintf("kvstore: malformed row key %q", rk))
}

package kvstore

import "fmt"

// View is a typed accessor bound to one table within a Tx. Views obtained
// from a Tx are only valid for that Tx's lifetime (spec.md §5).
type View[K comparable, V any] struct {
	tx    *Tx
	table string
}

// NewView returns a typed view over the named table for the given
// transaction.
func NewView[K comparable, V any](tx *Tx, table string) *View[K, V] {
	return &View[K, V]{tx: tx, table: table}
}

func keyStr[K comparable](k K) string {
	return fmt.Sprintf("%v", k)
}

// Get looks up key, recording the read for conflict detection on commit.
// A value written earlier in the same transaction is visible immediately
// (read-your-own-writes).
func (v *View[K, V]) Get(key K) (V, bool) {
	var zero V
	ks := keyStr(key)

	if w, ok := v.tx.pendingWrite(v.table, ks); ok {
		if w.delete {
			return zero, false
		}
		val, ok := w.value.(V)
		return val, ok
	}

	t := v.tx.store.table(v.table)
	t.mu.RLock()
	e, ok := t.data[ks]
	t.mu.RUnlock()

	v.tx.recordRead(v.table, ks, e.version)
	if !ok {
		return zero, false
	}
	val, ok := e.value.(V)
	return val, ok
}

// Put writes key -> val, visible to later reads in this Tx, durable only if
// the Tx commits.
func (v *View[K, V]) Put(key K, val V) {
	ks := keyStr(key)
	v.tx.recordWrite(v.table, ks, key, val, false)
}

// Remove deletes key, effective only if the Tx commits.
func (v *View[K, V]) Remove(key K) {
	ks := keyStr(key)
	v.tx.recordWrite(v.table, ks, key, nil, true)
}

// Foreach visits every committed row of the table as of this call, plus any
// uncommitted writes made earlier in the same Tx. fn returning
// false stops iteration early (mirroring the original's foreach callback
// convention).
func (v *View[K, V]) Foreach(fn func(K, V) bool) {
	seen := make(map[string]bool)

	t := v.tx.store.table(v.table)
	t.mu.RLock()
	rows := make([]entry, 0, len(t.data))
	keys := make([]string, 0, len(t.data))
	for ks, e := range t.data {
		rows = append(rows, e)
		keys = append(keys, ks)
	}
	t.mu.RUnlock()

	for i, e := range rows {
		ks := keys[i]
		v.tx.recordRead(v.table, ks, e.version)
		seen[ks] = true

		if w, ok := v.tx.pendingWrite(v.table, ks); ok {
			if w.delete {
				continue
			}
			if kk, ok := w.origKey.(K); ok {
				if vv, ok := w.value.(V); ok {
					if !fn(kk, vv) {
						return
					}
				}
			}
			continue
		}

		kk, ok := e.key.(K)
		if !ok {
			continue
		}
		vv, ok := e.value.(V)
		if !ok {
			continue
		}
		if !fn(kk, vv) {
			return
		}
	}

	// Rows created earlier in this same Tx that don't exist in the
	// committed table yet.
	for rk, w := range v.tx.writes {
		table, ks := splitRowKey(rk)
		if table != v.table || w.delete || seen[ks] {
			continue
		}
		kk, ok := w.origKey.(K)
		if !ok {
			continue
		}
		vv, ok := w.value.(V)
		if !ok {
			continue
		}
		if !fn(kk, vv) {
			return
		}
	}
}

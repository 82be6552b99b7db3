package history

import "crypto/sha256"

// merkleRoot hashes each leaf, then repeatedly hashes adjacent pairs until a
// single root hash remains, duplicating the last leaf when the level has an
// odd count. The pairing strategy is grounded on
// 2612-lulu-github_repository/merkletree, adapted to loop until exactly one
// node remains (the original's fixed iteration count for the pairing loop
// produces an out-of-bounds pass past the second level; this version loops
// on the actual level size instead).
func merkleRoot(leaves [][]byte) []byte {
	if len(leaves) == 0 {
		return nil
	}

	level := make([][]byte, len(leaves))
	for i, l := range leaves {
		h := sha256.Sum256(l)
		level[i] = h[:]
	}

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([][]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			combined := append(append([]byte{}, level[i]...), level[i+1]...)
			h := sha256.Sum256(combined)
			next = append(next, h[:])
		}
		level = next
	}
	return level[0]
}

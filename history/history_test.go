package history

import "testing"

func TestAddRequestAndStatus(t *testing.T) {
	h := NewMerkleHistory(nil)
	reqID := RequestID{CallerID: 1, SessionID: 9, SeqNo: float64(1)}
	h.AddRequest(reqID, "users", []byte("payload"))

	status, ok := h.Status(reqID)
	if !ok || status != StatusPending {
		t.Fatalf("expected pending status, got %v, %v", status, ok)
	}

	h.MarkCommitted(reqID)
	status, ok = h.Status(reqID)
	if !ok || status != StatusCommitted {
		t.Fatalf("expected committed status, got %v, %v", status, ok)
	}
}

func TestEmitSignatureIsDeterministicAndDrains(t *testing.T) {
	h := NewMerkleHistory(nil)
	h.AddRequest(RequestID{CallerID: 1, SeqNo: float64(1)}, "users", []byte("a"))
	h.AddRequest(RequestID{CallerID: 1, SeqNo: float64(2)}, "users", []byte("b"))

	root1 := h.EmitSignature()
	if root1 == nil {
		t.Fatalf("expected a non-nil root")
	}

	// No new requests since the last signature: EmitSignature should return
	// the same root rather than hash an empty set.
	root2 := h.EmitSignature()
	if string(root1) != string(root2) {
		t.Errorf("expected EmitSignature to be a no-op with nothing new logged")
	}

	h.AddRequest(RequestID{CallerID: 2, SeqNo: float64(1)}, "users", []byte("c"))
	root3 := h.EmitSignature()
	if string(root3) == string(root1) {
		t.Errorf("expected a new signature once a new request was logged")
	}
}

func TestMerkleRootDiffersForEvenAndOddLeafCounts(t *testing.T) {
	even := merkleRoot([][]byte{[]byte("a"), []byte("b")})
	odd := merkleRoot([][]byte{[]byte("a"), []byte("b"), []byte("c")})
	if even == nil || odd == nil {
		t.Fatalf("expected non-nil roots")
	}
	if string(even) == string(odd) {
		t.Errorf("expected different leaf sets to produce different roots")
	}
}

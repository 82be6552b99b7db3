package frontend

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"testing"
	"time"

	"github.com/lmarchetti/kvrpc/consensus"
	"github.com/lmarchetti/kvrpc/history"
	"github.com/lmarchetti/kvrpc/jsonrpc"
	"github.com/lmarchetti/kvrpc/kvstore"
	"github.com/lmarchetti/kvrpc/rpccore"
)

// fakeInfo is a hand-wound consensus.Info for driving the frontend through
// leader/follower states without a real raft group.
type fakeInfo struct {
	id          rpccore.NodeID
	leader      bool
	term        uint64
	commitIdx   uint64
	globalIdx   uint64
	leaderID    rpccore.NodeID
	leaderKnown bool
}

func (i *fakeInfo) ID() rpccore.NodeID          { return i.id }
func (i *fakeInfo) IsLeader() bool              { return i.leader }
func (i *fakeInfo) Term() uint64                { return i.term }
func (i *fakeInfo) CommitIdx() uint64           { return i.commitIdx }
func (i *fakeInfo) GlobalCommitIdx() uint64     { return i.globalIdx }
func (i *fakeInfo) Leader() (rpccore.NodeID, bool) {
	return i.leaderID, i.leaderKnown
}

// fakeForwarder records a forwarded call instead of shipping it anywhere.
type fakeForwarder struct {
	target   rpccore.NodeID
	callerID int
	pack     byte
	rawReq   []byte
	err      error
}

func (f *fakeForwarder) ForwardRPC(target rpccore.NodeID, callerID int, pack byte, rawReq []byte) error {
	f.target, f.callerID, f.pack, f.rawReq = target, callerID, pack, rawReq
	return f.err
}

// S2: a request whose jsonrpc version isn't "2.0" is rejected outright.
func TestBadJSONRPCVersionIsRejected(t *testing.T) {
	f, _ := newTestFrontend(t)
	ctx := &RPCContext{CallerCert: []byte(testCert)}

	req := map[string]interface{}{
		jsonrpc.FieldJSONRPC: "1.0",
		jsonrpc.FieldID:      1,
		jsonrpc.FieldMethod:  "PING",
	}
	raw, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out := f.Process(ctx, raw)
	var resp jsonrpc.Response
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != jsonrpc.InvalidRequest {
		t.Fatalf("expected INVALID_REQUEST, got %+v", resp)
	}
}

// S3: a follower with no forwarder configured redirects the caller to the
// leader's host:port rather than answering or forwarding.
func TestFollowerRedirectsToLeaderWithoutForwarder(t *testing.T) {
	f, _ := newTestFrontend(t)
	f.InstallMinimal("SET_NODE", func(tx *kvstore.Tx, params interface{}) (interface{}, error) {
		return nil, nil
	}, Write, CanForward)

	info := &fakeInfo{id: "n1", leader: false, leaderID: "n2", leaderKnown: true}
	f.SetConsensus(func() consensus.Info { return info })
	f.SetEndpointResolver(consensus.NewStaticEndpoints(map[rpccore.NodeID]string{
		"n2": "10.0.0.2:9001",
	}))

	ctx := &RPCContext{CallerCert: []byte(testCert)}
	resp := callProcess(t, f, ctx, "SET_NODE", nil)
	if resp == nil || resp.Error == nil {
		t.Fatalf("expected TX_NOT_LEADER redirect, got %+v", resp)
	}
	if resp.Error.Code != jsonrpc.TxNotLeader {
		t.Fatalf("expected code %v, got %v", jsonrpc.TxNotLeader, resp.Error.Code)
	}
	if resp.Error.Data != "10.0.0.2:9001" {
		t.Errorf("expected redirect data \"10.0.0.2:9001\", got %+v", resp.Error.Data)
	}
}

// S4: a follower with a forwarder configured hands the write off instead of
// answering; Process returns nil (fire-and-forget) and the forwarder sees
// the original raw bytes addressed to the leader.
func TestFollowerForwardsPendingWriteToLeader(t *testing.T) {
	f, _ := newTestFrontend(t)
	f.InstallMinimal("SET_NODE", func(tx *kvstore.Tx, params interface{}) (interface{}, error) {
		return nil, nil
	}, Write, CanForward)

	info := &fakeInfo{id: "n1", leader: false, leaderID: "n2", leaderKnown: true}
	f.SetConsensus(func() consensus.Info { return info })
	fwd := &fakeForwarder{}
	f.SetForwarder(fwd)

	ctx := &RPCContext{CallerCert: []byte(testCert)}
	resp := callProcess(t, f, ctx, "SET_NODE", nil)
	if resp != nil {
		t.Fatalf("expected a pending (nil) response, got %+v", resp)
	}
	if !ctx.IsPending {
		t.Error("expected ctx.IsPending to be true")
	}
	if fwd.target != "n2" {
		t.Errorf("expected forward target n2, got %v", fwd.target)
	}
	if len(fwd.rawReq) == 0 {
		t.Error("expected the forwarder to receive the raw request bytes")
	}
}

// S5: GET_COMMIT's response carries commit/term/global_commit annotations
// sourced from consensus.Info.
func TestGetCommitAnnotatesCommitTermGlobalCommit(t *testing.T) {
	f, _ := newTestFrontend(t)
	info := &fakeInfo{id: "n1", leader: true, term: 7, commitIdx: 42, globalIdx: 42, leaderID: "n1", leaderKnown: true}
	f.SetConsensus(func() consensus.Info { return info })

	ctx := &RPCContext{CallerCert: []byte(testCert)}
	resp := callProcess(t, f, ctx, "GET_COMMIT", nil)
	if resp == nil || resp.Error != nil {
		t.Fatalf("expected success, got %+v", resp)
	}
	if resp.Term == nil || *resp.Term != 7 {
		t.Errorf("expected term annotation 7, got %+v", resp.Term)
	}
	if resp.GlobalCommit == nil || *resp.GlobalCommit != 42 {
		t.Errorf("expected global_commit annotation 42, got %+v", resp.GlobalCommit)
	}
}

// S6: a commit that first conflicts (another writer's read invalidated by a
// concurrent write between Begin and Commit) retries and eventually
// succeeds rather than surfacing the conflict to the caller.
func TestConflictingCommitRetriesThenSucceeds(t *testing.T) {
	f, store := newTestFrontend(t)

	attempts := 0
	f.InstallMinimal("BUMP", func(tx *kvstore.Tx, params interface{}) (interface{}, error) {
		attempts++
		// Read node-a so this Tx's read-set includes it.
		kvstore.Nodes(tx).Get("node-a")
		if attempts == 1 {
			// Simulate a racing writer landing between this handler's read
			// and its own Commit: bump node-a out from under the in-flight
			// Tx on a separate, already-committed transaction.
			other := store.Begin()
			kvstore.Nodes(other).Put("node-a", kvstore.NodeInfo{NodeID: "node-a", Status: kvstore.NodeTrusted})
			if res := other.Commit(); res != kvstore.CommitOK {
				t.Fatalf("racing commit failed: %v", res)
			}
		}
		kvstore.Nodes(tx).Put("node-a", kvstore.NodeInfo{NodeID: "node-a", Status: kvstore.NodeTrusted})
		return map[string]interface{}{"attempt": attempts}, nil
	}, Write, CanForward)

	ctx := &RPCContext{CallerCert: []byte(testCert)}
	resp := callProcess(t, f, ctx, "BUMP", nil)
	if resp == nil || resp.Error != nil {
		t.Fatalf("expected eventual success, got %+v", resp)
	}
	if attempts < 2 {
		t.Errorf("expected at least one retry after a conflict, got %d attempt(s)", attempts)
	}
}

// S7: a forged signature is rejected with INVALID_CLIENT_SIGNATURE, and
// critically, ClientSignatures is left untouched — this is the regression
// test for the packing bug (auth.go) and the dropped-write bug (executor.go)
// a maintainer review caught: before both fixes, a bad signature's bytes
// would still "verify" against themselves, and even a good one's record
// would never survive to ClientSignatures.
func TestBadClientSignatureRejectedAndSignaturesUnchanged(t *testing.T) {
	store := kvstore.NewStore()

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	const signedCaller = kvstore.CallerId(2)
	tx := store.Begin()
	kvstore.Certs(tx).Put(string(pub), signedCaller)
	if res := tx.Commit(); res != kvstore.CommitOK {
		t.Fatalf("seeding cert failed: %v", res)
	}

	hist := history.NewMerkleHistory(nil)
	f := New(store, func() history.TxHistory { return hist }, rpccore.NodeID("n1"), nil)
	f.InstallMinimal("PING2", func(tx *kvstore.Tx, params interface{}) (interface{}, error) {
		return map[string]interface{}{"ok": true}, nil
	}, Read, DoNotForward)

	inner := map[string]interface{}{
		jsonrpc.FieldJSONRPC: jsonrpc.RPCVersion,
		jsonrpc.FieldID:      1,
		jsonrpc.FieldMethod:  "PING2",
	}
	outer := map[string]interface{}{
		jsonrpc.FieldSig: []byte("not-a-real-signature"),
		jsonrpc.FieldReq: inner,
		jsonrpc.FieldMD:  "sha256",
	}
	raw, err := json.Marshal(outer)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	ctx := &RPCContext{CallerCert: pub}
	out := f.Process(ctx, raw)
	var resp jsonrpc.Response
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != jsonrpc.InvalidClientSignature {
		t.Fatalf("expected INVALID_CLIENT_SIGNATURE, got %+v", resp)
	}

	checkTx := store.Begin()
	if _, ok := kvstore.ClientSignatures(checkTx).Get(signedCaller); ok {
		t.Error("expected ClientSignatures to remain empty after a rejected signature")
	}
}

// S8: Tick, called enough to exhaust the wall-clock signature interval on a
// leader with a non-empty commit gap, drives a signature emission.
func TestTickEmitsSignatureOnLeaderWithCommitGap(t *testing.T) {
	f, store := newTestFrontend(t)
	info := &fakeInfo{id: "n1", leader: true, leaderID: "n1", leaderKnown: true}
	f.SetConsensus(func() consensus.Info { return info })
	f.SetSigMaxMS(time.Millisecond)

	tx := store.Begin()
	kvstore.Nodes(tx).Put("node-a", kvstore.NodeInfo{NodeID: "node-a", Status: kvstore.NodeTrusted})
	if res := tx.Commit(); res != kvstore.CommitOK {
		t.Fatalf("seeding write failed: %v", res)
	}
	if store.CommitGap() == 0 {
		t.Fatal("expected a nonzero commit gap before Tick")
	}

	f.Tick(time.Millisecond)

	if store.CommitGap() != 0 {
		t.Errorf("expected Tick to mark the store signed, CommitGap still %d", store.CommitGap())
	}
}
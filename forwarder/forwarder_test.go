package forwarder

import (
	"testing"
	"time"

	"github.com/lmarchetti/kvrpc/rpccore"
)

func TestForwardRPCDeliversToSink(t *testing.T) {
	net := rpccore.NewChanNetwork(time.Second)
	defer net.Shutdown()

	leaderNode, err := net.NewNode("leader")
	if err != nil {
		t.Fatalf("NewNode(leader): %v", err)
	}

	var gotCallerID int
	var gotPack byte
	var gotRaw []byte
	leaderFwd := NewNodeForwarder(leaderNode, nil, func(callerID int, pack byte, rawReq []byte) ([]byte, error) {
		gotCallerID, gotPack, gotRaw = callerID, pack, rawReq
		return []byte("leader-response"), nil
	})
	leaderNode.RegisterRawRequestCallback(leaderFwd.HandleRaw)

	followerNode, err := net.NewNode("follower")
	if err != nil {
		t.Fatalf("NewNode(follower): %v", err)
	}
	followerFwd := NewNodeForwarder(followerNode, nil, nil)

	if err := followerFwd.ForwardRPC("leader", 7, 0, []byte("raw-request")); err != nil {
		t.Fatalf("ForwardRPC: %v", err)
	}

	if gotCallerID != 7 || gotPack != 0 || string(gotRaw) != "raw-request" {
		t.Errorf("sink got callerID=%v pack=%v raw=%q", gotCallerID, gotPack, gotRaw)
	}
}

func TestForwardRPCPropagatesSinkError(t *testing.T) {
	net := rpccore.NewChanNetwork(time.Second)
	defer net.Shutdown()

	leaderNode, err := net.NewNode("leader")
	if err != nil {
		t.Fatalf("NewNode(leader): %v", err)
	}
	leaderFwd := NewNodeForwarder(leaderNode, nil, func(callerID int, pack byte, rawReq []byte) ([]byte, error) {
		return nil, errTest{}
	})
	leaderNode.RegisterRawRequestCallback(leaderFwd.HandleRaw)

	followerNode, err := net.NewNode("follower")
	if err != nil {
		t.Fatalf("NewNode(follower): %v", err)
	}
	followerFwd := NewNodeForwarder(followerNode, nil, nil)

	if err := followerFwd.ForwardRPC("leader", 1, 0, []byte("raw")); err == nil {
		t.Error("expected ForwardRPC to surface the sink's error")
	}
}

type errTest struct{}

func (errTest) Error() string { return "sink failed" }

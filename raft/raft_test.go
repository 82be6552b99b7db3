package raft

import (
	"testing"
	"time"

	"github.com/lmarchetti/kvrpc/rpccore"
	"github.com/sirupsen/logrus"
)

func newTestCluster(t *testing.T, n int) ([]*Peer, func()) {
	t.Helper()
	net := rpccore.NewChanNetwork(time.Second)
	ids := make([]rpccore.NodeID, n)
	for i := range ids {
		ids[i] = rpccore.NodeID(rune('A' + i))
	}

	logger := logrus.NewEntry(logrus.New())
	peers := make([]*Peer, n)
	for i, id := range ids {
		node, err := net.NewNode(id)
		if err != nil {
			t.Fatalf("NewNode: %v", err)
		}
		others := make([]rpccore.NodeID, 0, n-1)
		for j, oid := range ids {
			if j != i {
				others = append(others, oid)
			}
		}
		peers[i] = NewPeer(node, others, logger)
	}
	for _, p := range peers {
		p.Start()
	}
	return peers, func() {
		for _, p := range peers {
			p.Shutdown()
		}
		net.Shutdown()
	}
}

func TestElectsExactlyOneLeader(t *testing.T) {
	peers, cleanup := newTestCluster(t, 3)
	defer cleanup()

	deadline := time.After(2 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-deadline:
			t.Fatal("no leader elected in time")
		case <-tick.C:
			leaders := 0
			for _, p := range peers {
				if p.IsLeader() {
					leaders++
				}
			}
			if leaders == 1 {
				return
			}
			if leaders > 1 {
				t.Fatalf("expected at most one leader, saw %v", leaders)
			}
		}
	}
}

func TestFollowersAgreeOnLeader(t *testing.T) {
	peers, cleanup := newTestCluster(t, 3)
	defer cleanup()

	var leaderID rpccore.NodeID
	deadline := time.After(2 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
waitLeader:
	for {
		select {
		case <-deadline:
			t.Fatal("no leader elected in time")
		case <-tick.C:
			for _, p := range peers {
				if p.IsLeader() {
					leaderID = p.ID()
					break waitLeader
				}
			}
		}
	}

	time.Sleep(300 * time.Millisecond)
	for _, p := range peers {
		id, ok := p.Leader()
		if !ok || id != leaderID {
			t.Errorf("peer %v disagrees on leader: got %v, ok=%v, want %v", p.ID(), id, ok, leaderID)
		}
	}
}

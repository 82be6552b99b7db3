package consensus

import (
	"testing"

	"github.com/lmarchetti/kvrpc/rpccore"
)

func TestStaticEndpointsResolvesKnownID(t *testing.T) {
	r := NewStaticEndpoints(map[rpccore.NodeID]string{
		"n1": "10.0.0.1:9001",
	})

	host, port, ok := r.Endpoint("n1")
	if !ok {
		t.Fatal("expected n1 to resolve")
	}
	if host != "10.0.0.1" || port != "9001" {
		t.Errorf("got host=%q port=%q", host, port)
	}
}

func TestStaticEndpointsUnknownID(t *testing.T) {
	r := NewStaticEndpoints(map[rpccore.NodeID]string{"n1": "10.0.0.1:9001"})
	if _, _, ok := r.Endpoint("n2"); ok {
		t.Error("expected n2 to fail to resolve")
	}
}

func TestStaticEndpointsMalformedAddr(t *testing.T) {
	r := NewStaticEndpoints(map[rpccore.NodeID]string{"n1": "not-a-host-port"})
	if _, _, ok := r.Endpoint("n1"); ok {
		t.Error("expected malformed address to fail to resolve")
	}
}

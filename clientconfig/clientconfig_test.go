package clientconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lmarchetti/kvrpc/rpccore"
)

func TestLoadClientConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.json")
	content := `{
		"NodeID": "client1",
		"ListenAddr": "127.0.0.1:9101",
		"ServerID": "n1",
		"NodeAddrMap": {"client1": "127.0.0.1:9101", "n1": "127.0.0.1:9001"},
		"CallerCert": "test-cert"
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerID != rpccore.NodeID("n1") {
		t.Errorf("expected ServerID n1, got %v", cfg.ServerID)
	}
	if cfg.CallerCert != "test-cert" {
		t.Errorf("expected CallerCert test-cert, got %v", cfg.CallerCert)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected an error loading a missing file")
	}
}

// Package nodeconfig loads the JSON configuration file a peer process
// starts from, adapted from the teacher's cmdconfig/peer_config.go
// (ioutil.ReadFile + json.Unmarshal, one config struct per process kind).
package nodeconfig

import (
	"encoding/json"
	"io/ioutil"
	"time"

	"github.com/lmarchetti/kvrpc/rpccore"
	"github.com/pkg/errors"
)

// PeerConfig is the on-disk shape of a peer's config file. It carries the
// raft/transport knobs the teacher's peerConfig had, plus the frontend
// knobs spec.md §6 calls out as operator-settable rather than compiled-in
// constants.
type PeerConfig struct {
	Timeout     time.Duration
	NodeAddrMap map[rpccore.NodeID]string
	NodeID      rpccore.NodeID
	ListenAddr  string

	SnapshotFilePath string

	// CertsFile, if set, is a JSON array of {"cert": ..., "caller_id": ...}
	// entries (see CertEntry) loaded into kvstore's Certs table at startup;
	// each cert string is stored as-is and matched byte for byte against
	// the caller cert a client presents. Absent or empty means certs are
	// disabled (every caller is InvalidID).
	CertsFile string

	SigMaxTx               uint64
	SigMaxMS               time.Duration
	RequestStoringDisabled bool
	MaxRetries             int
}

// Load reads and parses a PeerConfig from path.
func Load(path string) (PeerConfig, error) {
	var cfg PeerConfig
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return cfg, errors.WithStack(err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.WithStack(err)
	}
	return cfg, nil
}

// Peers returns every configured node id other than self.
func (c PeerConfig) Peers() []rpccore.NodeID {
	peers := make([]rpccore.NodeID, 0, len(c.NodeAddrMap))
	for id := range c.NodeAddrMap {
		if id != c.NodeID {
			peers = append(peers, id)
		}
	}
	return peers
}

// CertEntry is one row of a CertsFile.
type CertEntry struct {
	Cert     string `json:"cert"`
	CallerID int    `json:"caller_id"`
}

// LoadCerts reads a CertsFile's entries, or returns an empty slice if path
// is empty.
func LoadCerts(path string) ([]CertEntry, error) {
	if path == "" {
		return nil, nil
	}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var entries []CertEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.WithStack(err)
	}
	return entries, nil
}

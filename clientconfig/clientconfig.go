// Package clientconfig loads the JSON configuration file the client CLI
// starts from, the client-side counterpart to nodeconfig.PeerConfig.
package clientconfig

import (
	"encoding/json"
	"io/ioutil"
	"time"

	"github.com/lmarchetti/kvrpc/rpccore"
	"github.com/pkg/errors"
)

// ClientConfig describes which node the client dials and how it
// identifies itself for caller-cert lookup.
type ClientConfig struct {
	Timeout     time.Duration
	NodeAddrMap map[rpccore.NodeID]string
	NodeID      rpccore.NodeID
	ListenAddr  string
	ServerID    rpccore.NodeID

	// CallerCert is sent with every call as ctx.CallerCert, matching
	// spec.md §4.2's valid_caller lookup.
	CallerCert string
}

// Load reads and parses a ClientConfig from path.
func Load(path string) (ClientConfig, error) {
	var cfg ClientConfig
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return cfg, errors.WithStack(err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.WithStack(err)
	}
	return cfg, nil
}

package main

import (
	"time"

	"github.com/lmarchetti/kvrpc/clicmd"
	"github.com/lmarchetti/kvrpc/client"
	"github.com/lmarchetti/kvrpc/clientconfig"
	"github.com/lmarchetti/kvrpc/rpccore"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// StartClientFromFile loads a clientconfig.ClientConfig, dials the
// configured server node, and drops into the interactive REPL.
func StartClientFromFile(configFilepath string) error {
	config, err := clientconfig.Load(configFilepath)
	if err != nil {
		return err
	}

	fl := flock.New(configFilepath)
	if locked, _ := fl.TryLock(); !locked {
		return errors.New("unable to lock the config file, make sure there isn't another instance running")
	}
	defer fl.Unlock()

	clicmd.PrintBanner("client", string(config.NodeID))

	n := rpccore.NewTCPNetwork(config.Timeout * time.Second)
	node, err := n.NewLocalNode(config.NodeID, config.NodeAddrMap[config.NodeID], config.ListenAddr)
	if err != nil {
		return err
	}
	for nodeID, addr := range config.NodeAddrMap {
		if nodeID != config.NodeID {
			if err := n.NewRemoteNode(nodeID, addr); err != nil {
				return err
			}
		}
	}

	c := client.New(node, config.ServerID, []byte(config.CallerCert))
	c.StartReadingCmd()
	return nil
}

package main

import (
	"bytes"
	"encoding/gob"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmarchetti/kvrpc/client"
	"github.com/lmarchetti/kvrpc/clicmd"
	"github.com/lmarchetti/kvrpc/consensus"
	"github.com/lmarchetti/kvrpc/forwarder"
	"github.com/lmarchetti/kvrpc/frontend"
	"github.com/lmarchetti/kvrpc/history"
	"github.com/lmarchetti/kvrpc/kvstore"
	"github.com/lmarchetti/kvrpc/nodeconfig"
	"github.com/lmarchetti/kvrpc/raft"
	"github.com/lmarchetti/kvrpc/rpccore"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const tickInterval = 200 * time.Millisecond

// StartPeerFromFile loads a nodeconfig.PeerConfig and runs a peer until
// SIGINT/SIGTERM, grounded on the teacher's peer.go (TCP network setup,
// config-file flock, signal-driven shutdown) but wiring kvstore/frontend/
// raft/forwarder instead of sm/pstorage's replicated-log state machine.
func StartPeerFromFile(configFilepath string) error {
	config, err := nodeconfig.Load(configFilepath)
	if err != nil {
		return err
	}

	fl := flock.New(configFilepath)
	if locked, _ := fl.TryLock(); !locked {
		return errors.New("unable to lock the config file, make sure there isn't another instance running")
	}
	defer fl.Unlock()

	logger := logrus.New()
	logger.Out = os.Stdout
	loggerEntry := logger.WithFields(logrus.Fields{"nodeID": config.NodeID})

	clicmd.PrintBanner("peer", string(config.NodeID))

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

	store := kvstore.NewStore()
	if config.SnapshotFilePath != "" {
		if loaded, err := store.LoadSnapshot(config.SnapshotFilePath); err != nil {
			loggerEntry.WithError(err).Warn("failed to load snapshot, starting empty")
		} else if loaded {
			loggerEntry.Info("restored store from snapshot")
		}
	}

	certEntries, err := nodeconfig.LoadCerts(config.CertsFile)
	if err != nil {
		return err
	}
	if len(certEntries) > 0 {
		tx := store.Begin()
		certs := kvstore.Certs(tx)
		for _, e := range certEntries {
			certs.Put(e.Cert, kvstore.CallerId(e.CallerID))
		}
		if res := tx.Commit(); res != kvstore.CommitOK {
			return errors.Errorf("failed to seed certs table: %v", res)
		}
	}

	hist := history.NewMerkleHistory(loggerEntry)

	peer := raft.NewPeer(node, config.Peers(), loggerEntry)

	fe := frontend.New(store, func() history.TxHistory { return hist }, config.NodeID, loggerEntry)
	fe.SetConsensus(func() consensus.Info { return peer })
	fe.SetEndpointResolver(consensus.NewStaticEndpoints(config.NodeAddrMap))
	if config.SigMaxTx > 0 {
		fe.SetSigMaxTx(config.SigMaxTx)
	}
	if config.SigMaxMS > 0 {
		fe.SetSigMaxMS(config.SigMaxMS)
	}
	fe.SetRequestStoringDisabled(config.RequestStoringDisabled)
	fe.SetCertsDisabled(config.CertsFile == "")
	fe.SetMaxRetries(config.MaxRetries)

	fwd := forwarder.NewNodeForwarder(node, loggerEntry, func(callerID int, pack byte, rawReq []byte) ([]byte, error) {
		return fe.ProcessForwarded(callerID, pack, rawReq)
	})
	fe.SetForwarder(fwd)

	peer.Fallback = dispatch(fwd, fe, loggerEntry)
	peer.Start()

	stopTick := make(chan struct{})
	go runTicker(fe, stopTick)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	loggerEntry.Info("shutting down peer")
	close(stopTick)
	peer.Shutdown()
	if config.SnapshotFilePath != "" {
		if err := store.SaveSnapshot(config.SnapshotFilePath); err != nil {
			loggerEntry.WithError(err).Warn("failed to save snapshot on shutdown")
		}
	}
	return nil
}

// dispatch multiplexes the rpccore methods raft.Peer doesn't own:
// forwarder.RPCMethodForward (relayed writes) and client.RPCMethodCall
// (direct client calls into Frontend.Process), the same switch-by-method
// style as raft.Peer.dispatch itself.
func dispatch(fwd *forwarder.NodeForwarder, fe *frontend.Frontend, logger *logrus.Entry) rpccore.Callback {
	return func(source rpccore.NodeID, method string, data []byte) ([]byte, error) {
		switch method {
		case forwarder.RPCMethodForward:
			return fwd.HandleRaw(source, method, data)
		case client.RPCMethodCall:
			return handleClientCall(fe, data)
		default:
			return nil, errors.Errorf("peer: unsupported method %q", method)
		}
	}
}

func handleClientCall(fe *frontend.Frontend, data []byte) ([]byte, error) {
	var req client.CallReq
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&req); err != nil {
		return nil, errors.WithStack(err)
	}

	ctx := &frontend.RPCContext{CallerCert: req.CallerCert, SessionID: req.SessionID}
	rawRes := fe.Process(ctx, req.RawReq)

	res := client.CallRes{RawRes: rawRes, Pending: ctx.IsPending}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(res); err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}

func runTicker(fe *frontend.Frontend, stop <-chan struct{}) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			fe.Tick(tickInterval)
		}
	}
}

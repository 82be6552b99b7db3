package frontend

import (
	"sort"
	"sync"
	"time"

	"github.com/lmarchetti/kvrpc/consensus"
	"github.com/lmarchetti/kvrpc/forwarder"
	"github.com/lmarchetti/kvrpc/history"
	"github.com/lmarchetti/kvrpc/kvstore"
	"github.com/lmarchetti/kvrpc/metrics"
	"github.com/lmarchetti/kvrpc/rpccore"
	"github.com/lmarchetti/kvrpc/verifier"
	"github.com/sirupsen/logrus"
)

const (
	defaultSigMaxTx = 1000
	defaultSigMaxMS = time.Second
)

// Frontend is the RPC frontend object co-owned by the transport. One
// Frontend serves one node; handlers, the verifier cache, timers, and
// tx-count are mutated only on the serving goroutine per spec.md §5 — the
// mutex here exists so a host that doesn't honor that assumption fails
// safe rather than racing, not because the design calls for fine-grained
// concurrency.
type Frontend struct {
	mu sync.Mutex

	store       *kvstore.Store
	historyFn   func() history.TxHistory
	consensusFn func() consensus.Info
	endpoints   consensus.EndpointResolver
	fwd         forwarder.AbstractForwarder
	verifiers   *verifier.Cache

	metricsEngine *metrics.Metrics

	handlers       map[string]*Handler
	defaultHandler *Handler

	sigMaxTx               uint64
	sigMaxMS               time.Duration
	msToSig                time.Duration
	requestStoringDisabled bool
	certsDisabled          bool
	maxRetries             int

	txCount uint64

	nodeID rpccore.NodeID
	logger *logrus.Entry
}

// New returns a Frontend over store, auto-installing the built-in
// management methods. historyFn is an accessor (not a stored reference)
// because spec.md §9 requires the history pointer to be refreshed per
// call.
func New(store *kvstore.Store, historyFn func() history.TxHistory, nodeID rpccore.NodeID, logger *logrus.Entry) *Frontend {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	f := &Frontend{
		store:         store,
		historyFn:     historyFn,
		handlers:      make(map[string]*Handler),
		metricsEngine: metrics.New(),
		sigMaxTx:      defaultSigMaxTx,
		sigMaxMS:      defaultSigMaxMS,
		msToSig:       defaultSigMaxMS,
		nodeID:        nodeID,
		logger:        logger,
	}
	f.installBuiltins()
	return f
}

// SetConsensus wires the accessor used to read leader/term/commit-index
// state. Pass nil to clear it (single-node, no consensus configured).
func (f *Frontend) SetConsensus(fn func() consensus.Info) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consensusFn = fn
}

// SetEndpointResolver wires the node-id -> host/port lookup used by
// GET_LEADER_INFO and TX_NOT_LEADER redirects.
func (f *Frontend) SetEndpointResolver(r consensus.EndpointResolver) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endpoints = r
}

// SetForwarder wires the forwarder channel used to hand Write calls to
// the leader. Pass nil to disable forwarding (redirect-only mode).
func (f *Frontend) SetForwarder(fwd forwarder.AbstractForwarder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fwd = fwd
}

// SetVerifierCache wires the per-caller signature verifier cache.
func (f *Frontend) SetVerifierCache(c *verifier.Cache) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifiers = c
}

// SetSigMaxTx overrides the default transaction-count signature interval
// (default 1000).
func (f *Frontend) SetSigMaxTx(n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sigMaxTx = n
}

// SetSigMaxMS overrides the default wall-clock signature interval
// (default 1000ms).
func (f *Frontend) SetSigMaxMS(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sigMaxMS = d
	f.msToSig = d
}

// SetRequestStoringDisabled toggles whether ClientSignatures entries keep
// their req bytes (leader-only policy per spec.md §3).
func (f *Frontend) SetRequestStoringDisabled(disabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requestStoringDisabled = disabled
}

// SetCertsDisabled models "no certificates map configured": every caller
// resolves to kvstore.InvalidID and process rejects with
// INVALID_CALLER_ID.
func (f *Frontend) SetCertsDisabled(disabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.certsDisabled = disabled
}

// SetMaxRetries caps how many times the executor retries a CONFLICT
// commit before giving up with TX_FAILED_TO_REPLICATE. 0 (the default)
// matches the original's unbounded retry; spec.md §9 recommends
// implementers expose a cap, so this is that knob.
func (f *Frontend) SetMaxRetries(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.maxRetries = n
}

func (f *Frontend) getMaxRetries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxRetries
}

// Metrics exposes the tx-rate engine for GET_METRICS.
func (f *Frontend) Metrics() *metrics.Metrics { return f.metricsEngine }

// Install inserts or replaces a handler entry.
func (f *Frontend) Install(method string, fn HandlerFunc, rw RWClass, forwardable Forwardable) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = &Handler{Func: fn, RW: rw, Forwardable: forwardable}
}

// InstallMinimal adapts a (tx, params) handler, ignoring ctx/caller/signed.
func (f *Frontend) InstallMinimal(method string, fn MinimalHandlerFunc, rw RWClass, forwardable Forwardable) {
	f.Install(method, func(args *RequestArgs) (interface{}, error) {
		return fn(args.Tx, args.Params)
	}, rw, forwardable)
}

// SetDefault installs the fallback handler used when method lookup
// misses. The default handler has no schemas.
func (f *Frontend) SetDefault(fn HandlerFunc, rw RWClass) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defaultHandler = &Handler{Func: fn, RW: rw}
}

func (f *Frontend) lookupHandler(method string) (*Handler, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h, ok := f.handlers[method]; ok {
		return h, true
	}
	if f.defaultHandler != nil {
		return f.defaultHandler, true
	}
	return nil, false
}

// methodNames returns every installed method name (not the default),
// sorted, for LIST_METHODS.
func (f *Frontend) methodNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.handlers))
	for name := range f.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *Frontend) schemaFor(method string) (*Handler, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.handlers[method]
	return h, ok
}

func (f *Frontend) consensusInfo() consensus.Info {
	f.mu.Lock()
	fn := f.consensusFn
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn()
}

func (f *Frontend) history() history.TxHistory {
	f.mu.Lock()
	fn := f.historyFn
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn()
}

func (f *Frontend) incTxCount() {
	f.mu.Lock()
	f.txCount++
	f.mu.Unlock()
}

// Tick is called periodically by the host (spec.md §4.8). It folds
// tx_count into the metrics engine, and — on the leader — drives the
// wall-clock half of the signature-interval policy.
func (f *Frontend) Tick(elapsed time.Duration) {
	f.mu.Lock()
	count := f.txCount
	f.txCount = 0
	f.mu.Unlock()

	f.metricsEngine.TrackTxRate(elapsed, count)

	info := f.consensusInfo()
	if info == nil || !info.IsLeader() {
		return
	}

	f.mu.Lock()
	f.msToSig -= elapsed
	due := f.msToSig <= 0
	if due {
		f.msToSig = f.sigMaxMS
	}
	f.mu.Unlock()

	if !due {
		return
	}
	if f.store.CommitGap() == 0 {
		return
	}
	if h := f.history(); h != nil {
		h.EmitSignature()
		f.store.MarkSigned()
	}
}

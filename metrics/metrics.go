// Package metrics tracks transaction throughput for GET_METRICS, in the
// style of munonun-Web4's internal/metrics (mutex-guarded counters folded
// into a bounded recent-samples ring, exposed via a Snapshot).
package metrics

import (
	"sync"
	"time"
)

// Sample is one tick's worth of transaction-rate data.
type Sample struct {
	ElapsedMS int64   `json:"elapsed_ms"`
	TxCount   uint64  `json:"tx_count"`
	RateHz    float64 `json:"rate_hz"`
}

// Snapshot is the GET_METRICS result payload.
type Snapshot struct {
	TotalTx     uint64   `json:"total_tx"`
	LastRateHz  float64  `json:"last_rate_hz"`
	MeanRateHz  float64  `json:"mean_rate_hz"`
	Recent      []Sample `json:"recent"`
}

const defaultRecentSize = 16

// Metrics accumulates tx-rate samples from repeated Tick calls.
type Metrics struct {
	mu      sync.Mutex
	recent  []Sample
	maxSize int
	totalTx uint64
}

// New returns an empty Metrics tracker.
func New() *Metrics {
	return &Metrics{maxSize: defaultRecentSize}
}

// TrackTxRate folds in one tick's (elapsed, txCount) pair, the Go name for
// metrics::Metrics::track_tx_rates.
func (m *Metrics) TrackTxRate(elapsed time.Duration, txCount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rate float64
	if elapsed > 0 {
		rate = float64(txCount) / elapsed.Seconds()
	}

	m.totalTx += txCount
	m.recent = append(m.recent, Sample{
		ElapsedMS: elapsed.Milliseconds(),
		TxCount:   txCount,
		RateHz:    rate,
	})
	if len(m.recent) > m.maxSize {
		m.recent = m.recent[len(m.recent)-m.maxSize:]
	}
}

// Snapshot returns the current metrics for GET_METRICS.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	recent := make([]Sample, len(m.recent))
	copy(recent, m.recent)

	var last, sum float64
	if len(recent) > 0 {
		last = recent[len(recent)-1].RateHz
		for _, s := range recent {
			sum += s.RateHz
		}
		sum /= float64(len(recent))
	}

	return Snapshot{
		TotalTx:    m.totalTx,
		LastRateHz: last,
		MeanRateHz: sum,
		Recent:     recent,
	}
}

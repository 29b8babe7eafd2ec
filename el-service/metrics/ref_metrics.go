package metrics

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

type RefMetricer interface {
	RecordRef(name string, num uint64, timestamp uint64, h common.Hash)
}

// RefMetrics provides block reference metrics, e.g. the trusted tip or the latest feed anchor.
// It's a metrics module that's supposed to be embedded into a service metrics type.
type RefMetrics struct {
	RefsNumber  *prometheus.GaugeVec
	RefsTime    *prometheus.GaugeVec
	RefsHash    *prometheus.GaugeVec
	RefsLatency *prometheus.GaugeVec
	// hash of the last seen block per name, so the latency is only metered on the first occurrence
	latencySeen map[string]common.Hash
	mu          *sync.Mutex // by pointer reference, since RefMetrics is copied
}

var _ RefMetricer = (*RefMetrics)(nil)

// MakeRefMetrics returns a new RefMetrics, initializing its prometheus fields using factory.
// ns is the fully qualified namespace, e.g. "el_proxy_default".
func MakeRefMetrics(ns string, factory Factory) RefMetrics {
	labels := []string{"type"}
	return RefMetrics{
		RefsNumber: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "refs_number",
			Help:      "Gauge representing the different block reference numbers",
		}, labels),
		RefsTime: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "refs_time",
			Help:      "Gauge representing the different block reference timestamps",
		}, labels),
		RefsHash: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "refs_hash",
			Help:      "Gauge representing the different block reference hashes truncated to float values",
		}, labels),
		RefsLatency: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "refs_latency",
			Help:      "Gauge representing the different block reference timestamps minus current time, in seconds",
		}, labels),
		latencySeen: make(map[string]common.Hash),
		mu:          new(sync.Mutex),
	}
}

func (m *RefMetrics) RecordRef(name string, num uint64, timestamp uint64, h common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RefsNumber.WithLabelValues(name).Set(float64(num))
	if timestamp != 0 {
		m.RefsTime.WithLabelValues(name).Set(float64(timestamp))
		if m.latencySeen[name] != h {
			m.latencySeen[name] = h
			m.RefsLatency.WithLabelValues(name).Set(float64(timestamp) - (float64(time.Now().UnixNano()) / 1e9))
		}
	}
	// the first 8 bytes of the hash as a float, so changes of the hash can be graphed to spot divergences.
	m.RefsHash.WithLabelValues(name).Set(float64(binary.LittleEndian.Uint64(h[:])))
}

// NoopRefMetrics can be embedded in a noop version of a metric implementation
// to have a noop RefMetricer.
type NoopRefMetrics struct{}

func (*NoopRefMetrics) RecordRef(string, uint64, uint64, common.Hash) {}

package metrics

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	opmetrics "github.com/elciao/elciao/el-service/metrics"
)

const Namespace = "el_proxy"

type Metrics struct {
	ns       string
	registry *prometheus.Registry
	factory  opmetrics.Factory

	opmetrics.RPCClientMetrics
	opmetrics.HTTPMetrics
	opmetrics.RefMetrics
	*opmetrics.CacheMetrics

	reorgs       *prometheus.CounterVec
	pendingWaits prometheus.Gauge

	queries       *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
	integrity     *prometheus.CounterVec

	feedEvents *prometheus.CounterVec
	feedHead   *prometheus.GaugeVec
	notary     *prometheus.CounterVec

	info prometheus.GaugeVec
	up   prometheus.Gauge
}

var _ Metricer = (*Metrics)(nil)

func NewMetrics(procName string) *Metrics {
	return newMetrics(procName, opmetrics.NewRegistry())
}

func newMetrics(procName string, registry *prometheus.Registry) *Metrics {
	if procName == "" {
		procName = "default"
	}
	ns := Namespace + "_" + procName

	factory := opmetrics.With(registry)
	return &Metrics{
		ns:       ns,
		registry: registry,
		factory:  factory,

		info: *factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "info",
			Help:      "Pseudo-metric tracking version and config info",
		}, []string{
			"version",
		}),
		up: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "up",
			Help:      "1 if el-proxy has finished starting up",
		}),

		RPCClientMetrics: opmetrics.MakeRPCClientMetrics(ns, factory),
		HTTPMetrics:      opmetrics.MakeHTTPMetrics(ns, factory),
		RefMetrics:       opmetrics.MakeRefMetrics(ns, factory),
		CacheMetrics:     opmetrics.NewCacheMetrics(factory, ns, "trust_cache", "Trust store"),

		reorgs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "reorgs_total",
			Help:      "Count of trusted block hashes that were overwritten",
		}, []string{"kind"}),
		pendingWaits: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "pending_waits",
			Help:      "Number of block numbers that queries are waiting to become trusted",
		}),

		queries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "queries_total",
			Help:      "Count of served queries",
		}, []string{"method", "result"}),
		queryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "query_duration_seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			Help:      "Duration of served queries, waiting for future blocks included",
		}, []string{"method"}),
		integrity: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "integrity_failures_total",
			Help:      "Count of upstream data that failed verification",
		}, []string{"what"}),

		feedEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "feed_events_total",
			Help:      "Count of trusted blocks delivered by the trust feed",
		}, []string{"feed"}),
		feedHead: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "feed_head",
			Help:      "Latest block number delivered by the trust feed",
		}, []string{"feed"}),
		notary: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "notary_deliveries_total",
			Help:      "Count of block summaries delivered to the notary sink",
		}, []string{"sink", "result"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Document() []opmetrics.DocumentedMetric {
	return m.factory.Document()
}

// RecordInfo sets a pseudo-metric that contains versioning and config info.
func (m *Metrics) RecordInfo(version string) {
	m.info.WithLabelValues(version).Set(1)
}

// RecordUp sets the up metric to 1.
func (m *Metrics) RecordUp() {
	m.up.Set(1)
}

func (m *Metrics) RecordTrustedTip(number uint64, hash common.Hash) {
	m.RecordRef("trusted_tip", number, 0, hash)
}

func (m *Metrics) RecordReorg(kind string) {
	m.reorgs.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordPendingWaits(n int) {
	m.pendingWaits.Set(float64(n))
}

func (m *Metrics) RecordQuery(method string) (onDone func(err error)) {
	timer := prometheus.NewTimer(m.queryDuration.WithLabelValues(method))
	return func(err error) {
		timer.ObserveDuration()
		result := "success"
		if err != nil {
			result = "failed"
		}
		m.queries.WithLabelValues(method, result).Inc()
	}
}

func (m *Metrics) RecordIntegrityFailure(what string) {
	m.integrity.WithLabelValues(what).Inc()
}

func (m *Metrics) RecordFeedEvent(feed string, number uint64) {
	m.feedEvents.WithLabelValues(feed).Inc()
	m.feedHead.WithLabelValues(feed).Set(float64(number))
}

func (m *Metrics) RecordNotaryDelivery(sink string, err error) {
	result := "success"
	if err != nil {
		result = "failed"
	}
	m.notary.WithLabelValues(sink, result).Inc()
}

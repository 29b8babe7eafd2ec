package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Factory creates metrics, registers them, and remembers them for documentation.
type Factory interface {
	NewCounter(opts prometheus.CounterOpts) prometheus.Counter
	NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec
	NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge
	NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec
	NewHistogram(opts prometheus.HistogramOpts) prometheus.Histogram
	NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec
	Document() []DocumentedMetric
}

type DocumentedMetric struct {
	Type   string   `json:"type"`
	Name   string   `json:"name"`
	Help   string   `json:"help"`
	Labels []string `json:"labels"`
}

// RegistryMetricer is implemented by metrics that can be served by a metrics server.
type RegistryMetricer interface {
	Registry() *prometheus.Registry
}

type documentor struct {
	metrics []DocumentedMetric
	reg     prometheus.Registerer
}

// With creates a Factory that registers every metric it creates with the given registry.
func With(registry prometheus.Registerer) Factory {
	return &documentor{reg: registry}
}

// NewRegistry creates a registry with the default process and Go runtime collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewGoCollector())
	return registry
}

func fullName(ns, subsystem, name string) string {
	return prometheus.BuildFQName(ns, subsystem, name)
}

func (d *documentor) add(typ string, ns, subsystem, name, help string, labels []string) {
	d.metrics = append(d.metrics, DocumentedMetric{
		Type:   typ,
		Name:   fullName(ns, subsystem, name),
		Help:   help,
		Labels: labels,
	})
}

func (d *documentor) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	d.add("counter", opts.Namespace, opts.Subsystem, opts.Name, opts.Help, nil)
	c := prometheus.NewCounter(opts)
	d.reg.MustRegister(c)
	return c
}

func (d *documentor) NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	d.add("counter", opts.Namespace, opts.Subsystem, opts.Name, opts.Help, labelNames)
	c := prometheus.NewCounterVec(opts, labelNames)
	d.reg.MustRegister(c)
	return c
}

func (d *documentor) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	d.add("gauge", opts.Namespace, opts.Subsystem, opts.Name, opts.Help, nil)
	g := prometheus.NewGauge(opts)
	d.reg.MustRegister(g)
	return g
}

func (d *documentor) NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
	d.add("gauge", opts.Namespace, opts.Subsystem, opts.Name, opts.Help, labelNames)
	g := prometheus.NewGaugeVec(opts, labelNames)
	d.reg.MustRegister(g)
	return g
}

func (d *documentor) NewHistogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	d.add("histogram", opts.Namespace, opts.Subsystem, opts.Name, opts.Help, nil)
	h := prometheus.NewHistogram(opts)
	d.reg.MustRegister(h)
	return h
}

func (d *documentor) NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	d.add("histogram", opts.Namespace, opts.Subsystem, opts.Name, opts.Help, labelNames)
	h := prometheus.NewHistogramVec(opts, labelNames)
	d.reg.MustRegister(h)
	return h
}

func (d *documentor) Document() []DocumentedMetric {
	return d.metrics
}

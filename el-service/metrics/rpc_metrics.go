package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
)

const RPCClientSubsystem = "rpc_client"

// RPCClientMetricer records the calls made to the upstream JSON-RPC endpoint.
type RPCClientMetricer interface {
	RecordRPCClientRequest(method string) func(err error)
	RecordRPCClientBatchRequest(b []rpc.BatchElem) func(err error)
	RecordRPCClientRetry(method string)
}

// RPCClientMetrics tracks the requests sent upstream.
// This struct is intended to be embedded into the larger metrics struct of a service.
type RPCClientMetrics struct {
	RPCClientRequestsTotal          *prometheus.CounterVec
	RPCClientRequestDurationSeconds *prometheus.HistogramVec
	RPCClientResponsesTotal         *prometheus.CounterVec
	RPCClientRetriesTotal           *prometheus.CounterVec
}

var _ RPCClientMetricer = (*RPCClientMetrics)(nil)

// MakeRPCClientMetrics creates a new RPCClientMetrics with the given namespace.
func MakeRPCClientMetrics(ns string, factory Factory) RPCClientMetrics {
	return RPCClientMetrics{
		RPCClientRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: RPCClientSubsystem,
			Name:      "requests_total",
			Help:      "Total RPC requests initiated by the RPC client",
		}, []string{
			"method",
		}),
		RPCClientRequestDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: RPCClientSubsystem,
			Name:      "request_duration_seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			Help:      "Histogram of RPC client request durations",
		}, []string{
			"method",
		}),
		RPCClientResponsesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: RPCClientSubsystem,
			Name:      "responses_total",
			Help:      "Total RPC request responses received by the RPC client",
		}, []string{
			"method",
			"error",
		}),
		RPCClientRetriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: RPCClientSubsystem,
			Name:      "retries_total",
			Help:      "Total RPC requests retried by the RPC client",
		}, []string{
			"method",
		}),
	}
}

// RecordRPCClientRequest is a helper method to record an RPC client
// request. It bumps the requests metric, and tracks how long it takes
// to get a response, including time spent retrying.
// It returns a callback to record the end of the request.
func (m *RPCClientMetrics) RecordRPCClientRequest(method string) func(err error) {
	m.RPCClientRequestsTotal.WithLabelValues(method).Inc()
	timer := prometheus.NewTimer(m.RPCClientRequestDurationSeconds.WithLabelValues(method))
	return func(err error) {
		m.recordRPCClientResponse(method, err)
		timer.ObserveDuration()
	}
}

// RecordRPCClientBatchRequest records a batch of requests. Each element is
// recorded under its own method, with a shared duration.
func (m *RPCClientMetrics) RecordRPCClientBatchRequest(b []rpc.BatchElem) func(err error) {
	start := time.Now()
	for _, el := range b {
		m.RPCClientRequestsTotal.WithLabelValues(el.Method).Inc()
	}
	return func(err error) {
		elapsed := time.Since(start).Seconds()
		for _, el := range b {
			elErr := el.Error
			if err != nil {
				elErr = err
			}
			m.recordRPCClientResponse(el.Method, elErr)
			m.RPCClientRequestDurationSeconds.WithLabelValues(el.Method).Observe(elapsed)
		}
	}
}

func (m *RPCClientMetrics) RecordRPCClientRetry(method string) {
	m.RPCClientRetriesTotal.WithLabelValues(method).Inc()
}

// recordRPCClientResponse records an RPC response. It sets the error label to
// "nil" if the error is nil, "rpc_<code>" for JSON-RPC errors, or "<unknown>" otherwise.
func (m *RPCClientMetrics) recordRPCClientResponse(method string, err error) {
	var errStr string
	var rpcErr rpc.Error
	var httpErr rpc.HTTPError
	if err == nil {
		errStr = "<nil>"
	} else if errors.As(err, &rpcErr) {
		errStr = fmt.Sprintf("rpc_%d", rpcErr.ErrorCode())
	} else if errors.As(err, &httpErr) {
		errStr = fmt.Sprintf("http_%d", httpErr.StatusCode)
	} else {
		errStr = "<unknown>"
	}
	m.RPCClientResponsesTotal.WithLabelValues(method, errStr).Inc()
}

type NoopRPCClientMetrics struct{}

func (NoopRPCClientMetrics) RecordRPCClientRequest(string) func(err error) {
	return func(err error) {}
}

func (NoopRPCClientMetrics) RecordRPCClientBatchRequest([]rpc.BatchElem) func(err error) {
	return func(err error) {}
}

func (NoopRPCClientMetrics) RecordRPCClientRetry(string) {}

var _ RPCClientMetricer = NoopRPCClientMetrics{}

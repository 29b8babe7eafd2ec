package rpc

import (
	"net/http"

	"github.com/ethereum/go-ethereum/log"

	elmetrics "github.com/elciao/elciao/el-service/metrics"
)

type Option func(b *Handler)

type Middleware func(next http.Handler) http.Handler

func WithHealthzHandler(hdlr http.Handler) Option {
	return func(b *Handler) {
		b.healthzHandler = hdlr
	}
}

func WithCORSHosts(hosts []string) Option {
	return func(b *Handler) {
		b.corsHosts = hosts
	}
}

func WithVHosts(hosts []string) Option {
	return func(b *Handler) {
		b.vHosts = hosts
	}
}

// WithWebsocketEnabled allows `ws://host:port/`, `ws://host:port/ws` and `ws://host:port/ws/`
// to be upgraded to a websocket JSON RPC connection.
func WithWebsocketEnabled() Option {
	return func(b *Handler) {
		b.wsEnabled = true
	}
}

// WithHTTPBodyLimit caps the size of a single HTTP request body, in bytes.
func WithHTTPBodyLimit(limit int) Option {
	return func(b *Handler) {
		b.bodyLimit = limit
	}
}

// WithBatchLimits caps the number of calls in one incoming batch, and the total response size of a batch.
func WithBatchLimits(itemLimit, maxResponseSize int) Option {
	return func(b *Handler) {
		b.batchItemLimit = itemLimit
		b.batchRespLimit = maxResponseSize
	}
}

func WithHTTPRecorder(recorder elmetrics.HTTPRecorder) Option {
	return func(b *Handler) {
		b.httpRecorder = recorder
	}
}

func WithLogger(lgr log.Logger) Option {
	return func(b *Handler) {
		b.log = lgr
	}
}

// WithMiddleware adds an http.Handler to the rpc server handler stack
// The added middleware is invoked directly before the RPC callback
func WithMiddleware(middleware func(http.Handler) (hdlr http.Handler)) Option {
	return func(b *Handler) {
		b.middlewares = append(b.middlewares, middleware)
	}
}

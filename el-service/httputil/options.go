package httputil

import (
	"net/http"
	"time"
)

type config struct {
	// listenAddr is the configured address to listen to when started.
	// use listener.Addr to retrieve the address when online.
	listenAddr string

	handler http.Handler

	timeouts Timeouts

	httpOpts []HTTPOption
}

func (c *config) ApplyOptions(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Option is a general config option.
type Option func(cfg *config)

// HTTPOption applies a change to an HTTP server, just before standup.
// HTTPOption options are re-executed on server shutdown/startup cycles,
// for each new underlying Go *http.Server instance.
type HTTPOption func(config *http.Server) error

func WithHTTPOptions(options ...HTTPOption) Option {
	return func(cfg *config) {
		cfg.httpOpts = append(cfg.httpOpts, options...)
	}
}

func WithTimeouts(timeouts Timeouts) Option {
	return func(cfg *config) {
		cfg.timeouts = timeouts
	}
}

func WithMaxHeaderBytes(max int) HTTPOption {
	return func(srv *http.Server) error {
		srv.MaxHeaderBytes = max
		return nil
	}
}

// Timeouts of the http.Server. Calls that execute contract code may take a while,
// so the write timeout is generous.
type Timeouts struct {
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

var DefaultTimeouts = Timeouts{
	ReadTimeout:       30 * time.Second,
	ReadHeaderTimeout: 30 * time.Second,
	WriteTimeout:      60 * time.Second,
	IdleTimeout:       120 * time.Second,
}

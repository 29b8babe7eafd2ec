package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/elciao/elciao/el-service/metrics"
)

var (
	// ErrUnsupportedMethod is returned, without any network attempt, for methods the upstream is known not to serve.
	ErrUnsupportedMethod = errors.New("method not supported by upstream")
	// ErrRetriesExhausted is returned when a call kept failing for the whole retry budget.
	ErrRetriesExhausted = errors.New("upstream unavailable: retry budget exhausted")
)

const (
	DefaultRetryBudget = 5
	DefaultBatchSize   = 10
	DefaultConcurrency = 4
)

type ResilientConfig struct {
	// RetryBudget is the number of attempts per call, including the first one.
	RetryBudget int `toml:"retry-budget" yaml:"retry-budget" cli:"upstream.retry-budget"`
	// RetryInterval is the fixed pause between attempts.
	RetryInterval time.Duration `toml:"retry-interval" yaml:"retry-interval" cli:"upstream.retry-interval"`
	// BatchSize is the maximum number of calls per batched request.
	BatchSize int `toml:"batch-size" yaml:"batch-size" cli:"upstream.batch-size"`
	// BatchingSupported is false for upstreams that reject JSON-RPC batches.
	BatchingSupported bool `toml:"batching" yaml:"batching" cli:"upstream.batching"`
	// MaxConcurrentBatches bounds the chunks of one RequestBatch that are in flight at once.
	MaxConcurrentBatches int `toml:"max-concurrent-batches" yaml:"max-concurrent-batches" cli:"upstream.max-concurrent-batches"`
	// RateLimit is the maximum number of upstream round trips per second. Zero disables limiting.
	RateLimit float64 `toml:"rate-limit" yaml:"rate-limit" cli:"upstream.rate-limit"`
	RateBurst int     `toml:"rate-burst" yaml:"rate-burst" cli:"upstream.rate-burst"`
	// UnsupportedMethods are rejected immediately.
	UnsupportedMethods []string `toml:"unsupported-methods" yaml:"unsupported-methods" cli:"upstream.unsupported-methods"`
}

func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		RetryBudget:          DefaultRetryBudget,
		BatchSize:            DefaultBatchSize,
		BatchingSupported:    true,
		MaxConcurrentBatches: DefaultConcurrency,
	}
}

func (c *ResilientConfig) Check() error {
	if c.RetryBudget < 1 {
		return errors.New("retry budget must be at least 1")
	}
	if c.BatchSize < 1 {
		return errors.New("batch size must be at least 1")
	}
	if c.RetryInterval < 0 {
		return errors.New("retry interval must not be negative")
	}
	if c.RateLimit < 0 {
		return errors.New("rate limit must not be negative")
	}
	return nil
}

// ResilientClient sends single and batched JSON-RPC requests to one untrusted upstream.
// Failed calls are retried with a fixed budget and interval. In a batch only the failed
// elements are retried.
type ResilientClient struct {
	rpc     RPC
	log     log.Logger
	m       metrics.RPCClientMetricer
	cfg     ResilientConfig
	limiter *rate.Limiter
}

func NewResilientClient(rpc RPC, lgr log.Logger, m metrics.RPCClientMetricer, cfg ResilientConfig) *ResilientClient {
	if m == nil {
		m = metrics.NoopRPCClientMetrics{}
	}
	if cfg.MaxConcurrentBatches < 1 {
		cfg.MaxConcurrentBatches = 1
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &ResilientClient{rpc: rpc, log: lgr, m: m, cfg: cfg, limiter: limiter}
}

func (c *ResilientClient) Close() {
	c.rpc.Close()
}

func (c *ResilientClient) unsupported(method string) bool {
	return slices.Contains(c.cfg.UnsupportedMethods, method)
}

func (c *ResilientClient) retryPolicy(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.RetryInterval), uint64(c.cfg.RetryBudget-1)), ctx)
}

// Request performs one call, retrying on transport and JSON-RPC errors.
func (c *ResilientClient) Request(ctx context.Context, result any, method string, args ...any) error {
	if c.unsupported(method) {
		return fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
	done := c.m.RecordRPCClientRequest(method)
	attempt := 0
	var lastErr error
	err := backoff.Retry(func() error {
		if attempt > 0 {
			c.m.RecordRPCClientRetry(method)
		}
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := c.rpc.CallContext(ctx, result, method, args...)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if err != nil {
			c.log.Debug("upstream request failed", "method", method, "attempt", attempt, "err", err)
			lastErr = err
		}
		return err
	}, c.retryPolicy(ctx))
	done(err)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if lastErr == nil {
			return err
		}
		c.log.Warn("upstream request exhausted its retry budget", "attempts", attempt,
			"request", renderCall(method, args), "err", lastErr)
		return fmt.Errorf("%w: %s: %w", ErrRetriesExhausted, method, lastErr)
	}
	return nil
}

// RequestBatch performs all calls of the batch, and fails if any of them keeps failing.
// When batching is supported the calls are sent in chunks of BatchSize, otherwise one by one.
// Results are decoded into the Result of each element.
func (c *ResilientClient) RequestBatch(ctx context.Context, batch []rpc.BatchElem) error {
	if len(batch) == 0 {
		return nil
	}
	for i := range batch {
		if c.unsupported(batch[i].Method) {
			return fmt.Errorf("%w: %s", ErrUnsupportedMethod, batch[i].Method)
		}
	}
	if !c.cfg.BatchingSupported {
		for i := range batch {
			batch[i].Error = c.Request(ctx, batch[i].Result, batch[i].Method, batch[i].Args...)
			if batch[i].Error != nil {
				return batch[i].Error
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxConcurrentBatches)
	for start := 0; start < len(batch); start += c.cfg.BatchSize {
		chunk := batch[start:min(start+c.cfg.BatchSize, len(batch))]
		g.Go(func() error {
			return c.requestChunk(gctx, chunk)
		})
	}
	return g.Wait()
}

func (c *ResilientClient) requestChunk(ctx context.Context, chunk []rpc.BatchElem) error {
	pending := make([]int, len(chunk))
	for i := range pending {
		pending[i] = i
	}
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		elems := make([]rpc.BatchElem, len(pending))
		for i, idx := range pending {
			elems[i] = rpc.BatchElem{Method: chunk[idx].Method, Args: chunk[idx].Args, Result: chunk[idx].Result}
			if attempt > 1 {
				c.m.RecordRPCClientRetry(chunk[idx].Method)
			}
		}
		done := c.m.RecordRPCClientBatchRequest(elems)
		err := c.rpc.BatchCallContext(ctx, elems)
		done(err)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.log.Debug("upstream batch failed", "size", len(elems), "attempt", attempt, "err", err)
			for _, idx := range pending {
				chunk[idx].Error = err
			}
			return err
		}
		var failed []int
		for i, idx := range pending {
			chunk[idx].Error = elems[i].Error
			if elems[i].Error != nil {
				failed = append(failed, idx)
			}
		}
		pending = failed
		if len(pending) > 0 {
			c.log.Debug("upstream batch elements failed", "failed", len(pending), "attempt", attempt)
			return fmt.Errorf("%d batch elements failed", len(pending))
		}
		return nil
	}, c.retryPolicy(ctx))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	first := chunk[pending[0]]
	if first.Error == nil {
		return err
	}
	c.log.Warn("upstream batch exhausted its retry budget", "attempts", attempt, "failed", len(pending),
		"request", renderCall(first.Method, first.Args), "err", first.Error)
	return fmt.Errorf("%w: %s: %w", ErrRetriesExhausted, first.Method, first.Error)
}

// renderCall renders a call for logging, in JSON-RPC request shape.
func renderCall(method string, args []any) string {
	params, err := json.Marshal(args)
	if err != nil {
		params = []byte(fmt.Sprintf("%q", fmt.Sprint(args...)))
	}
	return fmt.Sprintf(`{"method":%q,"params":%s}`, method, params)
}

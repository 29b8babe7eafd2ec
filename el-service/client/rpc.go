package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/rpc"
)

// RPC is the minimal JSON-RPC transport that the resilient client builds on.
// It is satisfied by *BaseRPCClient, and by fakes in tests.
type RPC interface {
	Close()
	CallContext(ctx context.Context, result any, method string, args ...any) error
	BatchCallContext(ctx context.Context, b []rpc.BatchElem) error
	Subscribe(ctx context.Context, namespace string, channel any, args ...any) (ethereum.Subscription, error)
}

type BaseRPCClientOption func(c *BaseRPCClient)

// WithCallTimeout bounds each single call, unless the caller context has an earlier deadline.
func WithCallTimeout(d time.Duration) BaseRPCClientOption {
	return func(c *BaseRPCClient) {
		c.callTimeout = d
	}
}

// WithBatchCallTimeout bounds each batch call, unless the caller context has an earlier deadline.
func WithBatchCallTimeout(d time.Duration) BaseRPCClientOption {
	return func(c *BaseRPCClient) {
		c.batchCallTimeout = d
	}
}

// BaseRPCClient is a wrapper around a concrete *rpc.Client instance to make it compliant
// with the client.RPC interface.
// It sets a default timeout of 10s on CallContext & 20s on BatchCallContext made through it.
type BaseRPCClient struct {
	c                *rpc.Client
	batchCallTimeout time.Duration
	callTimeout      time.Duration
}

func NewBaseRPCClient(c *rpc.Client, opts ...BaseRPCClientOption) *BaseRPCClient {
	cl := &BaseRPCClient{c: c, callTimeout: 10 * time.Second, batchCallTimeout: 20 * time.Second}
	for _, opt := range opts {
		opt(cl)
	}
	return cl
}

func (b *BaseRPCClient) Close() {
	b.c.Close()
}

func (b *BaseRPCClient) CallContext(ctx context.Context, result any, method string, args ...any) error {
	cCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()
	err := b.c.CallContext(cCtx, result, method, args...)
	return wrapRPCError(err)
}

func (b *BaseRPCClient) BatchCallContext(ctx context.Context, batch []rpc.BatchElem) error {
	cCtx, cancel := context.WithTimeout(ctx, b.batchCallTimeout)
	defer cancel()
	err := b.c.BatchCallContext(cCtx, batch)
	for i := range batch {
		batch[i].Error = wrapRPCError(batch[i].Error)
	}
	return wrapRPCError(err)
}

func (b *BaseRPCClient) Subscribe(ctx context.Context, namespace string, channel any, args ...any) (ethereum.Subscription, error) {
	return b.c.Subscribe(ctx, namespace, channel, args...)
}

// rpcDataError keeps the JSON-RPC error code and data inspectable,
// while including the data in the error message.
type rpcDataError struct {
	rpc.DataError
	code int
}

func (e *rpcDataError) Error() string {
	return fmt.Sprintf("%s: %v", e.DataError.Error(), e.ErrorData())
}

func (e *rpcDataError) ErrorCode() int {
	return e.code
}

func (e *rpcDataError) Unwrap() error {
	return e.DataError
}

func wrapRPCError(err error) error {
	if err == nil {
		return nil
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
		code := 0
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			code = rpcErr.ErrorCode()
		}
		return &rpcDataError{DataError: dataErr, code: code}
	}
	return err
}

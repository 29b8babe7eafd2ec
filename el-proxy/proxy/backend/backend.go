// Package backend answers execution API queries with data that is verified against trusted block headers.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/elciao/elciao/el-proxy/proxy/backend/execution"
	"github.com/elciao/elciao/el-proxy/proxy/backend/trust"
	ptypes "github.com/elciao/elciao/el-proxy/proxy/backend/types"
	"github.com/elciao/elciao/el-service/caching"
	"github.com/elciao/elciao/el-service/eth"
)

const blockCacheSize = 64

// Upstream is the untrusted execution layer endpoint.
type Upstream interface {
	Request(ctx context.Context, result any, method string, args ...any) error
	RequestBatch(ctx context.Context, batch []rpc.BatchElem) error
}

type Metrics interface {
	caching.Metrics
	RecordQuery(method string) (onDone func(err error))
	RecordIntegrityFailure(what string)
}

type Config struct {
	ChainID uint64
	// StrictReceipts verifies all receipts of the block against the receipts root,
	// so that gas usage, logs and status can be served as verified.
	StrictReceipts bool
}

type Backend struct {
	log    log.Logger
	m      Metrics
	cfg    Config
	chain  *params.ChainConfig
	trust  *trust.Store
	exec   *execution.Builder
	up     Upstream
	tracer trace.Tracer

	blocks *caching.LRUCache[common.Hash, *eth.RPCBlock]
}

func New(lgr log.Logger, m Metrics, cfg Config, store *trust.Store, exec *execution.Builder, up Upstream) *Backend {
	return &Backend{
		log:    lgr,
		m:      m,
		cfg:    cfg,
		chain:  execution.ChainConfig(cfg.ChainID),
		trust:  store,
		exec:   exec,
		up:     up,
		tracer: otel.Tracer("el-proxy"),
		blocks: caching.NewLRUCache[common.Hash, *eth.RPCBlock](m, "blocks", blockCacheSize),
	}
}

// begin starts the span and metrics of a query. The returned func ends them, given the result of the query.
func (b *Backend) begin(ctx context.Context, method string, attrs ...attribute.KeyValue) (context.Context, func(errp *error)) {
	ctx, span := b.tracer.Start(ctx, method, trace.WithAttributes(attrs...))
	done := b.m.RecordQuery(method)
	return ctx, func(errp *error) {
		err := *errp
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			var integrity *ptypes.IntegrityError
			if errors.As(err, &integrity) {
				b.m.RecordIntegrityFailure(integrity.What)
				b.log.Warn("Upstream data failed verification", "method", method, "what", integrity.What, "err", integrity.Err)
			}
		}
		done(err)
		span.End()
	}
}

// blockNumber resolves the block parameter, and waits until the block is trusted if it is ahead of the tip.
func (b *Backend) blockNumber(ctx context.Context, param eth.BlockParam) (uint64, error) {
	n, err := b.trust.ResolveBlock(param)
	if err != nil {
		return 0, err
	}
	if err := b.trust.Await(ctx, n); err != nil {
		return 0, err
	}
	return n, nil
}

// header returns the trusted header for the block parameter.
func (b *Backend) header(ctx context.Context, param eth.BlockParam) (*types.Header, error) {
	n, err := b.blockNumber(ctx, param)
	if err != nil {
		return nil, err
	}
	return b.trust.Header(ctx, n)
}

// hashFunc serves BLOCKHASH from the trust store. Blocks that cannot be resolved hash to zero.
func (b *Backend) hashFunc(ctx context.Context) func(n uint64) common.Hash {
	return func(n uint64) common.Hash {
		h, err := b.trust.HashForNumber(ctx, n)
		if err != nil {
			b.log.Debug("Could not resolve block hash for execution", "number", n, "err", err)
			return common.Hash{}
		}
		return h
	}
}

func (b *Backend) ChainID() uint64 {
	return b.cfg.ChainID
}

func (b *Backend) NetVersion() string {
	return fmt.Sprintf("%d", b.cfg.ChainID)
}

// BlockNumber returns the trusted tip.
func (b *Backend) BlockNumber(ctx context.Context) (uint64, error) {
	tip, ok := b.trust.Tip()
	if !ok {
		return 0, &ptypes.UpstreamError{Err: trust.ErrNotSynced}
	}
	return tip.Number, nil
}

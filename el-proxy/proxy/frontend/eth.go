package frontend

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	ptypes "github.com/elciao/elciao/el-proxy/proxy/backend/types"
	"github.com/elciao/elciao/el-service/eth"
)

type EthBackend interface {
	ChainID() uint64
	BlockNumber(ctx context.Context) (uint64, error)
	GetBalance(ctx context.Context, addr common.Address, block eth.BlockParam) (*big.Int, error)
	GetTransactionCount(ctx context.Context, addr common.Address, block eth.BlockParam) (uint64, error)
	GetCode(ctx context.Context, addr common.Address, block eth.BlockParam) ([]byte, error)
	GetStorageAt(ctx context.Context, addr common.Address, key common.Hash, block eth.BlockParam) (common.Hash, error)
	Call(ctx context.Context, args *ptypes.TransactionArgs, block eth.BlockParam) ([]byte, error)
	EstimateGas(ctx context.Context, args *ptypes.TransactionArgs, block eth.BlockParam) (uint64, error)
	GetBlockByNumber(ctx context.Context, block eth.BlockParam, fullTx bool) (map[string]any, error)
	GetBlockByHash(ctx context.Context, hash common.Hash, fullTx bool) (map[string]any, error)
	GetTransactionReceipt(ctx context.Context, hash common.Hash) (map[string]any, error)
	SendRawTransaction(ctx context.Context, raw hexutil.Bytes) (common.Hash, error)
}

// EthFrontend serves the eth namespace. Argument decoding validates the positional params:
// addresses, hashes, block parameters, booleans, hex data, and the shape of transaction objects.
// A missing block parameter defaults to latest.
type EthFrontend struct {
	b EthBackend
}

func NewEthFrontend(b EthBackend) *EthFrontend {
	return &EthFrontend{b: b}
}

// rpcErr returns the error kind of err, which carries the JSON-RPC error code.
func rpcErr(err error) error {
	if err == nil {
		return nil
	}
	if e := ptypes.AsRPCError(err); e != nil {
		return e
	}
	return err
}

func blockOrLatest(block *eth.BlockParam) eth.BlockParam {
	if block == nil {
		return eth.LatestBlock()
	}
	return *block
}

func (f *EthFrontend) ChainId() hexutil.Uint64 {
	return hexutil.Uint64(f.b.ChainID())
}

func (f *EthFrontend) BlockNumber(ctx context.Context) (hexutil.Uint64, error) {
	n, err := f.b.BlockNumber(ctx)
	return hexutil.Uint64(n), rpcErr(err)
}

func (f *EthFrontend) GetBalance(ctx context.Context, addr common.Address, block *eth.BlockParam) (*hexutil.Big, error) {
	bal, err := f.b.GetBalance(ctx, addr, blockOrLatest(block))
	if err != nil {
		return nil, rpcErr(err)
	}
	return (*hexutil.Big)(bal), nil
}

func (f *EthFrontend) GetTransactionCount(ctx context.Context, addr common.Address, block *eth.BlockParam) (hexutil.Uint64, error) {
	n, err := f.b.GetTransactionCount(ctx, addr, blockOrLatest(block))
	return hexutil.Uint64(n), rpcErr(err)
}

func (f *EthFrontend) GetCode(ctx context.Context, addr common.Address, block *eth.BlockParam) (hexutil.Bytes, error) {
	code, err := f.b.GetCode(ctx, addr, blockOrLatest(block))
	return code, rpcErr(err)
}

func (f *EthFrontend) GetStorageAt(ctx context.Context, addr common.Address, key common.Hash, block *eth.BlockParam) (common.Hash, error) {
	v, err := f.b.GetStorageAt(ctx, addr, key, blockOrLatest(block))
	return v, rpcErr(err)
}

func (f *EthFrontend) Call(ctx context.Context, args ptypes.TransactionArgs, block *eth.BlockParam) (hexutil.Bytes, error) {
	out, err := f.b.Call(ctx, &args, blockOrLatest(block))
	return out, rpcErr(err)
}

func (f *EthFrontend) EstimateGas(ctx context.Context, args ptypes.TransactionArgs, block *eth.BlockParam) (hexutil.Uint64, error) {
	gas, err := f.b.EstimateGas(ctx, &args, blockOrLatest(block))
	return hexutil.Uint64(gas), rpcErr(err)
}

func (f *EthFrontend) GetBlockByNumber(ctx context.Context, block eth.BlockParam, fullTx bool) (map[string]any, error) {
	out, err := f.b.GetBlockByNumber(ctx, block, fullTx)
	return out, rpcErr(err)
}

func (f *EthFrontend) GetBlockByHash(ctx context.Context, hash common.Hash, fullTx bool) (map[string]any, error) {
	out, err := f.b.GetBlockByHash(ctx, hash, fullTx)
	return out, rpcErr(err)
}

func (f *EthFrontend) GetTransactionReceipt(ctx context.Context, hash common.Hash) (map[string]any, error) {
	out, err := f.b.GetTransactionReceipt(ctx, hash)
	return out, rpcErr(err)
}

func (f *EthFrontend) SendRawTransaction(ctx context.Context, raw hexutil.Bytes) (common.Hash, error) {
	hash, err := f.b.SendRawTransaction(ctx, raw)
	return hash, rpcErr(err)
}

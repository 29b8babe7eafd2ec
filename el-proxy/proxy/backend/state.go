package backend

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"go.opentelemetry.io/otel/attribute"

	ptypes "github.com/elciao/elciao/el-proxy/proxy/backend/types"
	"github.com/elciao/elciao/el-service/eth"
)

// account fetches the proof of addr and keys at the block, and verifies it against the state root.
func (b *Backend) account(ctx context.Context, header *types.Header, addr common.Address, keys []common.Hash) (*eth.AccountResult, error) {
	if keys == nil {
		keys = []common.Hash{}
	}
	var res *eth.AccountResult
	if err := b.up.Request(ctx, &res, "eth_getProof", addr, keys, hexutil.Uint64(header.Number.Uint64())); err != nil {
		return nil, ptypes.FromUpstream(err)
	}
	if res == nil {
		return nil, ptypes.Integrity("account proof", fmt.Errorf("no proof served for account %s", addr))
	}
	if err := res.VerifyAccount(addr, keys, header.Root); err != nil {
		return nil, ptypes.Integrity("account proof", err)
	}
	return res, nil
}

func (b *Backend) GetBalance(ctx context.Context, addr common.Address, param eth.BlockParam) (_ *big.Int, err error) {
	ctx, end := b.begin(ctx, "eth_getBalance", attribute.String("block", param.String()))
	defer end(&err)
	header, err := b.header(ctx, param)
	if err != nil {
		return nil, err
	}
	res, err := b.account(ctx, header, addr, nil)
	if err != nil {
		return nil, err
	}
	return res.Balance.ToInt(), nil
}

func (b *Backend) GetTransactionCount(ctx context.Context, addr common.Address, param eth.BlockParam) (_ uint64, err error) {
	ctx, end := b.begin(ctx, "eth_getTransactionCount", attribute.String("block", param.String()))
	defer end(&err)
	header, err := b.header(ctx, param)
	if err != nil {
		return 0, err
	}
	res, err := b.account(ctx, header, addr, nil)
	if err != nil {
		return 0, err
	}
	return uint64(res.Nonce), nil
}

func (b *Backend) GetStorageAt(ctx context.Context, addr common.Address, key common.Hash, param eth.BlockParam) (_ common.Hash, err error) {
	ctx, end := b.begin(ctx, "eth_getStorageAt", attribute.String("block", param.String()))
	defer end(&err)
	header, err := b.header(ctx, param)
	if err != nil {
		return common.Hash{}, err
	}
	res, err := b.account(ctx, header, addr, []common.Hash{key})
	if err != nil {
		return common.Hash{}, err
	}
	return common.BigToHash(res.StorageProof[0].Value.ToInt()), nil
}

// GetCode fetches the proof and the code of addr in one batch, and verifies the code against the proven code hash.
func (b *Backend) GetCode(ctx context.Context, addr common.Address, param eth.BlockParam) (_ []byte, err error) {
	ctx, end := b.begin(ctx, "eth_getCode", attribute.String("block", param.String()))
	defer end(&err)
	header, err := b.header(ctx, param)
	if err != nil {
		return nil, err
	}
	number := hexutil.Uint64(header.Number.Uint64())
	var (
		res  *eth.AccountResult
		code hexutil.Bytes
	)
	batch := []rpc.BatchElem{
		{Method: "eth_getProof", Args: []any{addr, []common.Hash{}, number}, Result: &res},
		{Method: "eth_getCode", Args: []any{addr, number}, Result: &code},
	}
	if err := b.up.RequestBatch(ctx, batch); err != nil {
		return nil, ptypes.FromUpstream(err)
	}
	if res == nil {
		return nil, ptypes.Integrity("account proof", fmt.Errorf("no proof served for account %s", addr))
	}
	if err := res.VerifyAccount(addr, nil, header.Root); err != nil {
		return nil, ptypes.Integrity("account proof", err)
	}
	if err := eth.VerifyCode(code, res.CodeHash); err != nil {
		return nil, ptypes.Integrity("account code", err)
	}
	return code, nil
}

func (b *Backend) Call(ctx context.Context, args *ptypes.TransactionArgs, param eth.BlockParam) (_ []byte, err error) {
	ctx, end := b.begin(ctx, "eth_call", attribute.String("block", param.String()))
	defer end(&err)
	if err := args.Validate(); err != nil {
		return nil, err
	}
	header, err := b.header(ctx, param)
	if err != nil {
		return nil, err
	}
	res, err := b.exec.Call(ctx, header, args, b.hashFunc(ctx))
	if err != nil {
		return nil, err
	}
	return res.ReturnData, nil
}

func (b *Backend) EstimateGas(ctx context.Context, args *ptypes.TransactionArgs, param eth.BlockParam) (_ uint64, err error) {
	ctx, end := b.begin(ctx, "eth_estimateGas", attribute.String("block", param.String()))
	defer end(&err)
	if err := args.Validate(); err != nil {
		return 0, err
	}
	header, err := b.header(ctx, param)
	if err != nil {
		return 0, err
	}
	res, err := b.exec.EstimateGas(ctx, header, args, b.hashFunc(ctx))
	if err != nil {
		return 0, err
	}
	return res.UsedGas, nil
}

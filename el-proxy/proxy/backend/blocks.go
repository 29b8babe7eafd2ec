package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel/attribute"

	ptypes "github.com/elciao/elciao/el-proxy/proxy/backend/types"
	"github.com/elciao/elciao/el-service/eth"
)

// VerifiedBlock returns the full block at the trusted height n.
// The block content is verified against the trusted block hash.
func (b *Backend) VerifiedBlock(ctx context.Context, n uint64) (*eth.RPCBlock, error) {
	trusted, err := b.trust.HashForNumber(ctx, n)
	if err != nil {
		return nil, err
	}
	if block, ok := b.blocks.Get(trusted); ok {
		return block, nil
	}
	var block *eth.RPCBlock
	if err := b.up.Request(ctx, &block, "eth_getBlockByNumber", hexutil.Uint64(n), true); err != nil {
		return nil, ptypes.FromUpstream(err)
	}
	if block == nil {
		return nil, &ptypes.UpstreamError{Err: fmt.Errorf("trusted block %d not found upstream", n)}
	}
	if err := block.Verify(); err != nil {
		return nil, ptypes.Integrity("block body", err)
	}
	if block.Hash != trusted {
		return nil, ptypes.Integrity("block hash", fmt.Errorf("block %d has hash %s, trusted hash is %s", n, block.Hash, trusted))
	}
	b.blocks.Add(trusted, block)
	return block, nil
}

func (b *Backend) GetBlockByNumber(ctx context.Context, param eth.BlockParam, fullTx bool) (_ map[string]any, err error) {
	ctx, end := b.begin(ctx, "eth_getBlockByNumber", attribute.String("block", param.String()), attribute.Bool("full", fullTx))
	defer end(&err)
	n, err := b.blockNumber(ctx, param)
	if err != nil {
		return nil, err
	}
	block, err := b.VerifiedBlock(ctx, n)
	if err != nil {
		return nil, err
	}
	return b.renderBlock(block, fullTx)
}

// GetBlockByHash returns nil if the hash is not a trusted block hash.
func (b *Backend) GetBlockByHash(ctx context.Context, hash common.Hash, fullTx bool) (_ map[string]any, err error) {
	ctx, end := b.begin(ctx, "eth_getBlockByHash", attribute.String("hash", hash.String()), attribute.Bool("full", fullTx))
	defer end(&err)
	n, ok, err := b.trust.TrustedNumber(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		b.log.Debug("Block hash is not trusted", "hash", hash)
		return nil, nil
	}
	block, err := b.VerifiedBlock(ctx, n)
	if err != nil {
		return nil, err
	}
	return b.renderBlock(block, fullTx)
}

func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Backend) renderBlock(block *eth.RPCBlock, fullTx bool) (map[string]any, error) {
	out, err := toMap(block.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to render header: %w", err)
	}
	txs := make([]any, 0, len(block.Transactions))
	for i, tx := range block.Transactions {
		if !fullTx {
			txs = append(txs, tx.Hash())
			continue
		}
		rtx, err := b.renderTx(block, i)
		if err != nil {
			return nil, err
		}
		txs = append(txs, rtx)
	}
	out["hash"] = block.Hash
	out["transactions"] = txs
	uncles := block.Uncles
	if uncles == nil {
		uncles = []common.Hash{}
	}
	out["uncles"] = uncles
	out["size"] = hexutil.Uint64(block.Block().Size())
	out["totalDifficulty"] = (*hexutil.Big)(new(big.Int))
	if block.Withdrawals != nil {
		out["withdrawals"] = *block.Withdrawals
	}
	return out, nil
}

func (b *Backend) sender(header *types.Header, tx *types.Transaction) (common.Address, error) {
	signer := types.MakeSigner(b.chain, header.Number, header.Time)
	from, err := types.Sender(signer, tx)
	if err != nil {
		return common.Address{}, ptypes.Integrity("transaction signature", fmt.Errorf("tx %s: %w", tx.Hash(), err))
	}
	return from, nil
}

// effectiveGasPrice is the price paid per gas by tx in a block with the given base fee.
func effectiveGasPrice(tx *types.Transaction, baseFee *big.Int) *big.Int {
	if baseFee == nil {
		return tx.GasPrice()
	}
	price := new(big.Int).Add(tx.GasTipCap(), baseFee)
	if price.Cmp(tx.GasFeeCap()) > 0 {
		return new(big.Int).Set(tx.GasFeeCap())
	}
	return price
}

func (b *Backend) renderTx(block *eth.RPCBlock, index int) (map[string]any, error) {
	tx := block.Transactions[index]
	out, err := toMap(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to render tx %d: %w", index, err)
	}
	from, err := b.sender(block.Header, tx)
	if err != nil {
		return nil, err
	}
	out["blockHash"] = block.Hash
	out["blockNumber"] = (*hexutil.Big)(block.Header.Number)
	out["from"] = from
	out["transactionIndex"] = hexutil.Uint64(index)
	out["gasPrice"] = (*hexutil.Big)(effectiveGasPrice(tx, block.Header.BaseFee))
	return out, nil
}

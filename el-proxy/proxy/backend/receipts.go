package backend

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.opentelemetry.io/otel/attribute"

	ptypes "github.com/elciao/elciao/el-proxy/proxy/backend/types"
	"github.com/elciao/elciao/el-service/eth"
)

// receiptMeta is the part of an upstream receipt that locates the transaction.
type receiptMeta struct {
	TxHash      common.Hash     `json:"transactionHash"`
	BlockHash   common.Hash     `json:"blockHash"`
	BlockNumber hexutil.Uint64  `json:"blockNumber"`
	Status      *hexutil.Uint64 `json:"status"`
}

// GetTransactionReceipt returns the receipt of a transaction in a trusted block, or nil if upstream has none.
// Without strict receipts, only the inclusion of the transaction is verified:
// gas usage and logs are zero, and the status is passed through unverified.
func (b *Backend) GetTransactionReceipt(ctx context.Context, hash common.Hash) (_ map[string]any, err error) {
	ctx, end := b.begin(ctx, "eth_getTransactionReceipt", attribute.String("tx", hash.String()))
	defer end(&err)
	var meta *receiptMeta
	if err := b.up.Request(ctx, &meta, "eth_getTransactionReceipt", hash); err != nil {
		return nil, ptypes.FromUpstream(err)
	}
	if meta == nil {
		return nil, nil
	}
	if meta.TxHash != hash {
		return nil, ptypes.Integrity("receipt", fmt.Errorf("requested receipt of tx %s but got %s", hash, meta.TxHash))
	}
	n, err := b.blockNumber(ctx, eth.NumberBlock(uint64(meta.BlockNumber)))
	if err != nil {
		return nil, err
	}
	block, err := b.VerifiedBlock(ctx, n)
	if err != nil {
		return nil, err
	}
	if meta.BlockHash != block.Hash {
		return nil, ptypes.Integrity("receipt", fmt.Errorf("receipt claims block %s, trusted block %d is %s", meta.BlockHash, n, block.Hash))
	}
	index := block.TxIndex(hash)
	if index < 0 {
		return nil, ptypes.Integrity("receipt", fmt.Errorf("tx %s is not included in block %d", hash, n))
	}
	tx := block.Transactions[index]
	from, err := b.sender(block.Header, tx)
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"transactionHash":   hash,
		"transactionIndex":  hexutil.Uint64(index),
		"blockHash":         block.Hash,
		"blockNumber":       hexutil.Uint64(n),
		"from":              from,
		"to":                tx.To(),
		"type":              hexutil.Uint64(tx.Type()),
		"contractAddress":   nil,
		"cumulativeGasUsed": hexutil.Uint64(0),
		"gasUsed":           hexutil.Uint64(0),
		"effectiveGasPrice": hexutil.Uint64(0),
		"logs":              []*types.Log{},
		"logsBloom":         types.Bloom{},
		"status":            meta.Status,
	}
	if tx.To() == nil {
		out["contractAddress"] = crypto.CreateAddress(from, tx.Nonce())
	}
	if !b.cfg.StrictReceipts {
		return out, nil
	}
	receipts, err := b.verifiedReceipts(ctx, block)
	if err != nil {
		return nil, err
	}
	r := receipts[index]
	out["cumulativeGasUsed"] = hexutil.Uint64(r.CumulativeGasUsed)
	out["gasUsed"] = hexutil.Uint64(r.GasUsed)
	out["effectiveGasPrice"] = (*hexutil.Big)(effectiveGasPrice(tx, block.Header.BaseFee))
	out["logs"] = r.Logs
	out["logsBloom"] = r.Bloom
	out["status"] = hexutil.Uint64(r.Status)
	return out, nil
}

// verifiedReceipts fetches all receipts of the block and verifies them against the receipts root.
func (b *Backend) verifiedReceipts(ctx context.Context, block *eth.RPCBlock) ([]*types.Receipt, error) {
	id := block.BlockID()
	var receipts []*types.Receipt
	if err := b.up.Request(ctx, &receipts, "eth_getBlockReceipts", hexutil.Uint64(id.Number)); err != nil {
		return nil, ptypes.FromUpstream(err)
	}
	if err := eth.ValidateReceipts(id, block.Header.ReceiptHash, block.TxHashes(), receipts); err != nil {
		return nil, ptypes.Integrity("receipts", err)
	}
	return receipts, nil
}

// SendRawTransaction forwards the transaction and returns its locally computed hash.
func (b *Backend) SendRawTransaction(ctx context.Context, raw hexutil.Bytes) (_ common.Hash, err error) {
	ctx, end := b.begin(ctx, "eth_sendRawTransaction")
	defer end(&err)
	var tx types.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, ptypes.InvalidParams("invalid raw transaction: %v", err)
	}
	var claimed common.Hash
	if err := b.up.Request(ctx, &claimed, "eth_sendRawTransaction", raw); err != nil {
		return common.Hash{}, ptypes.FromUpstream(err)
	}
	if claimed != tx.Hash() {
		b.log.Warn("Upstream reported a different transaction hash", "local", tx.Hash(), "upstream", claimed)
	}
	return tx.Hash(), nil
}

package eth

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/stretchr/testify/require"
)

func testReceipts(block BlockID, txHashes []common.Hash) []*types.Receipt {
	out := make([]*types.Receipt, len(txHashes))
	cumulative := uint64(0)
	logIndex := uint(0)
	for i, h := range txHashes {
		cumulative += 21000 + uint64(i)
		r := &types.Receipt{
			Type:              types.DynamicFeeTxType,
			Status:            types.ReceiptStatusSuccessful,
			CumulativeGasUsed: cumulative,
			GasUsed:           21000 + uint64(i),
			TxHash:            h,
			BlockHash:         block.Hash,
			BlockNumber:       new(big.Int).SetUint64(block.Number),
			TransactionIndex:  uint(i),
		}
		r.Logs = []*types.Log{{
			Address:     common.Address{byte(i)},
			Topics:      []common.Hash{{1}},
			Data:        []byte{byte(i)},
			BlockNumber: block.Number,
			TxHash:      h,
			TxIndex:     uint(i),
			BlockHash:   block.Hash,
			Index:       logIndex,
		}}
		logIndex++
		out[i] = r
	}
	return out
}

func TestValidateReceipts(t *testing.T) {
	block := BlockID{Hash: common.Hash{0xb1}, Number: 100}
	txHashes := []common.Hash{{1}, {2}, {3}}
	receipts := testReceipts(block, txHashes)
	root := types.DeriveSha(types.Receipts(receipts), trie.NewStackTrie(nil))

	require.NoError(t, ValidateReceipts(block, root, txHashes, receipts))

	t.Run("missing receipt", func(t *testing.T) {
		require.ErrorContains(t, ValidateReceipts(block, root, txHashes, receipts[:2]), "got 2 receipts")
	})
	t.Run("reordered", func(t *testing.T) {
		swapped := []*types.Receipt{receipts[1], receipts[0], receipts[2]}
		require.Error(t, ValidateReceipts(block, root, txHashes, swapped))
	})
	t.Run("wrong root", func(t *testing.T) {
		require.ErrorContains(t, ValidateReceipts(block, common.Hash{1}, txHashes, receipts), "receipt root")
	})
	t.Run("wrong block", func(t *testing.T) {
		other := BlockID{Hash: common.Hash{0xb2}, Number: 100}
		require.ErrorContains(t, ValidateReceipts(other, root, txHashes, receipts), "block hash")
	})
	t.Run("tampered status", func(t *testing.T) {
		tampered := testReceipts(block, txHashes)
		tampered[1].Status = types.ReceiptStatusFailed
		require.ErrorContains(t, ValidateReceipts(block, root, txHashes, tampered), "receipt root")
	})
	t.Run("empty block", func(t *testing.T) {
		require.NoError(t, ValidateReceipts(block, types.EmptyRootHash, nil, nil))
		require.Error(t, ValidateReceipts(block, root, nil, nil))
	})
}

// Package notary publishes summaries of verified blocks to an external sink.
package notary

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/elciao/elciao/el-proxy/proxy/feed"
	"github.com/elciao/elciao/el-service/eth"
)

type BeaconSummary struct {
	Slot          string      `json:"slot"`
	ProposerIndex string      `json:"proposerIndex"`
	ParentRoot    common.Hash `json:"parentRoot"`
	StateRoot     common.Hash `json:"stateRoot"`
	BodyRoot      common.Hash `json:"bodyRoot"`
}

type Withdrawal struct {
	Index          string         `json:"index"`
	ValidatorIndex string         `json:"validatorIndex"`
	Address        common.Address `json:"address"`
	Amount         string         `json:"amount"`
}

type ExecutionSummary struct {
	BlockNumber   string `json:"blockNumber"`
	GasLimit      string `json:"gasLimit"`
	GasUsed       string `json:"gasUsed"`
	Timestamp     string `json:"timestamp"`
	BaseFeePerGas string `json:"baseFeePerGas"`
	BlobGasUsed   string `json:"blobGasUsed"`
	ExcessBlobGas string `json:"excessBlobGas"`

	ParentHash       common.Hash    `json:"parentHash"`
	FeeRecipient     common.Address `json:"feeRecipient"`
	StateRoot        common.Hash    `json:"stateRoot"`
	ReceiptsRoot     common.Hash    `json:"receiptsRoot"`
	LogsBloom        hexutil.Bytes  `json:"logsBloom"`
	PrevRandao       common.Hash    `json:"prevRandao"`
	BlockHash        common.Hash    `json:"blockHash"`
	TransactionsRoot common.Hash    `json:"transactionsRoot"`
	WithdrawalsRoot  common.Hash    `json:"withdrawalsRoot"`
	ExtraData        hexutil.Bytes  `json:"extraData"`

	Transactions []common.Hash `json:"transactions"`
	Withdrawals  []Withdrawal  `json:"withdrawals"`
}

// Summary is the normalized description of a verified block:
// quantities as decimal strings, hashes and byte strings as hex.
type Summary struct {
	Beacon    *BeaconSummary   `json:"beacon,omitempty"`
	Execution ExecutionSummary `json:"execution"`
}

func decimal(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func decimalPtr(v *uint64) string {
	if v == nil {
		return "0"
	}
	return decimal(*v)
}

// NewSummary summarizes a verified block. Transaction hashes are derived from the verified body.
func NewSummary(block *eth.RPCBlock, beacon *feed.BeaconHeader) *Summary {
	h := block.Header
	baseFee := "0"
	if h.BaseFee != nil {
		baseFee = h.BaseFee.String()
	}
	withdrawalsRoot := types.EmptyWithdrawalsHash
	if h.WithdrawalsHash != nil {
		withdrawalsRoot = *h.WithdrawalsHash
	}
	out := &Summary{
		Execution: ExecutionSummary{
			BlockNumber:      h.Number.String(),
			GasLimit:         decimal(h.GasLimit),
			GasUsed:          decimal(h.GasUsed),
			Timestamp:        decimal(h.Time),
			BaseFeePerGas:    baseFee,
			BlobGasUsed:      decimalPtr(h.BlobGasUsed),
			ExcessBlobGas:    decimalPtr(h.ExcessBlobGas),
			ParentHash:       h.ParentHash,
			FeeRecipient:     h.Coinbase,
			StateRoot:        h.Root,
			ReceiptsRoot:     h.ReceiptHash,
			LogsBloom:        h.Bloom.Bytes(),
			PrevRandao:       h.MixDigest,
			BlockHash:        block.Hash,
			TransactionsRoot: h.TxHash,
			WithdrawalsRoot:  withdrawalsRoot,
			ExtraData:        h.Extra,
			Transactions:     block.TxHashes(),
			Withdrawals:      []Withdrawal{},
		},
	}
	if out.Execution.ExtraData == nil {
		out.Execution.ExtraData = hexutil.Bytes{}
	}
	if block.Withdrawals != nil {
		for _, w := range *block.Withdrawals {
			out.Execution.Withdrawals = append(out.Execution.Withdrawals, Withdrawal{
				Index:          decimal(w.Index),
				ValidatorIndex: decimal(w.Validator),
				Address:        w.Address,
				Amount:         decimal(w.Amount),
			})
		}
	}
	if beacon != nil {
		out.Beacon = &BeaconSummary{
			Slot:          decimal(uint64(beacon.Slot)),
			ProposerIndex: decimal(uint64(beacon.ProposerIndex)),
			ParentRoot:    beacon.ParentRoot,
			StateRoot:     beacon.StateRoot,
			BodyRoot:      beacon.BodyRoot,
		}
	}
	return out
}

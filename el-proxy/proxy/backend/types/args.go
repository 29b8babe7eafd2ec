package types

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// TransactionArgs is the transaction object of eth_call and eth_estimateGas.
type TransactionArgs struct {
	From                 *common.Address   `json:"from"`
	To                   *common.Address   `json:"to"`
	Gas                  *hexutil.Uint64   `json:"gas"`
	GasPrice             *hexutil.Big      `json:"gasPrice"`
	MaxFeePerGas         *hexutil.Big      `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big      `json:"maxPriorityFeePerGas"`
	Value                *hexutil.Big      `json:"value"`
	Nonce                *hexutil.Uint64   `json:"nonce"`
	Type                 *hexutil.Uint64   `json:"type,omitempty"`
	ChainID              *hexutil.Big      `json:"chainId,omitempty"`
	AccessList           *types.AccessList `json:"accessList,omitempty"`

	// Data and Input are the same field, Input is the newer name.
	Data  *hexutil.Bytes `json:"data"`
	Input *hexutil.Bytes `json:"input"`
}

// Validate checks the fee fields and the call data for conflicts.
func (args *TransactionArgs) Validate() error {
	if args.GasPrice != nil && (args.MaxFeePerGas != nil || args.MaxPriorityFeePerGas != nil) {
		return InvalidParams("both gasPrice and (maxFeePerGas or maxPriorityFeePerGas) specified")
	}
	if args.MaxFeePerGas != nil && args.MaxPriorityFeePerGas != nil &&
		args.MaxPriorityFeePerGas.ToInt().Cmp(args.MaxFeePerGas.ToInt()) > 0 {
		return InvalidParams("maxPriorityFeePerGas (%v) > maxFeePerGas (%v)", args.MaxPriorityFeePerGas, args.MaxFeePerGas)
	}
	for name, v := range map[string]*hexutil.Big{
		"gasPrice":             args.GasPrice,
		"maxFeePerGas":         args.MaxFeePerGas,
		"maxPriorityFeePerGas": args.MaxPriorityFeePerGas,
		"value":                args.Value,
	} {
		if v != nil && v.ToInt().Sign() < 0 {
			return InvalidParams("%s must not be negative", name)
		}
	}
	if args.Data != nil && args.Input != nil && !bytes.Equal(*args.Data, *args.Input) {
		return InvalidParams(`both "data" and "input" are set and not equal. Please use "input" to pass transaction call data`)
	}
	if args.Type != nil {
		switch uint64(*args.Type) {
		case types.LegacyTxType, types.AccessListTxType, types.DynamicFeeTxType:
		default:
			return InvalidParams("unsupported transaction type %d", uint64(*args.Type))
		}
	}
	return nil
}

func (args *TransactionArgs) FromOrZero() common.Address {
	if args.From != nil {
		return *args.From
	}
	return common.Address{}
}

func (args *TransactionArgs) CallData() []byte {
	if args.Input != nil {
		return *args.Input
	}
	if args.Data != nil {
		return *args.Data
	}
	return nil
}

func (args *TransactionArgs) ValueOrZero() *big.Int {
	if args.Value != nil {
		return new(big.Int).Set(args.Value.ToInt())
	}
	return new(big.Int)
}

// TxType infers the fee market type: dynamic fee if any EIP-1559 fee is set,
// access list if an access list is set, legacy otherwise.
func (args *TransactionArgs) TxType() uint8 {
	switch {
	case args.MaxFeePerGas != nil || args.MaxPriorityFeePerGas != nil:
		return types.DynamicFeeTxType
	case args.AccessList != nil:
		return types.AccessListTxType
	case args.Type != nil:
		return uint8(*args.Type)
	default:
		return types.LegacyTxType
	}
}

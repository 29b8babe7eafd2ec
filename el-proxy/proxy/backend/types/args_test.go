package types

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

func TestTransactionArgsValidate(t *testing.T) {
	decode := func(t *testing.T, s string) *TransactionArgs {
		var args TransactionArgs
		require.NoError(t, json.Unmarshal([]byte(s), &args))
		return &args
	}
	tests := []struct {
		name string
		args string
		err  string
	}{
		{name: "empty", args: `{}`},
		{name: "legacy", args: `{"to":"0x0000000000000000000000000000000000000001","gasPrice":"0x1"}`},
		{name: "dynamic", args: `{"maxFeePerGas":"0x2","maxPriorityFeePerGas":"0x1"}`},
		{name: "fee conflict", args: `{"gasPrice":"0x1","maxFeePerGas":"0x2"}`, err: "both gasPrice"},
		{name: "tip above cap", args: `{"maxFeePerGas":"0x1","maxPriorityFeePerGas":"0x2"}`, err: "maxPriorityFeePerGas"},
		{name: "data input mismatch", args: `{"data":"0x01","input":"0x02"}`, err: `both "data" and "input"`},
		{name: "data input equal", args: `{"data":"0x01","input":"0x01"}`},
		{name: "blob type", args: `{"type":"0x3"}`, err: "unsupported transaction type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := decode(t, tt.args).Validate()
			if tt.err == "" {
				require.NoError(t, err)
				return
			}
			var invalid *InvalidParamsError
			require.ErrorAs(t, err, &invalid)
			require.ErrorContains(t, err, tt.err)
		})
	}
}

func TestTransactionArgsDefaults(t *testing.T) {
	var args TransactionArgs
	require.Equal(t, common.Address{}, args.FromOrZero())
	require.Nil(t, args.CallData())
	require.Equal(t, 0, args.ValueOrZero().Sign())
	require.Equal(t, uint8(types.LegacyTxType), args.TxType())

	data := hexutil.Bytes{0xaa}
	args.Data = &data
	require.Equal(t, []byte{0xaa}, args.CallData())

	args.AccessList = &types.AccessList{}
	require.Equal(t, uint8(types.AccessListTxType), args.TxType())

	args.MaxFeePerGas = (*hexutil.Big)(big.NewInt(1))
	require.Equal(t, uint8(types.DynamicFeeTxType), args.TxType())
}

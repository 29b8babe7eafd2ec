package backend

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/elciao/elciao/el-proxy/metrics"
	"github.com/elciao/elciao/el-proxy/proxy/backend/execution"
	"github.com/elciao/elciao/el-proxy/proxy/backend/trust"
	ptypes "github.com/elciao/elciao/el-proxy/proxy/backend/types"
	"github.com/elciao/elciao/el-service/client"
	"github.com/elciao/elciao/el-service/eth"
	"github.com/elciao/elciao/el-service/testlog"
	"github.com/elciao/elciao/el-service/testutils"
)

const testChainID = 1337

var (
	reader    = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	bystander = common.HexToAddress("0x00000000000000000000000000000000000000ee")

	// returns storage slot 0
	readerCode = []byte{0x60, 0x00, 0x54, 0x60, 0x00, 0x52, 0x60, 0x20, 0x60, 0x00, 0xf3}
)

type testEnv struct {
	el      *testutils.MockEL
	store   *trust.Store
	backend *Backend
	key     *ecdsa.PrivateKey
	sender  common.Address
	blocks  []*types.Block
	tx      *types.Transaction
}

func signTx(t *testing.T, key *ecdsa.PrivateKey, nonce uint64, to *common.Address) *types.Transaction {
	signer := types.LatestSignerForChainID(big.NewInt(testChainID))
	tx, err := types.SignNewTx(key, signer, &types.DynamicFeeTx{
		ChainID:   big.NewInt(testChainID),
		Nonce:     nonce,
		GasTipCap: big.NewInt(params.GWei),
		GasFeeCap: big.NewInt(100 * params.GWei),
		Gas:       params.TxGas,
		To:        to,
		Value:     big.NewInt(1),
	})
	require.NoError(t, err)
	return tx
}

// newTestEnv serves blocks 0 to 3, with one transfer in block 1. Block 2 is the trusted tip.
func newTestEnv(t *testing.T, cfg Config) *testEnv {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sender := crypto.PubkeyToAddress(key.PublicKey)
	st := testutils.NewMockState(map[common.Address]*testutils.MockAccount{
		sender: {Nonce: 1, Balance: uint256.NewInt(params.Ether)},
		reader: {
			Code:    readerCode,
			Storage: map[common.Hash]common.Hash{{}: common.BigToHash(big.NewInt(42))},
		},
		bystander: {Nonce: 3, Balance: uint256.NewInt(5)},
	})
	tx := signTx(t, key, 0, &bystander)
	receipts := types.Receipts{{
		Type:              tx.Type(),
		Status:            types.ReceiptStatusSuccessful,
		CumulativeGasUsed: params.TxGas,
		GasUsed:           params.TxGas,
		Logs:              []*types.Log{},
	}}

	el := testutils.NewMockEL(testChainID)
	var blocks []*types.Block
	var parent *types.Header
	for i := 0; i < 4; i++ {
		var b *types.Block
		if i == 1 {
			b = testutils.NewMockBlock(parent, st.Root(), types.Transactions{tx}, receipts)
			el.AddBlock(b, receipts, st)
		} else {
			b = testutils.NewMockBlock(parent, st.Root(), nil, nil)
			el.AddBlock(b, nil, st)
		}
		blocks = append(blocks, b)
		parent = b.Header()
	}

	lgr := testlog.Logger(t, log.LevelDebug)
	up := testutils.DialMockEL(t, el, lgr, client.DefaultResilientConfig())
	m := metrics.NoopMetrics{}
	store := trust.NewStore(lgr, m, trust.DefaultConfig(), up)
	store.Advance(blocks[2].Hash(), 2)
	exec := execution.NewBuilder(lgr, execution.DefaultConfig(), up, testChainID)
	return &testEnv{
		el:      el,
		store:   store,
		backend: New(lgr, m, cfg, store, exec, up),
		key:     key,
		sender:  sender,
		blocks:  blocks,
		tx:      tx,
	}
}

func defaultConfig() Config {
	return Config{ChainID: testChainID}
}

func TestChainInfo(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	require.Equal(t, uint64(testChainID), env.backend.ChainID())
	require.Equal(t, "1337", env.backend.NetVersion())
	n, err := env.backend.BlockNumber(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(2), n)
}

func TestBlockNumberBeforeSync(t *testing.T) {
	lgr := testlog.Logger(t, log.LevelDebug)
	store := trust.NewStore(lgr, metrics.NoopMetrics{}, trust.DefaultConfig(), nil)
	b := New(lgr, metrics.NoopMetrics{}, defaultConfig(), store, nil, nil)
	_, err := b.BlockNumber(context.Background())
	var upstream *ptypes.UpstreamError
	require.ErrorAs(t, err, &upstream)
}

func TestAccountQueries(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()

	bal, err := env.backend.GetBalance(ctx, env.sender, eth.LatestBlock())
	require.NoError(t, err)
	require.Equal(t, big.NewInt(params.Ether), bal)

	nonce, err := env.backend.GetTransactionCount(ctx, bystander, eth.NumberBlock(1))
	require.NoError(t, err)
	require.Equal(t, uint64(3), nonce)

	code, err := env.backend.GetCode(ctx, reader, eth.LatestBlock())
	require.NoError(t, err)
	require.Equal(t, readerCode, code)

	v, err := env.backend.GetStorageAt(ctx, reader, common.Hash{}, eth.LatestBlock())
	require.NoError(t, err)
	require.Equal(t, common.BigToHash(big.NewInt(42)), v)

	absent := common.HexToAddress("0x0000000000000000000000000000000000000bad")
	bal, err = env.backend.GetBalance(ctx, absent, eth.LatestBlock())
	require.NoError(t, err)
	require.Zero(t, bal.Sign())
}

func TestTamperedBalance(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	env.el.OnResult = func(method string, result any) any {
		if res, ok := result.(*eth.AccountResult); ok {
			res.Balance = (*hexutil.Big)(big.NewInt(1))
		}
		return result
	}
	_, err := env.backend.GetBalance(context.Background(), env.sender, eth.LatestBlock())
	var integrity *ptypes.IntegrityError
	require.ErrorAs(t, err, &integrity)
	require.Equal(t, "account proof", integrity.What)
}

func TestQueryOutsideWindow(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	_, err := env.backend.GetBalance(context.Background(), env.sender, eth.NumberBlock(100))
	var invalid *ptypes.InvalidParamsError
	require.ErrorAs(t, err, &invalid)

	_, err = env.backend.GetBalance(context.Background(), env.sender, eth.BlockParam{Tag: eth.Pending})
	require.ErrorAs(t, err, &invalid)
}

func TestQueryWaitsForFutureBlock(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	done := make(chan error, 1)
	go func() {
		_, err := env.backend.GetBalance(context.Background(), env.sender, eth.NumberBlock(3))
		done <- err
	}()
	select {
	case err := <-done:
		t.Fatalf("query returned before the block was trusted: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	env.store.Advance(env.blocks[3].Hash(), 3)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("query did not resume")
	}
}

func TestCallAndEstimate(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	env.el.SetAccessList(types.AccessList{{Address: reader, StorageKeys: []common.Hash{{}}}})
	ctx := context.Background()

	args := &ptypes.TransactionArgs{From: &env.sender, To: &reader}
	out, err := env.backend.Call(ctx, args, eth.LatestBlock())
	require.NoError(t, err)
	require.Equal(t, common.BigToHash(big.NewInt(42)).Bytes(), out)

	transfer := &ptypes.TransactionArgs{From: &env.sender, To: &bystander, Value: (*hexutil.Big)(big.NewInt(1))}
	gas, err := env.backend.EstimateGas(ctx, transfer, eth.LatestBlock())
	require.NoError(t, err)
	require.Equal(t, params.TxGas, gas)

	conflicting := &ptypes.TransactionArgs{
		To:           &reader,
		GasPrice:     (*hexutil.Big)(big.NewInt(1)),
		MaxFeePerGas: (*hexutil.Big)(big.NewInt(1)),
	}
	_, err = env.backend.Call(ctx, conflicting, eth.LatestBlock())
	var invalid *ptypes.InvalidParamsError
	require.ErrorAs(t, err, &invalid)
}

func TestGetBlock(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()

	out, err := env.backend.GetBlockByNumber(ctx, eth.NumberBlock(1), true)
	require.NoError(t, err)
	require.Equal(t, env.blocks[1].Hash(), out["hash"])
	require.Equal(t, (*hexutil.Big)(new(big.Int)), out["totalDifficulty"])
	txs := out["transactions"].([]any)
	require.Len(t, txs, 1)
	rtx := txs[0].(map[string]any)
	require.Equal(t, env.sender, rtx["from"])
	require.Equal(t, env.blocks[1].Hash(), rtx["blockHash"])
	require.Equal(t, hexutil.Uint64(0), rtx["transactionIndex"])
	// tip plus base fee, below the fee cap
	price := new(big.Int).Add(big.NewInt(params.GWei), big.NewInt(params.InitialBaseFee))
	require.Equal(t, (*hexutil.Big)(price), rtx["gasPrice"])

	out, err = env.backend.GetBlockByHash(ctx, env.blocks[1].Hash(), false)
	require.NoError(t, err)
	require.Equal(t, []any{env.tx.Hash()}, out["transactions"])

	// served from the cache
	require.Equal(t, 1, env.el.Calls("eth_getBlockByNumber"))
}

func TestGetBlockByHashUntrusted(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()

	out, err := env.backend.GetBlockByHash(ctx, common.Hash{0x42}, true)
	require.NoError(t, err)
	require.Nil(t, out)

	// known upstream, but above the trusted tip
	out, err = env.backend.GetBlockByHash(ctx, env.blocks[3].Hash(), true)
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestTamperedBlock(t *testing.T) {
	t.Run("header", func(t *testing.T) {
		env := newTestEnv(t, defaultConfig())
		env.el.OnResult = func(method string, result any) any {
			if method == "eth_getBlockByNumber" {
				result.(map[string]any)["gasUsed"] = hexutil.Uint64(1)
			}
			return result
		}
		_, err := env.backend.GetBlockByNumber(context.Background(), eth.NumberBlock(1), false)
		var integrity *ptypes.IntegrityError
		require.ErrorAs(t, err, &integrity)
		require.Equal(t, "block body", integrity.What)
	})
	t.Run("transactions", func(t *testing.T) {
		env := newTestEnv(t, defaultConfig())
		env.el.OnResult = func(method string, result any) any {
			if method == "eth_getBlockByNumber" {
				result.(map[string]any)["transactions"] = []any{}
			}
			return result
		}
		_, err := env.backend.GetBlockByNumber(context.Background(), eth.NumberBlock(1), true)
		var integrity *ptypes.IntegrityError
		require.ErrorAs(t, err, &integrity)
		require.ErrorContains(t, err, "transactions list")
	})
	t.Run("other block", func(t *testing.T) {
		env := newTestEnv(t, defaultConfig())
		other, err := testutils.RenderBlock(env.blocks[0], true)
		require.NoError(t, err)
		env.el.OnResult = func(method string, result any) any {
			if method == "eth_getBlockByNumber" {
				return other
			}
			return result
		}
		_, err = env.backend.GetBlockByNumber(context.Background(), eth.NumberBlock(1), true)
		var integrity *ptypes.IntegrityError
		require.ErrorAs(t, err, &integrity)
		require.Equal(t, "block hash", integrity.What)
	})
}

func TestGetTransactionReceipt(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()

	r, err := env.backend.GetTransactionReceipt(ctx, env.tx.Hash())
	require.NoError(t, err)
	require.Equal(t, env.tx.Hash(), r["transactionHash"])
	require.Equal(t, env.blocks[1].Hash(), r["blockHash"])
	require.Equal(t, hexutil.Uint64(1), r["blockNumber"])
	require.Equal(t, env.sender, r["from"])
	require.Equal(t, &bystander, r["to"])
	require.Nil(t, r["contractAddress"])
	require.Equal(t, hexutil.Uint64(0), r["gasUsed"])
	require.Empty(t, r["logs"])
	require.Equal(t, hexutil.Uint64(1), *r["status"].(*hexutil.Uint64))
	require.Zero(t, env.el.Calls("eth_getBlockReceipts"))

	r, err = env.backend.GetTransactionReceipt(ctx, common.Hash{0x42})
	require.NoError(t, err)
	require.Nil(t, r)
}

func TestGetTransactionReceiptStrict(t *testing.T) {
	cfg := defaultConfig()
	cfg.StrictReceipts = true
	env := newTestEnv(t, cfg)

	r, err := env.backend.GetTransactionReceipt(context.Background(), env.tx.Hash())
	require.NoError(t, err)
	require.Equal(t, hexutil.Uint64(params.TxGas), r["gasUsed"])
	require.Equal(t, hexutil.Uint64(params.TxGas), r["cumulativeGasUsed"])
	require.Equal(t, hexutil.Uint64(types.ReceiptStatusSuccessful), r["status"])
	require.Equal(t, 1, env.el.Calls("eth_getBlockReceipts"))
}

func TestGetTransactionReceiptNotIncluded(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	env.el.OnResult = func(method string, result any) any {
		if method == "eth_getTransactionReceipt" {
			r := *result.(*types.Receipt)
			r.BlockNumber = big.NewInt(2)
			r.BlockHash = env.blocks[2].Hash()
			return &r
		}
		return result
	}
	_, err := env.backend.GetTransactionReceipt(context.Background(), env.tx.Hash())
	var integrity *ptypes.IntegrityError
	require.ErrorAs(t, err, &integrity)
	require.ErrorContains(t, err, "not included")
}

func TestSendRawTransaction(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	tx := signTx(t, env.key, 1, &bystander)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)

	hash, err := env.backend.SendRawTransaction(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, tx.Hash(), hash)
	require.Equal(t, []hexutil.Bytes{raw}, env.el.Sent())

	_, err = env.backend.SendRawTransaction(context.Background(), hexutil.Bytes{0x01, 0x02})
	var invalid *ptypes.InvalidParamsError
	require.ErrorAs(t, err, &invalid)
	require.Len(t, env.el.Sent(), 1)
}

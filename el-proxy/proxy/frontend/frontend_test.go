package frontend

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	ptypes "github.com/elciao/elciao/el-proxy/proxy/backend/types"
	"github.com/elciao/elciao/el-service/eth"
)

type fakeBackend struct {
	lastBlock eth.BlockParam
	err       error
}

func (f *fakeBackend) ChainID() uint64    { return 1337 }
func (f *fakeBackend) NetVersion() string { return "1337" }

func (f *fakeBackend) BlockNumber(ctx context.Context) (uint64, error) {
	return 7, f.err
}

func (f *fakeBackend) GetBalance(ctx context.Context, addr common.Address, block eth.BlockParam) (*big.Int, error) {
	f.lastBlock = block
	return big.NewInt(100), f.err
}

func (f *fakeBackend) GetTransactionCount(ctx context.Context, addr common.Address, block eth.BlockParam) (uint64, error) {
	f.lastBlock = block
	return 3, f.err
}

func (f *fakeBackend) GetCode(ctx context.Context, addr common.Address, block eth.BlockParam) ([]byte, error) {
	f.lastBlock = block
	return []byte{0x60}, f.err
}

func (f *fakeBackend) GetStorageAt(ctx context.Context, addr common.Address, key common.Hash, block eth.BlockParam) (common.Hash, error) {
	f.lastBlock = block
	return common.Hash{31: 1}, f.err
}

func (f *fakeBackend) Call(ctx context.Context, args *ptypes.TransactionArgs, block eth.BlockParam) ([]byte, error) {
	f.lastBlock = block
	if err := args.Validate(); err != nil {
		return nil, err
	}
	return []byte{0x2a}, f.err
}

func (f *fakeBackend) EstimateGas(ctx context.Context, args *ptypes.TransactionArgs, block eth.BlockParam) (uint64, error) {
	f.lastBlock = block
	return 21000, f.err
}

func (f *fakeBackend) GetBlockByNumber(ctx context.Context, block eth.BlockParam, fullTx bool) (map[string]any, error) {
	f.lastBlock = block
	return map[string]any{"full": fullTx}, f.err
}

func (f *fakeBackend) GetBlockByHash(ctx context.Context, hash common.Hash, fullTx bool) (map[string]any, error) {
	return nil, f.err
}

func (f *fakeBackend) GetTransactionReceipt(ctx context.Context, hash common.Hash) (map[string]any, error) {
	return nil, f.err
}

func (f *fakeBackend) SendRawTransaction(ctx context.Context, raw hexutil.Bytes) (common.Hash, error) {
	return common.Hash{0x01}, f.err
}

func dial(t *testing.T, b *fakeBackend) *rpc.Client {
	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("eth", NewEthFrontend(b)))
	require.NoError(t, srv.RegisterName("net", NewNetFrontend(b)))
	t.Cleanup(srv.Stop)
	cl := rpc.DialInProc(srv)
	t.Cleanup(cl.Close)
	return cl
}

func requireCode(t *testing.T, err error, code int) {
	t.Helper()
	var rpcErr rpc.Error
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, code, rpcErr.ErrorCode(), err.Error())
}

const addr = "0x00000000000000000000000000000000000000aa"

func TestBlockDefaultsToLatest(t *testing.T) {
	b := &fakeBackend{}
	cl := dial(t, b)
	ctx := context.Background()

	var bal hexutil.Big
	require.NoError(t, cl.CallContext(ctx, &bal, "eth_getBalance", addr))
	require.Equal(t, big.NewInt(100), bal.ToInt())
	require.Equal(t, eth.LatestBlock(), b.lastBlock)

	var nonce hexutil.Uint64
	require.NoError(t, cl.CallContext(ctx, &nonce, "eth_getTransactionCount", addr, "0x5"))
	require.Equal(t, hexutil.Uint64(3), nonce)
	require.Equal(t, eth.NumberBlock(5), b.lastBlock)
}

func TestSimpleMethods(t *testing.T) {
	cl := dial(t, &fakeBackend{})
	ctx := context.Background()

	var chainID hexutil.Uint64
	require.NoError(t, cl.CallContext(ctx, &chainID, "eth_chainId"))
	require.Equal(t, hexutil.Uint64(1337), chainID)

	var version string
	require.NoError(t, cl.CallContext(ctx, &version, "net_version"))
	require.Equal(t, "1337", version)

	var block map[string]any
	require.NoError(t, cl.CallContext(ctx, &block, "eth_getBlockByNumber", "latest", true))
	require.Equal(t, true, block["full"])

	require.NoError(t, cl.CallContext(ctx, &block, "eth_getBlockByHash", common.Hash{0x01}, false))
	require.Nil(t, block)
}

func TestParamValidation(t *testing.T) {
	cl := dial(t, &fakeBackend{})
	ctx := context.Background()
	var out any
	for name, call := range map[string][]any{
		"short address":     {"eth_getBalance", "0xaa"},
		"unprefixed":        {"eth_getBalance", "00000000000000000000000000000000000000aa"},
		"bad block tag":     {"eth_getCode", addr, "newest"},
		"too many params":   {"eth_getBalance", addr, "latest", true},
		"missing fullTx":    {"eth_getBlockByNumber", "latest"},
		"non-bool fullTx":   {"eth_getBlockByNumber", "latest", "yes"},
		"short block hash":  {"eth_getBlockByHash", "0x1234", false},
		"receipt not hash":  {"eth_getTransactionReceipt", "0x12"},
		"raw tx not hex":    {"eth_sendRawTransaction", "0xzz"},
		"missing tx object": {"eth_call"},
		"tx object shape":   {"eth_call", []string{"0x01"}},
		"fee conflict": {"eth_call", map[string]any{
			"to": addr, "gasPrice": "0x1", "maxFeePerGas": "0x1",
		}},
	} {
		t.Run(name, func(t *testing.T) {
			err := cl.CallContext(ctx, &out, call[0].(string), call[1:]...)
			requireCode(t, err, ptypes.CodeInvalidParams)
		})
	}
}

func TestErrorKinds(t *testing.T) {
	ctx := context.Background()
	var out any

	b := &fakeBackend{err: fmt.Errorf("proof check: %w", ptypes.Integrity("account proof", eth.ErrProofMismatch))}
	err := dial(t, b).CallContext(ctx, &out, "eth_getBalance", addr, "latest")
	requireCode(t, err, ptypes.CodeIntegrity)

	b = &fakeBackend{err: &ptypes.ExecutionRevertedError{Reason: "nope", Data: []byte{0x08, 0xc3}}}
	err = dial(t, b).CallContext(ctx, &out, "eth_call", map[string]any{"to": addr})
	requireCode(t, err, ptypes.CodeExecutionReverted)
	var dataErr rpc.DataError
	require.ErrorAs(t, err, &dataErr)
	require.Equal(t, "0x08c3", dataErr.ErrorData())

	b = &fakeBackend{err: &ptypes.UpstreamError{Err: fmt.Errorf("connection refused")}}
	err = dial(t, b).CallContext(ctx, &out, "eth_blockNumber")
	requireCode(t, err, ptypes.CodeUpstream)
}

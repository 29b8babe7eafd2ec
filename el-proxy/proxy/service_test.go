package proxy

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/elciao/elciao/el-proxy/config"
	"github.com/elciao/elciao/el-proxy/proxy/feed"
	"github.com/elciao/elciao/el-proxy/proxy/notary"
	"github.com/elciao/elciao/el-service/testlog"
	"github.com/elciao/elciao/el-service/testutils"
)

const testChainID = 900

var holder = common.HexToAddress("0x00000000000000000000000000000000000000aa")

// startMockEL serves three empty blocks on top of a state where holder owns one ether.
func startMockEL(t *testing.T) (string, []*types.Block) {
	st := testutils.NewMockState(map[common.Address]*testutils.MockAccount{
		holder: {Nonce: 4, Balance: uint256.NewInt(params.Ether)},
	})
	el := testutils.NewMockEL(testChainID)
	var blocks []*types.Block
	var parent *types.Header
	for i := 0; i < 3; i++ {
		b := testutils.NewMockBlock(parent, st.Root(), nil, nil)
		el.AddBlock(b, nil, st)
		blocks = append(blocks, b)
		parent = b.Header()
	}
	url, err := el.Start()
	require.NoError(t, err)
	t.Cleanup(el.Close)
	return url, blocks
}

func testConfig(upstream string) *config.Config {
	cfg := config.DefaultCLIConfig()
	cfg.Version = "v0.0.1"
	cfg.Upstream.URL = upstream
	cfg.Upstream.DialAttempts = 1
	cfg.MetricsConfig.Enabled = true
	cfg.MetricsConfig.ListenAddr = "127.0.0.1"
	cfg.MetricsConfig.ListenPort = 0
	cfg.RPC.ListenAddr = "127.0.0.1"
	cfg.RPC.ListenPort = 0
	cfg.Feed.PollInterval = 20 * time.Millisecond
	return cfg
}

// TestService is a quick smoke-test to check the service is up, follows the upstream head and serves verified state.
func TestService(t *testing.T) {
	logger := testlog.Logger(t, log.LevelInfo)
	url, blocks := startMockEL(t)
	cfg := testConfig(url)
	cfg.Notary.Kind = notary.KindLog
	require.NoError(t, cfg.Check())

	srv, err := FromConfig(context.Background(), cfg, logger)
	require.NoError(t, err)
	require.Equal(t, uint64(testChainID), srv.ChainID())
	require.NoError(t, srv.Start(context.Background()))
	require.NotEmpty(t, srv.RPC())
	require.False(t, srv.Stopped())

	require.Eventually(t, func() bool {
		tip, ok := srv.TrustedTip()
		return ok && tip.Hash == blocks[2].Hash()
	}, 5*time.Second, 20*time.Millisecond)

	cl, err := rpc.Dial(srv.RPC())
	require.NoError(t, err)
	defer cl.Close()

	var chainID hexutil.Uint64
	require.NoError(t, cl.Call(&chainID, "eth_chainId"))
	require.Equal(t, hexutil.Uint64(testChainID), chainID)

	var version string
	require.NoError(t, cl.Call(&version, "net_version"))
	require.Equal(t, "900", version)

	var number hexutil.Uint64
	require.NoError(t, cl.Call(&number, "eth_blockNumber"))
	require.Equal(t, hexutil.Uint64(2), number)

	var balance hexutil.Big
	require.NoError(t, cl.Call(&balance, "eth_getBalance", holder, "latest"))
	require.Equal(t, big.NewInt(params.Ether), balance.ToInt())

	var nonce hexutil.Uint64
	require.NoError(t, cl.Call(&nonce, "eth_getTransactionCount", holder, "0x1"))
	require.Equal(t, hexutil.Uint64(4), nonce)

	require.NoError(t, srv.Stop(context.Background()))
	require.True(t, srv.Stopped())
	require.NoError(t, srv.Stop(context.Background()), "stopping twice is fine")
}

func TestServiceChainIDMismatch(t *testing.T) {
	logger := testlog.Logger(t, log.LevelInfo)
	url, _ := startMockEL(t)
	cfg := testConfig(url)
	cfg.ChainID = 1

	_, err := FromConfig(context.Background(), cfg, logger)
	require.ErrorContains(t, err, "expected chain 1")
}

func TestServiceCheckpoint(t *testing.T) {
	logger := testlog.Logger(t, log.LevelInfo)
	url, blocks := startMockEL(t)
	cfg := testConfig(url)
	cfg.Feed.Kind = feed.KindBeacon
	cfg.Feed.BeaconURL = "http://127.0.0.1:1"
	cfg.Feed.CheckpointHash = blocks[1].Hash()
	cfg.Feed.CheckpointNumber = 1

	srv, err := FromConfig(context.Background(), cfg, logger)
	require.NoError(t, err)
	tip, ok := srv.TrustedTip()
	require.True(t, ok)
	require.Equal(t, blocks[1].Hash(), tip.Hash)
	require.Equal(t, uint64(1), tip.Number)
	require.NoError(t, srv.Stop(context.Background()))
}

func TestServiceUnreachableUpstream(t *testing.T) {
	logger := testlog.Logger(t, log.LevelInfo)
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Upstream.DialPause = time.Millisecond

	_, err := FromConfig(context.Background(), cfg, logger)
	require.ErrorContains(t, err, "failed to connect to upstream")
}

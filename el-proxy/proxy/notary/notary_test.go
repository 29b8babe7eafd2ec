package notary

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/require"

	"github.com/elciao/elciao/el-proxy/proxy/feed"
	"github.com/elciao/elciao/el-service/eth"
	"github.com/elciao/elciao/el-service/testlog"
	"github.com/elciao/elciao/el-service/testutils"
)

func testBlock(t *testing.T) *eth.RPCBlock {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	to := common.Address{0xee}
	tx, err := types.SignNewTx(key, types.LatestSignerForChainID(big.NewInt(1)), &types.DynamicFeeTx{
		ChainID:   big.NewInt(1),
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(params.GWei),
		Gas:       params.TxGas,
		To:        &to,
	})
	require.NoError(t, err)
	b := testutils.NewMockBlock(nil, types.EmptyRootHash, types.Transactions{tx}, types.Receipts{{
		Status:            types.ReceiptStatusSuccessful,
		CumulativeGasUsed: params.TxGas,
		GasUsed:           params.TxGas,
		Logs:              []*types.Log{},
	}})
	withdrawals := types.Withdrawals{}
	return &eth.RPCBlock{
		RPCHeader:    eth.RPCHeader{Header: b.Header(), Hash: b.Hash()},
		Transactions: b.Transactions(),
		Withdrawals:  &withdrawals,
	}
}

var testBeacon = &feed.BeaconHeader{Slot: 96, ProposerIndex: 3, BodyRoot: common.Hash{0x07}}

func TestSummary(t *testing.T) {
	block := testBlock(t)
	s := NewSummary(block, testBeacon)
	require.Equal(t, "0", s.Execution.BlockNumber)
	require.Equal(t, "30000000", s.Execution.GasLimit)
	require.Equal(t, "21000", s.Execution.GasUsed)
	require.Equal(t, big.NewInt(params.InitialBaseFee).String(), s.Execution.BaseFeePerGas)
	require.Equal(t, block.Hash, s.Execution.BlockHash)
	require.Equal(t, []common.Hash{block.Transactions[0].Hash()}, s.Execution.Transactions)
	require.Equal(t, types.EmptyWithdrawalsHash, s.Execution.WithdrawalsRoot)
	require.Empty(t, s.Execution.Withdrawals)
	require.Equal(t, "96", s.Beacon.Slot)
	require.Equal(t, "3", s.Beacon.ProposerIndex)

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"slot":"96"`)
	require.Contains(t, string(raw), `"gasUsed":"21000"`)

	require.Nil(t, NewSummary(block, nil).Beacon)
}

func TestMessage(t *testing.T) {
	s := NewSummary(testBlock(t), testBeacon)
	setup := &SetupInfo{Admin: "admin", Network: "mainnet", Name: "node-1", RPCEndpoint: "http://localhost:8545"}

	msg := NewMessage(s, setup, 1)
	require.Equal(t, ActionSetUpNode, msg.Action)
	require.Equal(t, ActionSetUpNode, msg.Tag("Action"))
	require.Equal(t, "96", msg.Tag("Slot"))
	require.Equal(t, "0", msg.Tag("BlockNumber"))
	require.Equal(t, "1", msg.Tag("ChainId"))
	require.Equal(t, "node-1", msg.Tag("Name"))

	next := NewMessage(s, nil, 1)
	require.Equal(t, ActionIndexBlock, next.Action)
	require.Empty(t, next.Tag("Admin"))
	require.NotEqual(t, msg.ID, next.ID)
}

func TestHTTPSink(t *testing.T) {
	var got Message
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(status)
	}))
	defer srv.Close()

	msg := NewMessage(NewSummary(testBlock(t), nil), nil, 1)
	sink := NewHTTPSink(srv.URL, time.Second)
	require.NoError(t, sink.Deliver(context.Background(), msg))
	require.Equal(t, msg.ID, got.ID)
	require.Equal(t, msg.Data.Execution.BlockHash, got.Data.Execution.BlockHash)

	status = http.StatusServiceUnavailable
	require.ErrorContains(t, sink.Deliver(context.Background(), msg), "503")
}

func TestS3Sink(t *testing.T) {
	var (
		mu   sync.Mutex
		path string
		body []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusOK)
			return
		}
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		mu.Lock()
		path, body = r.URL.Path, data
		mu.Unlock()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink, err := NewS3Sink(S3Config{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		Bucket:    "blocks",
		Prefix:    "/mainnet/",
		Region:    "us-east-1",
		AccessKey: "key",
		SecretKey: "secret",
	})
	require.NoError(t, err)
	msg := NewMessage(NewSummary(testBlock(t), nil), nil, 1)
	require.NoError(t, sink.Deliver(context.Background(), msg))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "/blocks/mainnet/0-"+msg.Data.Execution.BlockHash.Hex()+".json", path)
	require.Contains(t, string(body), msg.ID.String())
}

type blockSource struct {
	block *eth.RPCBlock
	err   error
}

func (s *blockSource) VerifiedBlock(ctx context.Context, n uint64) (*eth.RPCBlock, error) {
	return s.block, s.err
}

type recordingSink struct {
	mu   sync.Mutex
	msgs []*Message
	fail int
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Deliver(ctx context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail > 0 {
		s.fail--
		return errors.New("sink down")
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *recordingSink) delivered() []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Message(nil), s.msgs...)
}

type deliveryMetrics struct {
	mu       sync.Mutex
	failures int
}

func (m *deliveryMetrics) RecordNotaryDelivery(sink string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.failures++
	}
}

func TestNotarizer(t *testing.T) {
	block := testBlock(t)
	sink := &recordingSink{fail: 1}
	m := &deliveryMetrics{}
	n := NewNotarizer(testlog.Logger(t, log.LevelDebug), m, &blockSource{block: block}, sink, DefaultConfig(), 1)
	n.Start()
	defer func() { require.NoError(t, n.Stop(context.Background())) }()

	ev := feed.Event{Hash: block.Hash, Number: 0, Beacon: testBeacon}
	n.Handle(ev) // fails, so the next message still sets up the node
	n.Handle(ev)
	n.Handle(ev)
	n.Handle(feed.Event{Hash: common.Hash{0x01}, Number: 0}) // replaced, skipped

	require.Eventually(t, func() bool {
		return len(sink.delivered()) == 2
	}, 5*time.Second, 10*time.Millisecond)
	msgs := sink.delivered()
	require.Equal(t, ActionSetUpNode, msgs[0].Action)
	require.Equal(t, ActionIndexBlock, msgs[1].Action)
	m.mu.Lock()
	require.Equal(t, 1, m.failures)
	m.mu.Unlock()
}

func TestNotarizerSourceError(t *testing.T) {
	sink := &recordingSink{}
	m := &deliveryMetrics{}
	n := NewNotarizer(testlog.Logger(t, log.LevelDebug), m, &blockSource{err: errors.New("not trusted")}, sink, DefaultConfig(), 1)
	n.Start()
	defer func() { require.NoError(t, n.Stop(context.Background())) }()

	n.Handle(feed.Event{Number: 5})
	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.failures == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.Empty(t, sink.delivered())
}

func TestConfigCheck(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Check())
	require.False(t, cfg.Enabled())
	sink, err := NewSink(testlog.Logger(t, log.LevelDebug), cfg)
	require.NoError(t, err)
	require.Nil(t, sink)

	cfg.Kind = KindHTTP
	require.ErrorContains(t, cfg.Check(), "requires a URL")
	cfg.Kind = KindS3
	require.ErrorContains(t, cfg.Check(), "bucket")
	cfg.Kind = "ao"
	require.ErrorContains(t, cfg.Check(), "unknown notary kind")

	cfg.Kind = KindLog
	require.NoError(t, cfg.Check())
	sink, err = NewSink(testlog.Logger(t, log.LevelDebug), cfg)
	require.NoError(t, err)
	require.Equal(t, "log", sink.Name())
}

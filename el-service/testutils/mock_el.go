package testutils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ethereum/go-ethereum/trie"
)

var errUnknownBlock = errors.New("unknown block")

// MockEL is an untrusted execution layer JSON-RPC endpoint serving a fixed set of blocks and states.
// Results can be tampered with through OnResult, to test verification.
type MockEL struct {
	mu         sync.Mutex
	chainID    uint64
	blocks     map[common.Hash]*types.Block
	byNumber   map[uint64]common.Hash
	states     map[uint64]*MockState
	receipts   map[common.Hash]*types.Receipt
	head       uint64
	accessList types.AccessList
	sent       []hexutil.Bytes
	calls      map[string]int

	// OnResult may replace the result of a call before it is served.
	OnResult func(method string, result any) any

	server *httptest.Server
}

func NewMockEL(chainID uint64) *MockEL {
	el := &MockEL{
		chainID:  chainID,
		blocks:   make(map[common.Hash]*types.Block),
		byNumber: make(map[uint64]common.Hash),
		states:   make(map[uint64]*MockState),
		receipts: make(map[common.Hash]*types.Receipt),
		calls:    make(map[string]int),
	}
	return el
}

// Start serves the endpoint over HTTP and returns its URL. The server is closed with Close.
func (el *MockEL) Start() (string, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName("eth", &mockEthAPI{el: el}); err != nil {
		return "", err
	}
	if err := srv.RegisterName("net", &mockNetAPI{el: el}); err != nil {
		return "", err
	}
	el.server = httptest.NewServer(srv)
	return el.server.URL, nil
}

func (el *MockEL) Close() {
	if el.server != nil {
		el.server.Close()
	}
}

// AddBlock adds a block, its receipts and the state after it. The block becomes the head if it is the highest.
// The receipts get their derived fields filled in.
func (el *MockEL) AddBlock(block *types.Block, receipts types.Receipts, state *MockState) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.blocks[block.Hash()] = block
	el.byNumber[block.NumberU64()] = block.Hash()
	if state != nil {
		el.states[block.NumberU64()] = state
	}
	for i, r := range receipts {
		tx := block.Transactions()[i]
		r.TxHash = tx.Hash()
		r.Type = tx.Type()
		r.BlockHash = block.Hash()
		r.BlockNumber = block.Number()
		r.TransactionIndex = uint(i)
		el.receipts[tx.Hash()] = r
	}
	if block.NumberU64() >= el.head {
		el.head = block.NumberU64()
	}
}

// SetAccessList sets the access list that eth_createAccessList serves.
func (el *MockEL) SetAccessList(al types.AccessList) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.accessList = al
}

// Calls returns how often a method was called, batch elements included.
func (el *MockEL) Calls(method string) int {
	el.mu.Lock()
	defer el.mu.Unlock()
	return el.calls[method]
}

// Sent returns the raw transactions received by eth_sendRawTransaction.
func (el *MockEL) Sent() []hexutil.Bytes {
	el.mu.Lock()
	defer el.mu.Unlock()
	return append([]hexutil.Bytes(nil), el.sent...)
}

// record counts the call, must hold el.mu.
func (el *MockEL) record(method string) {
	el.calls[method]++
}

func (el *MockEL) result(method string, res any) any {
	if el.OnResult != nil {
		return el.OnResult(method, res)
	}
	return res
}

func (el *MockEL) blockNumber(tag string) (uint64, error) {
	switch tag {
	case "latest", "safe", "finalized", "pending", "":
		return el.head, nil
	case "earliest":
		return 0, nil
	}
	return hexutil.DecodeUint64(tag)
}

// RenderBlock renders a block the way eth_getBlockByHash and eth_getBlockByNumber do.
func RenderBlock(b *types.Block, fullTx bool) (map[string]any, error) {
	raw, err := json.Marshal(b.Header())
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	txs := make([]any, 0, len(b.Transactions()))
	for _, tx := range b.Transactions() {
		if fullTx {
			txs = append(txs, tx)
		} else {
			txs = append(txs, tx.Hash())
		}
	}
	out["transactions"] = txs
	out["uncles"] = []common.Hash{}
	out["size"] = hexutil.Uint64(b.Size())
	if b.Withdrawals() != nil {
		out["withdrawals"] = b.Withdrawals()
	}
	return out, nil
}

// NewMockBlock builds a post-merge block on top of parent.
func NewMockBlock(parent *types.Header, stateRoot common.Hash, txs types.Transactions, receipts types.Receipts) *types.Block {
	number := new(big.Int)
	parentHash := common.Hash{}
	ts := uint64(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix())
	if parent != nil {
		number.Add(parent.Number, common.Big1)
		parentHash = parent.Hash()
		ts = parent.Time + 12
	}
	header := &types.Header{
		ParentHash: parentHash,
		Coinbase:   common.Address{0xc0},
		Root:       stateRoot,
		Number:     number,
		GasLimit:   30_000_000,
		Time:       ts,
		Difficulty: new(big.Int),
		MixDigest:  common.BigToHash(number),
		BaseFee:    big.NewInt(params.InitialBaseFee),
	}
	for _, r := range receipts {
		header.GasUsed += r.GasUsed
	}
	body := &types.Body{Transactions: txs, Withdrawals: types.Withdrawals{}}
	return types.NewBlock(header, body, receipts, trie.NewStackTrie(nil))
}

type mockNetAPI struct {
	el *MockEL
}

func (api *mockNetAPI) Version() string {
	api.el.mu.Lock()
	defer api.el.mu.Unlock()
	api.el.record("net_version")
	return fmt.Sprintf("%d", api.el.chainID)
}

type mockEthAPI struct {
	el *MockEL
}

func (api *mockEthAPI) ChainId() hexutil.Uint64 {
	api.el.mu.Lock()
	defer api.el.mu.Unlock()
	api.el.record("eth_chainId")
	return hexutil.Uint64(api.el.chainID)
}

func (api *mockEthAPI) BlockNumber() hexutil.Uint64 {
	api.el.mu.Lock()
	defer api.el.mu.Unlock()
	api.el.record("eth_blockNumber")
	return hexutil.Uint64(api.el.head)
}

func (api *mockEthAPI) GetProof(ctx context.Context, addr common.Address, keys []common.Hash, block string) (any, error) {
	el := api.el
	el.mu.Lock()
	defer el.mu.Unlock()
	el.record("eth_getProof")
	n, err := el.blockNumber(block)
	if err != nil {
		return nil, err
	}
	st, ok := el.states[n]
	if !ok {
		return nil, errUnknownBlock
	}
	res, err := st.Proof(addr, keys)
	if err != nil {
		return nil, err
	}
	return el.result("eth_getProof", res), nil
}

func (api *mockEthAPI) GetCode(ctx context.Context, addr common.Address, block string) (any, error) {
	el := api.el
	el.mu.Lock()
	defer el.mu.Unlock()
	el.record("eth_getCode")
	n, err := el.blockNumber(block)
	if err != nil {
		return nil, err
	}
	st, ok := el.states[n]
	if !ok {
		return nil, errUnknownBlock
	}
	return el.result("eth_getCode", hexutil.Bytes(st.Code(addr))), nil
}

func (api *mockEthAPI) CreateAccessList(ctx context.Context, args map[string]any, block string) (any, error) {
	el := api.el
	el.mu.Lock()
	defer el.mu.Unlock()
	el.record("eth_createAccessList")
	al := el.accessList
	if al == nil {
		al = types.AccessList{}
	}
	return el.result("eth_createAccessList", map[string]any{
		"accessList": al,
		"gasUsed":    hexutil.Uint64(21000),
	}), nil
}

func (api *mockEthAPI) GetBlockByHash(ctx context.Context, hash common.Hash, fullTx bool) (any, error) {
	el := api.el
	el.mu.Lock()
	defer el.mu.Unlock()
	el.record("eth_getBlockByHash")
	b, ok := el.blocks[hash]
	if !ok {
		return nil, nil
	}
	out, err := RenderBlock(b, fullTx)
	if err != nil {
		return nil, err
	}
	return el.result("eth_getBlockByHash", out), nil
}

func (api *mockEthAPI) GetBlockByNumber(ctx context.Context, block string, fullTx bool) (any, error) {
	el := api.el
	el.mu.Lock()
	defer el.mu.Unlock()
	el.record("eth_getBlockByNumber")
	n, err := el.blockNumber(block)
	if err != nil {
		return nil, err
	}
	hash, ok := el.byNumber[n]
	if !ok {
		return nil, nil
	}
	out, err := RenderBlock(el.blocks[hash], fullTx)
	if err != nil {
		return nil, err
	}
	return el.result("eth_getBlockByNumber", out), nil
}

func (api *mockEthAPI) GetTransactionReceipt(ctx context.Context, hash common.Hash) (any, error) {
	el := api.el
	el.mu.Lock()
	defer el.mu.Unlock()
	el.record("eth_getTransactionReceipt")
	r, ok := el.receipts[hash]
	if !ok {
		return nil, nil
	}
	return el.result("eth_getTransactionReceipt", r), nil
}

func (api *mockEthAPI) GetBlockReceipts(ctx context.Context, block string) (any, error) {
	el := api.el
	el.mu.Lock()
	defer el.mu.Unlock()
	el.record("eth_getBlockReceipts")
	var b *types.Block
	if len(block) == 66 {
		b = el.blocks[common.HexToHash(block)]
	} else if n, err := el.blockNumber(block); err == nil {
		b = el.blocks[el.byNumber[n]]
	}
	if b == nil {
		return nil, nil
	}
	out := make([]*types.Receipt, 0, len(b.Transactions()))
	for _, tx := range b.Transactions() {
		out = append(out, el.receipts[tx.Hash()])
	}
	return el.result("eth_getBlockReceipts", out), nil
}

func (api *mockEthAPI) SendRawTransaction(ctx context.Context, raw hexutil.Bytes) (common.Hash, error) {
	el := api.el
	el.mu.Lock()
	defer el.mu.Unlock()
	el.record("eth_sendRawTransaction")
	var tx types.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, err
	}
	el.sent = append(el.sent, raw)
	return tx.Hash(), nil
}

// Package execution builds verified EVM state for a single call, and runs the call on it.
package execution

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/holiman/uint256"

	ptypes "github.com/elciao/elciao/el-proxy/proxy/backend/types"
	"github.com/elciao/elciao/el-service/eth"
)

// Upstream is the untrusted endpoint that proofs and code are fetched from.
type Upstream interface {
	Request(ctx context.Context, result any, method string, args ...any) error
	RequestBatch(ctx context.Context, batch []rpc.BatchElem) error
}

type Builder struct {
	log   log.Logger
	cfg   Config
	up    Upstream
	chain *params.ChainConfig
}

func NewBuilder(lgr log.Logger, cfg Config, up Upstream, chainID uint64) *Builder {
	return &Builder{
		log:   lgr,
		cfg:   cfg,
		up:    up,
		chain: ChainConfig(chainID),
	}
}

type verifiedAccount struct {
	nonce       uint64
	balance     *uint256.Int
	codeHash    common.Hash
	storageHash common.Hash
	code        []byte
	storage     map[common.Hash]common.Hash
	empty       bool
}

// Snapshot holds the verified accounts, storage and code for one call at one block.
type Snapshot struct {
	header   *types.Header
	set      *accessSet
	accounts map[common.Address]*verifiedAccount
}

func newSnapshot(header *types.Header) *Snapshot {
	return &Snapshot{
		header:   header,
		set:      newAccessSet(),
		accounts: make(map[common.Address]*verifiedAccount),
	}
}

// Accounts returns the verified accounts, in the order they were requested.
func (s *Snapshot) Accounts() []common.Address {
	return append([]common.Address(nil), s.set.order...)
}

// Slots returns the verified storage keys of addr, in the order they were requested.
func (s *Snapshot) Slots(addr common.Address) []common.Hash {
	return append([]common.Hash(nil), s.set.keys[addr]...)
}

// Balance returns the verified balance of addr, if it was verified.
func (s *Snapshot) Balance(addr common.Address) (*uint256.Int, bool) {
	acc, ok := s.accounts[addr]
	if !ok {
		return nil, false
	}
	return acc.balance.Clone(), true
}

// Storage returns the verified value of a storage slot, if it was verified.
func (s *Snapshot) Storage(addr common.Address, key common.Hash) (common.Hash, bool) {
	if !s.set.containsSlot(addr, key) {
		return common.Hash{}, false
	}
	return s.accounts[addr].storage[key], true
}

func (s *Snapshot) add(res *eth.AccountResult, keys []common.Hash, code []byte) {
	acc, ok := s.accounts[res.Address]
	if !ok {
		acc = &verifiedAccount{
			nonce:       uint64(res.Nonce),
			balance:     uint256.MustFromBig(res.Balance.ToInt()),
			codeHash:    res.CodeHash,
			storageHash: res.StorageHash,
			code:        code,
			storage:     make(map[common.Hash]common.Hash),
			empty:       res.IsEmpty(),
		}
		s.accounts[res.Address] = acc
	}
	s.set.addAddress(res.Address)
	for i, key := range keys {
		acc.storage[key] = common.BigToHash(res.StorageProof[i].Value.ToInt())
		s.set.addSlot(res.Address, key)
	}
}

// stateDB creates a fresh in-memory state holding exactly the verified entries.
// The entries are finalised, so they count as the state before the call.
func (s *Snapshot) stateDB() (*state.StateDB, error) {
	db := state.NewDatabase(triedb.NewDatabase(rawdb.NewMemoryDatabase(), nil), nil)
	sdb, err := state.New(types.EmptyRootHash, db)
	if err != nil {
		return nil, fmt.Errorf("failed to create state: %w", err)
	}
	for _, addr := range s.set.order {
		acc := s.accounts[addr]
		if acc.empty {
			continue
		}
		sdb.SetNonce(addr, acc.nonce, tracing.NonceChangeUnspecified)
		sdb.SetBalance(addr, acc.balance.Clone(), tracing.BalanceChangeUnspecified)
		if len(acc.code) > 0 {
			sdb.SetCode(addr, acc.code)
		}
		for _, key := range s.set.keys[addr] {
			if v := acc.storage[key]; v != (common.Hash{}) {
				sdb.SetState(addr, key, v)
			}
		}
	}
	sdb.Finalise(true)
	return sdb, nil
}

// Build fetches, verifies and collects the state that a call needs:
// the caller, the callee, the call's own access list and the access list reported by the upstream.
func (b *Builder) Build(ctx context.Context, header *types.Header, args *ptypes.TransactionArgs) (*Snapshot, error) {
	al, err := b.fetchAccessList(ctx, args, header.Number.Uint64())
	if err != nil {
		return nil, err
	}
	set := newAccessSet()
	set.addAddress(args.FromOrZero())
	if args.To != nil {
		set.addAddress(*args.To)
	}
	if args.AccessList != nil {
		set.addList(*args.AccessList)
	}
	set.addList(al)

	snap := newSnapshot(header)
	if err := b.load(ctx, snap, set); err != nil {
		return nil, err
	}
	return snap, nil
}

// load fetches the proof and code of every account of set in one batch, verifies them against
// the state root of the snapshot, and adds them to the snapshot. Nothing is added if any check fails.
func (b *Builder) load(ctx context.Context, snap *Snapshot, set *accessSet) error {
	number := hexutil.Uint64(snap.header.Number.Uint64())
	proofs := make([]*eth.AccountResult, len(set.order))
	codes := make([]hexutil.Bytes, len(set.order))
	batch := make([]rpc.BatchElem, 0, 2*len(set.order))
	for i, addr := range set.order {
		keys := set.keys[addr]
		if keys == nil {
			keys = []common.Hash{}
		}
		batch = append(batch,
			rpc.BatchElem{Method: "eth_getProof", Args: []any{addr, keys, number}, Result: &proofs[i]},
			rpc.BatchElem{Method: "eth_getCode", Args: []any{addr, number}, Result: &codes[i]},
		)
	}
	if err := b.up.RequestBatch(ctx, batch); err != nil {
		return ptypes.FromUpstream(err)
	}
	for i, addr := range set.order {
		res := proofs[i]
		if res == nil {
			return ptypes.Integrity("account proof", fmt.Errorf("no proof served for account %s", addr))
		}
		if err := res.VerifyAccount(addr, set.keys[addr], snap.header.Root); err != nil {
			return ptypes.Integrity("account proof", err)
		}
		if err := eth.VerifyCode(codes[i], res.CodeHash); err != nil {
			return ptypes.Integrity("account code", fmt.Errorf("code of %s: %w", addr, err))
		}
		if res.Balance.ToInt().BitLen() > 256 {
			return ptypes.Integrity("account proof", fmt.Errorf("balance of %s exceeds 256 bits", addr))
		}
	}
	for i, addr := range set.order {
		snap.add(proofs[i], set.keys[addr], codes[i])
	}
	b.log.Debug("Loaded verified state", "block", snap.header.Number, "accounts", len(set.order), "entries", set.size())
	return nil
}

// creditSender makes sure the sender can pay for the gas and value of msg.
func creditSender(sdb *state.StateDB, from common.Address, gas uint64, feeCap, value *big.Int) error {
	need := new(big.Int).Mul(new(big.Int).SetUint64(gas), feeCap)
	need.Add(need, value)
	amount, overflow := uint256.FromBig(need)
	if overflow {
		return ptypes.InvalidParams("gas cost and value exceed 256 bits")
	}
	balance := sdb.GetBalance(from)
	if balance.Cmp(amount) >= 0 {
		return nil
	}
	sdb.SetBalance(from, amount, tracing.BalanceChangeUnspecified)
	return nil
}

package testutils

import (
	"fmt"
	"maps"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/holiman/uint256"

	"github.com/elciao/elciao/el-service/eth"
)

// MockAccount is the plain content of an account in a MockState.
type MockAccount struct {
	Nonce   uint64
	Balance *uint256.Int
	Code    []byte
	Storage map[common.Hash]common.Hash
}

// MockState is a state trie built from a fixed set of accounts, that can serve eth_getProof style proofs.
type MockState struct {
	accounts map[common.Address]*MockAccount
	trie     *trie.Trie
	storage  map[common.Address]*trie.Trie
	root     common.Hash
}

type proofList []hexutil.Bytes

func (n *proofList) Put(key []byte, value []byte) error {
	*n = append(*n, common.CopyBytes(value))
	return nil
}

func (n *proofList) Delete(key []byte) error {
	panic("not supported")
}

func newMemoryTrie() *trie.Trie {
	return trie.NewEmpty(triedb.NewDatabase(rawdb.NewMemoryDatabase(), nil))
}

func mustEncode(v any) []byte {
	out, err := rlp.EncodeToBytes(v)
	if err != nil {
		panic(fmt.Errorf("failed to encode %T: %w", v, err))
	}
	return out
}

func NewMockState(accounts map[common.Address]*MockAccount) *MockState {
	s := &MockState{
		accounts: maps.Clone(accounts),
		trie:     newMemoryTrie(),
		storage:  make(map[common.Address]*trie.Trie),
	}
	for _, addr := range slices.SortedFunc(maps.Keys(accounts), func(a, b common.Address) int { return a.Cmp(b) }) {
		acc := accounts[addr]
		st := newMemoryTrie()
		for k, v := range acc.Storage {
			if v == (common.Hash{}) {
				continue
			}
			st.MustUpdate(crypto.Keccak256(k[:]), mustEncode(common.TrimLeftZeroes(v[:])))
		}
		s.storage[addr] = st
		balance := acc.Balance
		if balance == nil {
			balance = new(uint256.Int)
		}
		codeHash := types.EmptyCodeHash
		if len(acc.Code) > 0 {
			codeHash = crypto.Keccak256Hash(acc.Code)
		}
		s.trie.MustUpdate(crypto.Keccak256(addr[:]), mustEncode(&types.StateAccount{
			Nonce:    acc.Nonce,
			Balance:  balance,
			Root:     st.Hash(),
			CodeHash: codeHash[:],
		}))
	}
	s.root = s.trie.Hash()
	return s
}

func (s *MockState) Root() common.Hash {
	return s.root
}

// Code returns the code of addr, nil if the account does not exist or has no code.
func (s *MockState) Code(addr common.Address) []byte {
	if acc, ok := s.accounts[addr]; ok {
		return acc.Code
	}
	return nil
}

// Proof returns the account proof of addr and the storage proofs of keys, as eth_getProof does.
func (s *MockState) Proof(addr common.Address, keys []common.Hash) (*eth.AccountResult, error) {
	var accProof proofList
	if err := s.trie.Prove(crypto.Keccak256(addr[:]), &accProof); err != nil {
		return nil, fmt.Errorf("failed to prove account %s: %w", addr, err)
	}
	res := &eth.AccountResult{
		AccountProof: accProof,
		Address:      addr,
		Balance:      new(hexutil.Big),
		CodeHash:     types.EmptyCodeHash,
		StorageHash:  types.EmptyRootHash,
		StorageProof: make([]eth.StorageProofEntry, 0, len(keys)),
	}
	acc, exists := s.accounts[addr]
	if exists {
		if acc.Balance != nil {
			res.Balance = (*hexutil.Big)(acc.Balance.ToBig())
		}
		res.Nonce = hexutil.Uint64(acc.Nonce)
		if len(acc.Code) > 0 {
			res.CodeHash = crypto.Keccak256Hash(acc.Code)
		}
		res.StorageHash = s.storage[addr].Hash()
	}
	for _, k := range keys {
		entry := eth.StorageProofEntry{Key: common.CopyBytes(k[:]), Proof: []hexutil.Bytes{}}
		if exists {
			var sp proofList
			if err := s.storage[addr].Prove(crypto.Keccak256(k[:]), &sp); err != nil {
				return nil, fmt.Errorf("failed to prove slot %s of %s: %w", k, addr, err)
			}
			entry.Proof = sp
			v := acc.Storage[k]
			entry.Value = hexutil.Big(*v.Big())
		}
		res.StorageProof = append(res.StorageProof, entry)
	}
	return res, nil
}

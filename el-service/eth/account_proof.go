package eth

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
)

var (
	ErrProofMismatch = errors.New("proof does not match the claimed value")
	ErrCodeMismatch  = errors.New("code does not match the code hash")
)

type StorageProofEntry struct {
	Key   hexutil.Bytes   `json:"key"`
	Value hexutil.Big     `json:"value"`
	Proof []hexutil.Bytes `json:"proof"`
}

// AccountResult is the result of eth_getProof, see https://eips.ethereum.org/EIPS/eip-1186
type AccountResult struct {
	AccountProof []hexutil.Bytes `json:"accountProof"`

	Address     common.Address `json:"address"`
	Balance     *hexutil.Big   `json:"balance"`
	CodeHash    common.Hash    `json:"codeHash"`
	Nonce       hexutil.Uint64 `json:"nonce"`
	StorageHash common.Hash    `json:"storageHash"`

	// Optional
	StorageProof []StorageProofEntry `json:"storageProof,omitempty"`
}

// IsEmpty reports whether the claimed account is the canonical empty account.
func (res *AccountResult) IsEmpty() bool {
	return res.Nonce == 0 &&
		(res.Balance == nil || res.Balance.ToInt().Sign() == 0) &&
		res.StorageHash == types.EmptyRootHash &&
		res.CodeHash == types.EmptyCodeHash
}

func (res *AccountResult) normalize() {
	if res.Balance == nil {
		res.Balance = new(hexutil.Big)
	}
}

// verifyProof walks the proof nodes from the root along the path, and returns the leaf value, or nil if absent.
// The empty trie proves the absence of every key, whatever the proof nodes are.
func verifyProof(root common.Hash, path []byte, nodes []hexutil.Bytes) ([]byte, error) {
	if root == types.EmptyRootHash {
		return nil, nil
	}
	// load all MPT nodes into a DB, keyed by node hash
	db := memorydb.New()
	for i, encodedNode := range nodes {
		if err := db.Put(crypto.Keccak256(encodedNode), encodedNode); err != nil {
			return nil, fmt.Errorf("failed to load proof node %d into mem db: %w", i, err)
		}
	}
	return trie.VerifyProof(root, path, db)
}

// VerifyAccount checks that the proof was served for the given address and storage keys (in order),
// and verifies it against the state root.
func (res *AccountResult) VerifyAccount(address common.Address, storageKeys []common.Hash, stateRoot common.Hash) error {
	if res.Address != address {
		return fmt.Errorf("proof is for account %s, expected %s", res.Address, address)
	}
	if len(res.StorageProof) != len(storageKeys) {
		return fmt.Errorf("got %d storage proofs, expected %d", len(res.StorageProof), len(storageKeys))
	}
	for i, key := range storageKeys {
		if got := common.BytesToHash(res.StorageProof[i].Key); got != key {
			return fmt.Errorf("storage proof %d is for key %s, expected %s", i, got, key)
		}
	}
	return res.Verify(stateRoot)
}

// Verify an account (and optionally storage) proof from the getProof RPC.
// The account leaf must match the claimed nonce, balance, storage root and code hash.
// An account that is absent from the state trie must claim the empty account.
func (res *AccountResult) Verify(stateRoot common.Hash) error {
	res.normalize()

	// verify storage proof values, if any, against the storage trie root hash of the account
	for i, entry := range res.StorageProof {
		path := crypto.Keccak256(common.BytesToHash(entry.Key).Bytes())
		val, err := verifyProof(res.StorageHash, path, entry.Proof)
		if err != nil {
			return fmt.Errorf("failed to verify storage value %d with key %s (path %x) in storage trie %s: %w", i, entry.Key, path, res.StorageHash, err)
		}
		claimed := entry.Value.ToInt()
		if claimed.Sign() < 0 {
			return fmt.Errorf("%w: negative storage value %d", ErrProofMismatch, i)
		}
		if val == nil {
			// empty storage is zero by default
			if claimed.Sign() == 0 {
				continue
			}
			return fmt.Errorf("%w: storage value %d with key %s is absent, but claimed %s", ErrProofMismatch, i, entry.Key, claimed)
		}
		comparison, err := rlp.EncodeToBytes(claimed.Bytes())
		if err != nil {
			return fmt.Errorf("failed to encode storage value %d with key %s (path %x) in storage trie %s: %w", i, entry.Key, path, res.StorageHash, err)
		}
		if !bytes.Equal(val, comparison) {
			return fmt.Errorf("%w: storage value %d with key %s (path %x) in storage trie %s is %x, but claimed %x",
				ErrProofMismatch, i, entry.Key, path, res.StorageHash, val, comparison)
		}
	}

	path := crypto.Keccak256(res.Address[:])
	accountProofValue, err := verifyProof(stateRoot, path, res.AccountProof)
	if err != nil {
		return fmt.Errorf("failed to verify account value with key %s (path %x) in account trie %s: %w", res.Address, path, stateRoot, err)
	}
	if accountProofValue == nil {
		if !res.IsEmpty() {
			return fmt.Errorf("%w: account %s is absent from state %s, but claimed non-empty", ErrProofMismatch, res.Address, stateRoot)
		}
		return nil
	}

	balance := res.Balance.ToInt()
	if balance.Sign() < 0 {
		return fmt.Errorf("%w: negative balance", ErrProofMismatch)
	}
	accountClaimed := []any{uint64(res.Nonce), balance.Bytes(), res.StorageHash, res.CodeHash}
	accountClaimedValue, err := rlp.EncodeToBytes(accountClaimed)
	if err != nil {
		return fmt.Errorf("failed to encode account from retrieved values: %w", err)
	}
	if !bytes.Equal(accountClaimedValue, accountProofValue) {
		return fmt.Errorf("%w: account proof of %s does not match provided deserialized values:\n"+
			"  claimed: %x\n"+
			"  proof:   %x", ErrProofMismatch, res.Address, accountClaimedValue, accountProofValue)
	}
	return nil
}

// VerifyCode checks the code against a code hash. Empty code must come with the canonical empty code hash.
func VerifyCode(code []byte, codeHash common.Hash) error {
	if len(code) == 0 {
		if codeHash != types.EmptyCodeHash {
			return fmt.Errorf("%w: empty code, but code hash is %s", ErrCodeMismatch, codeHash)
		}
		return nil
	}
	if computed := crypto.Keccak256Hash(code); computed != codeHash {
		return fmt.Errorf("%w: computed %s, expected %s", ErrCodeMismatch, computed, codeHash)
	}
	return nil
}

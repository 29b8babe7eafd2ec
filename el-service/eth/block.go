package eth

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/trie"
)

// RPCHeader is a header as served by eth_getBlockByHash / eth_getBlockByNumber,
// together with the hash that the server claims for it.
// The claimed hash is not trusted until Verify succeeds.
type RPCHeader struct {
	Header *types.Header
	// Hash is the hash as reported by the server.
	Hash common.Hash
}

func (hdr *RPCHeader) UnmarshalJSON(data []byte) error {
	var h types.Header
	if err := json.Unmarshal(data, &h); err != nil {
		return fmt.Errorf("failed to decode header: %w", err)
	}
	var claimed struct {
		Hash *common.Hash `json:"hash"`
	}
	if err := json.Unmarshal(data, &claimed); err != nil {
		return fmt.Errorf("failed to decode header hash: %w", err)
	}
	if claimed.Hash == nil {
		return errors.New("header is missing hash field")
	}
	hdr.Header = &h
	hdr.Hash = *claimed.Hash
	return nil
}

// Verify checks that the header content hashes to the claimed hash.
func (hdr *RPCHeader) Verify() error {
	if computed := hdr.Header.Hash(); computed != hdr.Hash {
		return fmt.Errorf("failed to verify block hash: computed %s but RPC said %s", computed, hdr.Hash)
	}
	return nil
}

func (hdr *RPCHeader) BlockID() BlockID {
	return BlockID{Hash: hdr.Hash, Number: hdr.Header.Number.Uint64()}
}

// RPCBlock is a block with full transaction objects, as served by eth_getBlockByNumber(n, true).
type RPCBlock struct {
	RPCHeader
	Transactions []*types.Transaction
	Withdrawals  *types.Withdrawals
	// Uncles are passed through as reported, they are not part of the verified body.
	Uncles []common.Hash
}

func (block *RPCBlock) UnmarshalJSON(data []byte) error {
	if err := block.RPCHeader.UnmarshalJSON(data); err != nil {
		return err
	}
	var body struct {
		Transactions []*types.Transaction `json:"transactions"`
		Withdrawals  *types.Withdrawals   `json:"withdrawals,omitempty"`
		Uncles       []common.Hash        `json:"uncles"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return fmt.Errorf("failed to decode block body: %w", err)
	}
	block.Transactions = body.Transactions
	block.Withdrawals = body.Withdrawals
	block.Uncles = body.Uncles
	return nil
}

// Verify checks the header hash, and the transactions and withdrawals against the roots in the header.
func (block *RPCBlock) Verify() error {
	if err := block.RPCHeader.Verify(); err != nil {
		return err
	}
	for i, tx := range block.Transactions {
		if tx == nil {
			return fmt.Errorf("block tx %d is null", i)
		}
	}
	if computed := types.DeriveSha(types.Transactions(block.Transactions), trie.NewStackTrie(nil)); block.Header.TxHash != computed {
		return fmt.Errorf("failed to verify transactions list: computed %s but RPC said %s", computed, block.Header.TxHash)
	}
	if block.Header.WithdrawalsHash != nil {
		if block.Withdrawals == nil {
			return errors.New("expected withdrawals")
		}
		for i, w := range *block.Withdrawals {
			if w == nil {
				return fmt.Errorf("block withdrawal %d is null", i)
			}
		}
		if computed := types.DeriveSha(*block.Withdrawals, trie.NewStackTrie(nil)); *block.Header.WithdrawalsHash != computed {
			return fmt.Errorf("failed to verify withdrawals list: computed %s but RPC said %s", computed, block.Header.WithdrawalsHash)
		}
	} else if block.Withdrawals != nil {
		return fmt.Errorf("expected no withdrawals due to missing withdrawals-root, but got %d", len(*block.Withdrawals))
	}
	return nil
}

// Block assembles the verified parts into a go-ethereum block. Uncle headers are not available.
func (block *RPCBlock) Block() *types.Block {
	body := types.Body{Transactions: block.Transactions}
	if block.Withdrawals != nil {
		body.Withdrawals = *block.Withdrawals
	}
	return types.NewBlockWithHeader(block.Header).WithBody(body)
}

// TxIndex returns the position of the transaction in the block, or -1.
func (block *RPCBlock) TxIndex(txHash common.Hash) int {
	for i, tx := range block.Transactions {
		if tx.Hash() == txHash {
			return i
		}
	}
	return -1
}

// TxHashes returns the hashes of the transactions, as computed from their content.
func (block *RPCBlock) TxHashes() []common.Hash {
	out := make([]common.Hash, len(block.Transactions))
	for i, tx := range block.Transactions {
		out[i] = tx.Hash()
	}
	return out
}

package testutils

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ethereum/go-ethereum/params"
)

// SimulatedChain is an in-memory chain that seals a block on every Commit.
// It serves headers and head subscriptions the way an execution layer client does.
type SimulatedChain struct {
	backend *simulated.Backend
	simulated.Client
	key *ecdsa.PrivateKey
}

// NewSimulatedChain funds a generated account, and each of the given accounts, in the genesis block.
func NewSimulatedChain(balances map[common.Address]*big.Int) (*SimulatedChain, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	alloc := types.GenesisAlloc{
		crypto.PubkeyToAddress(key.PublicKey): {Balance: new(big.Int).Mul(big.NewInt(100), big.NewInt(params.Ether))},
	}
	for addr, bal := range balances {
		alloc[addr] = types.Account{Balance: bal}
	}
	backend := simulated.NewBackend(alloc, simulated.WithBlockGasLimit(30_000_000))
	return &SimulatedChain{
		backend: backend,
		Client:  backend.Client(),
		key:     key,
	}, nil
}

func (c *SimulatedChain) Key() *ecdsa.PrivateKey {
	return c.key
}

// Commit seals a new block and returns its hash.
func (c *SimulatedChain) Commit() common.Hash {
	return c.backend.Commit()
}

func (c *SimulatedChain) Close() error {
	return c.backend.Close()
}

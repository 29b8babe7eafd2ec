package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	ptypes "github.com/elciao/elciao/el-proxy/proxy/backend/types"
)

// accessSet is an ordered set of accounts, each with an ordered set of storage keys.
type accessSet struct {
	order []common.Address
	keys  map[common.Address][]common.Hash
	seen  map[common.Address]map[common.Hash]struct{}
}

func newAccessSet() *accessSet {
	return &accessSet{
		keys: make(map[common.Address][]common.Hash),
		seen: make(map[common.Address]map[common.Hash]struct{}),
	}
}

func (s *accessSet) addAddress(addr common.Address) {
	if _, ok := s.seen[addr]; ok {
		return
	}
	s.order = append(s.order, addr)
	s.seen[addr] = make(map[common.Hash]struct{})
}

func (s *accessSet) addSlot(addr common.Address, key common.Hash) {
	s.addAddress(addr)
	if _, ok := s.seen[addr][key]; ok {
		return
	}
	s.seen[addr][key] = struct{}{}
	s.keys[addr] = append(s.keys[addr], key)
}

func (s *accessSet) addList(al types.AccessList) {
	for _, tuple := range al {
		s.addAddress(tuple.Address)
		for _, key := range tuple.StorageKeys {
			s.addSlot(tuple.Address, key)
		}
	}
}

func (s *accessSet) containsAddress(addr common.Address) bool {
	_, ok := s.seen[addr]
	return ok
}

func (s *accessSet) containsSlot(addr common.Address, key common.Hash) bool {
	_, ok := s.seen[addr][key]
	return ok
}

// size is the number of accounts plus the number of storage keys.
func (s *accessSet) size() int {
	n := len(s.order)
	for _, keys := range s.keys {
		n += len(keys)
	}
	return n
}

// missing returns the entries of al that are not in s.
// An account that is in s, but misses some keys, is included with only the missing keys.
func (s *accessSet) missing(al types.AccessList) *accessSet {
	out := newAccessSet()
	for _, tuple := range al {
		if !s.containsAddress(tuple.Address) {
			out.addAddress(tuple.Address)
		}
		for _, key := range tuple.StorageKeys {
			if !s.containsSlot(tuple.Address, key) {
				out.addSlot(tuple.Address, key)
			}
		}
	}
	return out
}

func (s *accessSet) merge(o *accessSet) {
	for _, addr := range o.order {
		s.addAddress(addr)
		for _, key := range o.keys[addr] {
			s.addSlot(addr, key)
		}
	}
}

type accessListResult struct {
	AccessList json.RawMessage `json:"accessList"`
	GasUsed    hexutil.Uint64  `json:"gasUsed"`
	Error      string          `json:"error,omitempty"`
}

// fetchAccessList asks the upstream which accounts and storage slots the call accesses.
// The list is untrusted: it only decides what gets fetched and proven.
func (b *Builder) fetchAccessList(ctx context.Context, args *ptypes.TransactionArgs, number uint64) (types.AccessList, error) {
	tx := map[string]any{"from": args.FromOrZero()}
	if args.To != nil {
		tx["to"] = *args.To
	}
	if data := args.CallData(); len(data) > 0 {
		tx["input"] = hexutil.Bytes(data)
	}
	if args.Value != nil {
		tx["value"] = args.Value
	}
	if args.Gas != nil {
		tx["gas"] = args.Gas
	}
	var res accessListResult
	if err := b.up.Request(ctx, &res, "eth_createAccessList", tx, hexutil.Uint64(number)); err != nil {
		err = ptypes.FromUpstream(err)
		var unsupported *ptypes.UnsupportedMethodError
		if errors.As(err, &unsupported) && b.cfg.VerifyAccessList {
			b.log.Debug("Upstream does not serve access lists, discovering accesses by execution")
			return nil, nil
		}
		return nil, err
	}
	if res.Error != "" {
		b.log.Debug("Upstream access list execution failed", "err", res.Error)
	}
	return parseAccessList(res.AccessList, b.cfg.MaxAccessListEntries)
}

type rawAccessTuple struct {
	Address     string   `json:"address"`
	StorageKeys []string `json:"storageKeys"`
}

// parseAccessList strictly decodes an upstream access list: 20-byte addresses, 32-byte keys, at most limit entries.
func parseAccessList(raw json.RawMessage, limit int) (types.AccessList, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var tuples []rawAccessTuple
	if err := json.Unmarshal(raw, &tuples); err != nil {
		return nil, ptypes.Integrity("access list", fmt.Errorf("malformed access list: %w", err))
	}
	entries := 0
	out := make(types.AccessList, 0, len(tuples))
	for i, t := range tuples {
		addr, err := hexutil.Decode(t.Address)
		if err != nil || len(addr) != common.AddressLength {
			return nil, ptypes.Integrity("access list", fmt.Errorf("entry %d has invalid address %q", i, t.Address))
		}
		tuple := types.AccessTuple{Address: common.BytesToAddress(addr), StorageKeys: make([]common.Hash, 0, len(t.StorageKeys))}
		for j, k := range t.StorageKeys {
			key, err := hexutil.Decode(k)
			if err != nil || len(key) != common.HashLength {
				return nil, ptypes.Integrity("access list", fmt.Errorf("entry %d has invalid storage key %d %q", i, j, k))
			}
			tuple.StorageKeys = append(tuple.StorageKeys, common.BytesToHash(key))
		}
		entries += 1 + len(tuple.StorageKeys)
		if entries > limit {
			return nil, ptypes.Integrity("access list", fmt.Errorf("access list exceeds %d entries", limit))
		}
		out = append(out, tuple)
	}
	return out, nil
}

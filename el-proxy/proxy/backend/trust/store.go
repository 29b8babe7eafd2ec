// Package trust maintains the window of block headers that queries are verified against.
//
// The trust feed delivers anchors: (hash, number) pointers that are trusted as given.
// Headers below an anchor are trusted by walking parent hashes down from it, each header
// verified to hash to the expected value.
package trust

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	ptypes "github.com/elciao/elciao/el-proxy/proxy/backend/types"
	"github.com/elciao/elciao/el-service/caching"
	"github.com/elciao/elciao/el-service/eth"
)

var (
	// ErrNotSynced is returned while no trusted block is known yet.
	ErrNotSynced = errors.New("no trusted block yet")
	// ErrUnknownBlock is returned for blocks that are not (or no longer) in the trusted window.
	ErrUnknownBlock = errors.New("block is not in the trusted window")
)

// HeaderSource fetches untrusted header data.
type HeaderSource interface {
	Request(ctx context.Context, result any, method string, args ...any) error
}

type Metrics interface {
	caching.Metrics
	RecordTrustedTip(number uint64, hash common.Hash)
	RecordReorg(kind string)
	RecordPendingWaits(n int)
}

// Reorg describes a trusted number that now maps to a different hash.
type Reorg struct {
	Number  uint64
	OldHash common.Hash
	NewHash common.Hash
	// Derived is set when the overwritten entry was filled in by an ancestor walk, not delivered by the feed.
	Derived bool
}

// Store owns the trusted header index, the trusted tip, the header cache and the pending waits.
type Store struct {
	log log.Logger
	m   Metrics
	cfg Config
	src HeaderSource

	// anchors are delivered by the trust feed, derived entries are filled in by ancestor walks.
	anchors *caching.OrderCache[common.Hash]
	derived *caching.OrderCache[common.Hash]
	headers *caching.LRUCache[common.Hash, *types.Header]

	mu      sync.Mutex
	synced  bool
	tip     eth.BlockID
	waits   map[uint64]chan struct{}
	onReorg []func(Reorg)
}

func NewStore(lgr log.Logger, m Metrics, cfg Config, src HeaderSource) *Store {
	return &Store{
		log:     lgr,
		m:       m,
		cfg:     cfg,
		src:     src,
		anchors: caching.NewOrderCache[common.Hash](m, "anchors"),
		derived: caching.NewOrderCache[common.Hash](m, "derived"),
		headers: caching.NewLRUCache[common.Hash, *types.Header](m, "headers", cfg.headerCacheSize()),
		waits:   make(map[uint64]chan struct{}),
	}
}

// OnReorg registers a callback for reorgs. Callbacks run outside the store lock, on the goroutine calling Advance.
func (s *Store) OnReorg(fn func(Reorg)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReorg = append(s.onReorg, fn)
}

// Tip returns the trusted tip, and false if there is none yet.
func (s *Store) Tip() (eth.BlockID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tip, s.synced
}

// Advance records a trusted (hash, number) pointer.
// A different hash for an already trusted number is a reorg: it is logged and overwritten.
// When the number is above the tip, the tip moves up and all waits up to the new tip are released.
// Duplicate and out-of-order deliveries are fine.
func (s *Store) Advance(hash common.Hash, number uint64) {
	s.mu.Lock()
	if s.synced && s.tip.Number > s.cfg.HistoryDepth && number < s.tip.Number-s.cfg.HistoryDepth {
		s.mu.Unlock()
		s.log.Debug("Ignoring trusted block below the history window", "number", number, "tip", s.tip)
		return
	}
	var reorgs []Reorg
	if prev, replaced := s.anchors.Put(number, hash); replaced && prev != hash {
		reorgs = append(reorgs, Reorg{Number: number, OldHash: prev, NewHash: hash})
	} else if prev, ok := s.derived.Get(number); ok && prev != hash {
		reorgs = append(reorgs, Reorg{Number: number, OldHash: prev, NewHash: hash, Derived: true})
	}
	if !s.synced || number >= s.tip.Number {
		oldTip, wasSynced := s.tip.Number, s.synced
		s.tip = eth.BlockID{Hash: hash, Number: number}
		s.synced = true
		s.releaseWaits(oldTip, wasSynced, number)
		if number > s.cfg.HistoryDepth {
			floor := number - s.cfg.HistoryDepth
			s.anchors.RemoveLessThan(floor)
			s.derived.RemoveLessThan(floor)
		}
		s.m.RecordTrustedTip(number, hash)
	}
	callbacks := slices.Clone(s.onReorg)
	s.mu.Unlock()

	for _, r := range reorgs {
		s.reportReorg(r, callbacks)
	}
}

// releaseWaits closes the waits for all numbers in (oldTip, newTip], lowest first. Must hold s.mu.
func (s *Store) releaseWaits(oldTip uint64, wasSynced bool, newTip uint64) {
	var ready []uint64
	for n := range s.waits {
		if n <= newTip && (!wasSynced || n > oldTip) {
			ready = append(ready, n)
		}
	}
	slices.Sort(ready)
	for _, n := range ready {
		close(s.waits[n])
		delete(s.waits, n)
	}
	s.m.RecordPendingWaits(len(s.waits))
}

func (s *Store) reportReorg(r Reorg, callbacks []func(Reorg)) {
	kind := "anchored"
	if r.Derived {
		kind = "derived"
	}
	s.log.Warn("Trusted block hash changed, overwriting", "number", r.Number, "old", r.OldHash, "new", r.NewHash, "kind", kind)
	s.m.RecordReorg(kind)
	for _, fn := range callbacks {
		fn(r)
	}
}

// Await returns once the tip is at or above number.
// All callers waiting for the same number share one wait, released by one Advance.
// No timeout is applied here: the context only ends the wait early, e.g. on shutdown.
func (s *Store) Await(ctx context.Context, number uint64) error {
	s.mu.Lock()
	if s.synced && number <= s.tip.Number {
		s.mu.Unlock()
		return nil
	}
	ch, ok := s.waits[number]
	if !ok {
		ch = make(chan struct{})
		s.waits[number] = ch
		s.m.RecordPendingWaits(len(s.waits))
	}
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pendingWait returns the wait registered for number, if any. Used in tests.
func (s *Store) pendingWait(number uint64) (chan struct{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.waits[number]
	return ch, ok
}

// ResolveBlock maps a block parameter to a trusted block number.
// Numbers up to FutureTolerance ahead of the tip are accepted; callers Await them before use.
func (s *Store) ResolveBlock(param eth.BlockParam) (uint64, error) {
	s.mu.Lock()
	tip, synced := s.tip, s.synced
	s.mu.Unlock()
	if !param.IsNumber() && !param.IsLatest() {
		return 0, ptypes.InvalidParams("block tag %q is unsupported", param.Tag)
	}
	if !synced {
		return 0, &ptypes.UpstreamError{Err: ErrNotSynced}
	}
	if param.IsLatest() {
		return tip.Number, nil
	}
	n := param.Number
	if n > tip.Number+s.cfg.FutureTolerance {
		return 0, ptypes.InvalidParams("block number %d is out of window: more than %d ahead of the trusted tip %d",
			n, s.cfg.FutureTolerance, tip.Number)
	}
	if tip.Number > s.cfg.HistoryDepth && n < tip.Number-s.cfg.HistoryDepth {
		return 0, ptypes.InvalidParams("block number %d is out of window: more than %d behind the trusted tip %d",
			n, s.cfg.HistoryDepth, tip.Number)
	}
	return n, nil
}

// HeaderByHash returns the header with the given hash, fetched from the source the first time.
// The header content must hash to the requested hash. This does not mean the hash is trusted:
// use HashForNumber or TrustedNumber for that.
func (s *Store) HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error) {
	if hdr, ok := s.headers.Get(hash); ok {
		return hdr, nil
	}
	hdr, err := s.fetchHeader(ctx, hash)
	if err != nil {
		return nil, err
	}
	s.headers.Add(hash, hdr)
	return hdr, nil
}

// fetchHeader fetches and checks the header with the given hash, without caching it.
func (s *Store) fetchHeader(ctx context.Context, hash common.Hash) (*types.Header, error) {
	var res *eth.RPCHeader
	if err := s.src.Request(ctx, &res, "eth_getBlockByHash", hash, false); err != nil {
		if errors.Is(eth.MaybeAsNotFoundErr(err), ethereum.NotFound) {
			return nil, ethereum.NotFound
		}
		return nil, ptypes.FromUpstream(err)
	}
	if res == nil {
		return nil, ethereum.NotFound
	}
	if res.Hash != hash {
		return nil, ptypes.Integrity("block header", fmt.Errorf("requested header %s, but got %s", hash, res.Hash))
	}
	if err := res.Verify(); err != nil {
		return nil, ptypes.Integrity("block header", err)
	}
	return res.Header, nil
}

// HashForNumber returns the trusted hash of the block at number.
// Below the anchors, the hash is found by walking parent hashes down from the nearest anchor.
func (s *Store) HashForNumber(ctx context.Context, number uint64) (common.Hash, error) {
	if h, ok := s.anchors.Get(number); ok {
		return h, nil
	}
	anchorNum, anchorHash, ok := s.anchors.Ceil(number)
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: no trusted block at or above %d", ErrUnknownBlock, number)
	}
	cur := anchorHash
	for n := anchorNum; n > number; n-- {
		hdr, err := s.HeaderByHash(ctx, cur)
		if errors.Is(err, ethereum.NotFound) {
			return common.Hash{}, &ptypes.UpstreamError{Err: fmt.Errorf("trusted block %d (%s) not found upstream", n, cur)}
		}
		if err != nil {
			return common.Hash{}, err
		}
		if hdr.Number.Uint64() != n {
			return common.Hash{}, ptypes.Integrity("block header", fmt.Errorf("header %s has number %d, expected %d", cur, hdr.Number, n))
		}
		parent := hdr.ParentHash
		if prev, replaced := s.derived.Put(n-1, parent); replaced && prev != parent {
			s.mu.Lock()
			callbacks := slices.Clone(s.onReorg)
			s.mu.Unlock()
			s.reportReorg(Reorg{Number: n - 1, OldHash: prev, NewHash: parent, Derived: true}, callbacks)
		}
		cur = parent
	}
	return cur, nil
}

// Header returns the trusted header at number.
func (s *Store) Header(ctx context.Context, number uint64) (*types.Header, error) {
	hash, err := s.HashForNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	hdr, err := s.HeaderByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, &ptypes.UpstreamError{Err: fmt.Errorf("trusted block %d (%s) not found upstream", number, hash)}
	}
	return hdr, err
}

// TrustedNumber reports whether hash is the trusted block hash at its height, and returns that height.
// Unknown hashes, hashes outside the window, and hashes of non-canonical blocks are not trusted.
// Only trusted headers enter the header cache.
func (s *Store) TrustedNumber(ctx context.Context, hash common.Hash) (uint64, bool, error) {
	hdr, cached := s.headers.Get(hash)
	var err error
	if !cached {
		hdr, err = s.fetchHeader(ctx, hash)
	}
	if errors.Is(err, ethereum.NotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n := hdr.Number.Uint64()
	if _, err := s.ResolveBlock(eth.NumberBlock(n)); err != nil {
		return 0, false, nil
	}
	if tip, _ := s.Tip(); n > tip.Number {
		return 0, false, nil
	}
	trusted, err := s.HashForNumber(ctx, n)
	if errors.Is(err, ErrUnknownBlock) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if trusted != hash {
		return 0, false, nil
	}
	if !cached {
		s.headers.Add(hash, hdr)
	}
	return n, true, nil
}

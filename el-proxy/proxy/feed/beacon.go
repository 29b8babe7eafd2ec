package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/go-resty/resty/v2"
)

const (
	finalityUpdatePath   = "/eth/v1/beacon/light_client/finality_update"
	optimisticUpdatePath = "/eth/v1/beacon/light_client/optimistic_update"
)

// Uint64String is a uint64 encoded as a decimal JSON string, as in the beacon API.
type Uint64String uint64

func (v Uint64String) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(v), 10))
}

func (v *Uint64String) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("expected decimal string: %w", err)
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return err
	}
	*v = Uint64String(n)
	return nil
}

type BeaconHeader struct {
	Slot          Uint64String `json:"slot"`
	ProposerIndex Uint64String `json:"proposer_index"`
	ParentRoot    common.Hash  `json:"parent_root"`
	StateRoot     common.Hash  `json:"state_root"`
	BodyRoot      common.Hash  `json:"body_root"`
}

// ExecutionPayloadHeader is the part of the payload header that the feed reads.
type ExecutionPayloadHeader struct {
	BlockHash   common.Hash   `json:"block_hash"`
	BlockNumber Uint64String  `json:"block_number"`
	StateRoot   common.Hash   `json:"state_root"`
	ExtraData   hexutil.Bytes `json:"extra_data"`
}

type LightClientHeader struct {
	Beacon    BeaconHeader            `json:"beacon"`
	Execution *ExecutionPayloadHeader `json:"execution"`
}

type lightClientUpdate struct {
	Version string `json:"version"`
	Data    struct {
		AttestedHeader  *LightClientHeader `json:"attested_header"`
		FinalizedHeader *LightClientHeader `json:"finalized_header"`
	} `json:"data"`
}

// BeaconPoller trusts the execution payloads of the light client updates of a beacon node.
// Updates are taken as served: sync committee signatures are checked by the beacon node, not here.
type BeaconPoller struct {
	log        log.Logger
	client     *resty.Client
	optimistic bool
	interval   time.Duration
	last       common.Hash
}

func NewBeaconPoller(lgr log.Logger, url string, optimistic bool, interval time.Duration) *BeaconPoller {
	client := resty.New().
		SetBaseURL(url).
		SetHeader("Accept", "application/json").
		SetTimeout(10 * time.Second)
	return &BeaconPoller{
		log:        lgr,
		client:     client,
		optimistic: optimistic,
		interval:   interval,
	}
}

func (p *BeaconPoller) Name() string {
	if p.optimistic {
		return "beacon-optimistic"
	}
	return "beacon-finality"
}

// Latest fetches the header of the latest light client update.
func (p *BeaconPoller) Latest(ctx context.Context) (*LightClientHeader, error) {
	path := finalityUpdatePath
	if p.optimistic {
		path = optimisticUpdatePath
	}
	var update lightClientUpdate
	resp, err := p.client.R().SetContext(ctx).SetResult(&update).Get(path)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch light client update: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("beacon node returned %s: %s", resp.Status(), resp.String())
	}
	hdr := update.Data.FinalizedHeader
	if p.optimistic {
		hdr = update.Data.AttestedHeader
	}
	if hdr == nil {
		return nil, errors.New("light client update has no header")
	}
	if hdr.Execution == nil {
		return nil, fmt.Errorf("light client header of slot %d has no execution payload header (version %q)", hdr.Beacon.Slot, update.Version)
	}
	return hdr, nil
}

func (p *BeaconPoller) Run(ctx context.Context, emit Handler) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		hdr, err := p.Latest(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.log.Warn("Failed to poll beacon node", "err", err)
			}
		} else if hdr.Execution.BlockHash != p.last {
			p.last = hdr.Execution.BlockHash
			beacon := hdr.Beacon
			emit(Event{
				Hash:   hdr.Execution.BlockHash,
				Number: uint64(hdr.Execution.BlockNumber),
				Beacon: &beacon,
			})
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

package feed

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type Kind string

const (
	// KindExecution trusts the head of the upstream execution layer. For development only.
	KindExecution Kind = "execution"
	// KindBeacon trusts the execution payload of the light client updates of a beacon node.
	KindBeacon Kind = "beacon"
)

var Kinds = []Kind{KindExecution, KindBeacon}

const DefaultPollInterval = 13 * time.Second

type Config struct {
	Kind Kind `toml:"kind" yaml:"kind" cli:"feed.kind"`
	// ExecutionWS is an optional websocket endpoint to subscribe to new heads, instead of polling.
	ExecutionWS string `toml:"execution-ws" yaml:"execution-ws" cli:"feed.execution-ws"`
	// BeaconURL is the REST API of the beacon node.
	BeaconURL string `toml:"beacon-url" yaml:"beacon-url" cli:"feed.beacon-url"`
	// Optimistic follows the attested header of optimistic updates, instead of the finalized header.
	Optimistic   bool          `toml:"optimistic" yaml:"optimistic" cli:"feed.optimistic"`
	PollInterval time.Duration `toml:"poll-interval" yaml:"poll-interval" cli:"feed.poll-interval"`

	// CheckpointHash and CheckpointNumber seed the trust store at startup.
	CheckpointHash   common.Hash `toml:"checkpoint-hash" yaml:"checkpoint-hash" cli:"trust.checkpoint-hash"`
	CheckpointNumber uint64      `toml:"checkpoint-number" yaml:"checkpoint-number" cli:"trust.checkpoint-number"`
}

func DefaultConfig() Config {
	return Config{
		Kind:         KindExecution,
		PollInterval: DefaultPollInterval,
	}
}

func (c *Config) Check() error {
	switch c.Kind {
	case KindExecution:
	case KindBeacon:
		if c.BeaconURL == "" {
			return errors.New("beacon feed requires a beacon node URL")
		}
	default:
		return fmt.Errorf("unknown trust feed kind %q, expected one of %v", c.Kind, Kinds)
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	return nil
}

// HasCheckpoint reports whether a checkpoint is configured.
func (c *Config) HasCheckpoint() bool {
	return c.CheckpointHash != (common.Hash{})
}

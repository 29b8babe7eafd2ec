package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/elciao/elciao/el-proxy/proxy/backend/execution"
	"github.com/elciao/elciao/el-proxy/proxy/backend/trust"
	"github.com/elciao/elciao/el-proxy/proxy/feed"
	"github.com/elciao/elciao/el-proxy/proxy/notary"
	"github.com/elciao/elciao/el-service/client"
	oplog "github.com/elciao/elciao/el-service/log"
	opmetrics "github.com/elciao/elciao/el-service/metrics"
	oprpc "github.com/elciao/elciao/el-service/rpc"
)

type UpstreamConfig struct {
	// URL is the untrusted execution layer JSON-RPC endpoint.
	URL string `toml:"url" yaml:"url" cli:"upstream.url"`
	// DialAttempts is how often dialing the upstream is tried at startup.
	DialAttempts int           `toml:"dial-attempts" yaml:"dial-attempts" cli:"upstream.dial-attempts"`
	DialPause    time.Duration `toml:"dial-pause" yaml:"dial-pause" cli:"upstream.dial-pause"`

	client.ResilientConfig `toml:"client" yaml:"client"`
}

type Config struct {
	Version string `toml:"-" yaml:"-"`

	// ChainID is the chain the upstream must serve. Zero accepts the chain ID reported by the upstream.
	ChainID uint64 `toml:"chain-id" yaml:"chain-id" cli:"chain-id"`
	// StrictReceipts verifies receipt contents against the receipts root of the block.
	StrictReceipts bool `toml:"strict-receipts" yaml:"strict-receipts" cli:"strict-receipts"`

	LogConfig     oplog.CLIConfig     `toml:"-" yaml:"-"`
	MetricsConfig opmetrics.CLIConfig `toml:"metrics" yaml:"metrics"`
	RPC           oprpc.CLIConfig     `toml:"rpc" yaml:"rpc"`

	Upstream  UpstreamConfig   `toml:"upstream" yaml:"upstream"`
	Trust     trust.Config     `toml:"trust" yaml:"trust"`
	Execution execution.Config `toml:"execution" yaml:"execution"`
	Feed      feed.Config      `toml:"feed" yaml:"feed"`
	Notary    notary.Config    `toml:"notary" yaml:"notary"`
}

func (c *Config) Check() error {
	var result error
	if c.Upstream.URL == "" {
		result = errors.Join(result, errors.New("upstream URL is required"))
	}
	if c.Upstream.DialAttempts < 1 {
		result = errors.Join(result, errors.New("upstream dial attempts must be at least 1"))
	}
	result = errors.Join(result, c.MetricsConfig.Check())
	result = errors.Join(result, c.RPC.Check())
	if err := c.Upstream.ResilientConfig.Check(); err != nil {
		result = errors.Join(result, fmt.Errorf("upstream client: %w", err))
	}
	if err := c.Trust.Check(); err != nil {
		result = errors.Join(result, fmt.Errorf("trust: %w", err))
	}
	if err := c.Execution.Check(); err != nil {
		result = errors.Join(result, fmt.Errorf("execution: %w", err))
	}
	if err := c.Feed.Check(); err != nil {
		result = errors.Join(result, fmt.Errorf("feed: %w", err))
	}
	if err := c.Notary.Check(); err != nil {
		result = errors.Join(result, fmt.Errorf("notary: %w", err))
	}
	return result
}

func DefaultCLIConfig() *Config {
	return &Config{
		Version:       "dev",
		LogConfig:     oplog.DefaultCLIConfig(),
		MetricsConfig: opmetrics.DefaultCLIConfig(),
		RPC:           oprpc.DefaultCLIConfig(),
		Upstream: UpstreamConfig{
			DialAttempts:    10,
			DialPause:       time.Second,
			ResilientConfig: client.DefaultResilientConfig(),
		},
		Trust:     trust.DefaultConfig(),
		Execution: execution.DefaultConfig(),
		Feed:      feed.DefaultConfig(),
		Notary:    notary.DefaultConfig(),
	}
}

package rpc

import (
	"errors"
	"math"

	"github.com/urfave/cli/v2"

	elservice "github.com/elciao/elciao/el-service"
)

const (
	ListenAddrFlagName  = "rpc.addr"
	PortFlagName        = "rpc.port"
	EnableWSFlagName    = "rpc.enable-ws"
	CORSFlagName        = "rpc.cors"
	VHostsFlagName      = "rpc.vhosts"
	BodyLimitFlagName   = "rpc.body-limit"
	BatchLimitFlagName  = "rpc.batch-limit"
	defaultListenAddr   = "0.0.0.0"
	defaultListenPort   = 3000
	defaultBodyLimit    = 5 * 1024 * 1024
	defaultBatchLimit   = 100
	defaultBatchRespMax = 25 * 1024 * 1024
)

var ErrInvalidPort = errors.New("invalid RPC port")

func CLIFlags(envPrefix string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    ListenAddrFlagName,
			Usage:   "RPC listening address",
			EnvVars: elservice.PrefixEnvVar(envPrefix, "RPC_ADDR"),
			Value:   defaultListenAddr,
		},
		&cli.IntFlag{
			Name:    PortFlagName,
			Usage:   "RPC listening port",
			EnvVars: elservice.PrefixEnvVar(envPrefix, "RPC_PORT"),
			Value:   defaultListenPort,
		},
		&cli.BoolFlag{
			Name:    EnableWSFlagName,
			Usage:   "Serve the RPC over websocket upgrades too",
			EnvVars: elservice.PrefixEnvVar(envPrefix, "RPC_ENABLE_WS"),
		},
		&cli.StringSliceFlag{
			Name:    CORSFlagName,
			Usage:   "Allowed CORS origins",
			EnvVars: elservice.PrefixEnvVar(envPrefix, "RPC_CORS"),
			Value:   cli.NewStringSlice(wildcardHosts...),
		},
		&cli.StringSliceFlag{
			Name:    VHostsFlagName,
			Usage:   "Allowed virtual hostnames",
			EnvVars: elservice.PrefixEnvVar(envPrefix, "RPC_VHOSTS"),
			Value:   cli.NewStringSlice(wildcardHosts...),
		},
		&cli.IntFlag{
			Name:    BodyLimitFlagName,
			Usage:   "Maximum size of an RPC request body, in bytes",
			EnvVars: elservice.PrefixEnvVar(envPrefix, "RPC_BODY_LIMIT"),
			Value:   defaultBodyLimit,
		},
		&cli.IntFlag{
			Name:    BatchLimitFlagName,
			Usage:   "Maximum number of calls in one incoming RPC batch",
			EnvVars: elservice.PrefixEnvVar(envPrefix, "RPC_BATCH_LIMIT"),
			Value:   defaultBatchLimit,
		},
	}
}

type CLIConfig struct {
	ListenAddr     string   `toml:"addr" yaml:"addr" cli:"rpc.addr"`
	ListenPort     int      `toml:"port" yaml:"port" cli:"rpc.port"`
	EnableWS       bool     `toml:"enable-ws" yaml:"enable-ws" cli:"rpc.enable-ws"`
	CORSHosts      []string `toml:"cors" yaml:"cors" cli:"rpc.cors"`
	VHosts         []string `toml:"vhosts" yaml:"vhosts" cli:"rpc.vhosts"`
	BodyLimit      int      `toml:"body-limit" yaml:"body-limit" cli:"rpc.body-limit"`
	BatchItemLimit int      `toml:"batch-limit" yaml:"batch-limit" cli:"rpc.batch-limit"`
	BatchRespLimit int      `toml:"batch-response-limit" yaml:"batch-response-limit"`
}

func DefaultCLIConfig() CLIConfig {
	return CLIConfig{
		ListenAddr:     defaultListenAddr,
		ListenPort:     defaultListenPort,
		CORSHosts:      wildcardHosts,
		VHosts:         wildcardHosts,
		BodyLimit:      defaultBodyLimit,
		BatchItemLimit: defaultBatchLimit,
		BatchRespLimit: defaultBatchRespMax,
	}
}

func (c CLIConfig) Check() error {
	if c.ListenPort < 0 || c.ListenPort > math.MaxUint16 {
		return ErrInvalidPort
	}
	if c.BodyLimit < 0 || c.BatchItemLimit < 0 {
		return errors.New("RPC limits must not be negative")
	}
	return nil
}

// Options translates the config into handler options.
func (c CLIConfig) Options() []Option {
	opts := []Option{
		WithCORSHosts(c.CORSHosts),
		WithVHosts(c.VHosts),
		WithHTTPBodyLimit(c.BodyLimit),
		WithBatchLimits(c.BatchItemLimit, c.BatchRespLimit),
	}
	if c.EnableWS {
		opts = append(opts, WithWebsocketEnabled())
	}
	return opts
}

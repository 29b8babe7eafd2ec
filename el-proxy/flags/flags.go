package flags

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"github.com/elciao/elciao/el-proxy/config"
	"github.com/elciao/elciao/el-proxy/proxy/backend/execution"
	"github.com/elciao/elciao/el-proxy/proxy/backend/trust"
	"github.com/elciao/elciao/el-proxy/proxy/feed"
	"github.com/elciao/elciao/el-proxy/proxy/notary"
	elservice "github.com/elciao/elciao/el-service"
	"github.com/elciao/elciao/el-service/client"
	"github.com/elciao/elciao/el-service/cliutil"
	oplog "github.com/elciao/elciao/el-service/log"
	opmetrics "github.com/elciao/elciao/el-service/metrics"
	oprpc "github.com/elciao/elciao/el-service/rpc"
)

const EnvVarPrefix = "EL_PROXY"

const (
	UpstreamCategory  = "1. UPSTREAM"
	TrustCategory     = "2. TRUST"
	ExecutionCategory = "3. EXECUTION"
	NotaryCategory    = "4. NOTARY"
)

func prefixEnvVars(name string) []string {
	return elservice.PrefixEnvVar(EnvVarPrefix, name)
}

var (
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "Configuration file path, TOML or YAML. Flags override values from the file",
		EnvVars: prefixEnvVars("CONFIG"),
	}
	EnvFileFlag = &cli.StringFlag{
		Name:    "env-file",
		Usage:   "Dotenv file with EL_PROXY_* variables, loaded before flags are parsed",
		EnvVars: prefixEnvVars("ENV_FILE"),
		Value:   ".env",
	}
	ChainIDFlag = &cli.Uint64Flag{
		Name:    "chain-id",
		Usage:   "Chain ID the upstream must serve. Zero accepts the chain ID of the upstream",
		EnvVars: prefixEnvVars("CHAIN_ID"),
	}
	StrictReceiptsFlag = &cli.BoolFlag{
		Name:    "strict-receipts",
		Usage:   "Verify the contents of receipts against the receipts root, using eth_getBlockReceipts",
		EnvVars: prefixEnvVars("STRICT_RECEIPTS"),
	}
)

func upstreamFlags() []cli.Flag {
	def := config.DefaultCLIConfig().Upstream
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "upstream.url",
			Usage:    "HTTP(S) or websocket URL of the untrusted execution layer node",
			EnvVars:  prefixEnvVars("UPSTREAM_URL"),
			Category: UpstreamCategory,
		},
		&cli.IntFlag{
			Name:     "upstream.dial-attempts",
			Usage:    "Attempts to reach the upstream at startup",
			EnvVars:  prefixEnvVars("UPSTREAM_DIAL_ATTEMPTS"),
			Value:    def.DialAttempts,
			Category: UpstreamCategory,
		},
		&cli.DurationFlag{
			Name:     "upstream.dial-pause",
			Usage:    "Pause between attempts to reach the upstream at startup",
			EnvVars:  prefixEnvVars("UPSTREAM_DIAL_PAUSE"),
			Value:    def.DialPause,
			Category: UpstreamCategory,
		},
		&cli.IntFlag{
			Name:     "upstream.retry-budget",
			Usage:    "Attempts per upstream call, including the first one",
			EnvVars:  prefixEnvVars("UPSTREAM_RETRY_BUDGET"),
			Value:    client.DefaultRetryBudget,
			Category: UpstreamCategory,
		},
		&cli.DurationFlag{
			Name:     "upstream.retry-interval",
			Usage:    "Pause between attempts of an upstream call",
			EnvVars:  prefixEnvVars("UPSTREAM_RETRY_INTERVAL"),
			Category: UpstreamCategory,
		},
		&cli.IntFlag{
			Name:     "upstream.batch-size",
			Usage:    "Maximum number of calls per batched upstream request",
			EnvVars:  prefixEnvVars("UPSTREAM_BATCH_SIZE"),
			Value:    client.DefaultBatchSize,
			Category: UpstreamCategory,
		},
		&cli.BoolFlag{
			Name:     "upstream.batching",
			Usage:    "Send JSON-RPC batches to the upstream. Disable for upstreams that reject batches",
			EnvVars:  prefixEnvVars("UPSTREAM_BATCHING"),
			Value:    true,
			Category: UpstreamCategory,
		},
		&cli.IntFlag{
			Name:     "upstream.max-concurrent-batches",
			Usage:    "Maximum number of batched requests in flight for one query",
			EnvVars:  prefixEnvVars("UPSTREAM_MAX_CONCURRENT_BATCHES"),
			Value:    client.DefaultConcurrency,
			Category: UpstreamCategory,
		},
		&cli.Float64Flag{
			Name:     "upstream.rate-limit",
			Usage:    "Maximum upstream requests per second. Zero disables rate limiting",
			EnvVars:  prefixEnvVars("UPSTREAM_RATE_LIMIT"),
			Category: UpstreamCategory,
		},
		&cli.IntFlag{
			Name:     "upstream.rate-burst",
			Usage:    "Burst size of the upstream rate limit",
			EnvVars:  prefixEnvVars("UPSTREAM_RATE_BURST"),
			Category: UpstreamCategory,
		},
		&cli.StringSliceFlag{
			Name:     "upstream.unsupported-methods",
			Usage:    "Methods the upstream does not serve. They fail without contacting the upstream",
			EnvVars:  prefixEnvVars("UPSTREAM_UNSUPPORTED_METHODS"),
			Category: UpstreamCategory,
		},
	}
}

func trustFlags() []cli.Flag {
	def := trust.DefaultConfig()
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "feed.kind",
			Usage:    fmt.Sprintf("Source of trusted block hashes, one of %v", feed.Kinds),
			EnvVars:  prefixEnvVars("FEED_KIND"),
			Value:    string(feed.KindExecution),
			Category: TrustCategory,
		},
		&cli.StringFlag{
			Name:     "feed.execution-ws",
			Usage:    "Websocket URL to subscribe to new heads with, instead of polling the upstream",
			EnvVars:  prefixEnvVars("FEED_EXECUTION_WS"),
			Category: TrustCategory,
		},
		&cli.StringFlag{
			Name:     "feed.beacon-url",
			Usage:    "Beacon node REST API, for the beacon feed",
			EnvVars:  prefixEnvVars("FEED_BEACON_URL"),
			Category: TrustCategory,
		},
		&cli.BoolFlag{
			Name:     "feed.optimistic",
			Usage:    "Follow optimistic light client updates instead of finality updates",
			EnvVars:  prefixEnvVars("FEED_OPTIMISTIC"),
			Category: TrustCategory,
		},
		&cli.DurationFlag{
			Name:     "feed.poll-interval",
			Usage:    "Interval between polls of the trust feed",
			EnvVars:  prefixEnvVars("FEED_POLL_INTERVAL"),
			Value:    feed.DefaultPollInterval,
			Category: TrustCategory,
		},
		&cli.StringFlag{
			Name:     "trust.checkpoint-hash",
			Usage:    "Block hash to trust at startup",
			EnvVars:  prefixEnvVars("TRUST_CHECKPOINT_HASH"),
			Category: TrustCategory,
		},
		&cli.Uint64Flag{
			Name:     "trust.checkpoint-number",
			Usage:    "Block number of the checkpoint hash",
			EnvVars:  prefixEnvVars("TRUST_CHECKPOINT_NUMBER"),
			Category: TrustCategory,
		},
		&cli.Uint64Flag{
			Name:     "trust.history-depth",
			Usage:    "Number of blocks below the trusted tip that can be queried",
			EnvVars:  prefixEnvVars("TRUST_HISTORY_DEPTH"),
			Value:    def.HistoryDepth,
			Category: TrustCategory,
		},
		&cli.Uint64Flag{
			Name:     "trust.future-tolerance",
			Usage:    "Number of blocks above the trusted tip that queries may wait for",
			EnvVars:  prefixEnvVars("TRUST_FUTURE_TOLERANCE"),
			Value:    def.FutureTolerance,
			Category: TrustCategory,
		},
		&cli.IntFlag{
			Name:     "trust.header-cache-size",
			Usage:    "Number of verified headers to keep in memory",
			EnvVars:  prefixEnvVars("TRUST_HEADER_CACHE_SIZE"),
			Value:    def.HeaderCacheSize,
			Category: TrustCategory,
		},
	}
}

func executionFlags() []cli.Flag {
	def := execution.DefaultConfig()
	return []cli.Flag{
		&cli.IntFlag{
			Name:     "execution.max-access-list-entries",
			Usage:    "Maximum number of accounts and storage slots loaded for one call",
			EnvVars:  prefixEnvVars("EXECUTION_MAX_ACCESS_LIST_ENTRIES"),
			Value:    def.MaxAccessListEntries,
			Category: ExecutionCategory,
		},
		&cli.BoolFlag{
			Name:     "execution.verify-access-list",
			Usage:    "Re-run calls locally until the access list is complete, instead of trusting the upstream access list",
			EnvVars:  prefixEnvVars("EXECUTION_VERIFY_ACCESS_LIST"),
			Value:    def.VerifyAccessList,
			Category: ExecutionCategory,
		},
		&cli.IntFlag{
			Name:     "execution.max-access-list-rounds",
			Usage:    "Maximum number of local runs to complete the access list",
			EnvVars:  prefixEnvVars("EXECUTION_MAX_ACCESS_LIST_ROUNDS"),
			Value:    def.MaxAccessListRounds,
			Category: ExecutionCategory,
		},
	}
}

func notaryFlags() []cli.Flag {
	def := notary.DefaultConfig()
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "notary.kind",
			Usage:    "Where to deliver block summaries: none, log, http or s3",
			EnvVars:  prefixEnvVars("NOTARY_KIND"),
			Value:    string(def.Kind),
			Category: NotaryCategory,
		},
		&cli.StringFlag{
			Name:     "notary.http-url",
			Usage:    "URL to POST block summaries to, for the http notary",
			EnvVars:  prefixEnvVars("NOTARY_HTTP_URL"),
			Category: NotaryCategory,
		},
		&cli.DurationFlag{
			Name:     "notary.timeout",
			Usage:    "Timeout of one delivery",
			EnvVars:  prefixEnvVars("NOTARY_TIMEOUT"),
			Value:    def.Timeout,
			Category: NotaryCategory,
		},
		&cli.IntFlag{
			Name:     "notary.queue-size",
			Usage:    "Number of pending summaries before new blocks are dropped",
			EnvVars:  prefixEnvVars("NOTARY_QUEUE_SIZE"),
			Value:    def.QueueSize,
			Category: NotaryCategory,
		},
		&cli.BoolFlag{
			Name:     "notary.s3.secure",
			Usage:    "Use TLS to reach the S3 endpoint",
			EnvVars:  prefixEnvVars("NOTARY_S3_SECURE"),
			Category: NotaryCategory,
		},
	}
	for _, name := range []string{
		"setup.admin", "setup.network", "setup.name", "setup.rpc-endpoint",
		"s3.endpoint", "s3.bucket", "s3.prefix", "s3.region", "s3.access-key", "s3.secret-key",
	} {
		flags = append(flags, &cli.StringFlag{
			Name:     "notary." + name,
			Usage:    "Notary " + strings.ReplaceAll(name, ".", " "),
			EnvVars:  prefixEnvVars("NOTARY_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(name))),
			Category: NotaryCategory,
		})
	}
	return flags
}

var optionalFlags = []cli.Flag{
	ConfigFlag,
	EnvFileFlag,
	ChainIDFlag,
	StrictReceiptsFlag,
}

func init() {
	optionalFlags = append(optionalFlags, upstreamFlags()...)
	optionalFlags = append(optionalFlags, trustFlags()...)
	optionalFlags = append(optionalFlags, executionFlags()...)
	optionalFlags = append(optionalFlags, notaryFlags()...)
	optionalFlags = append(optionalFlags, oprpc.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(Flags, optionalFlags...)
}

// Flags contains the list of configuration options available to the binary.
var Flags []cli.Flag

// LoadEnvFile loads the dotenv file named by --env-file or its environment variable, before the flags are parsed.
// Variables that are already set are not overridden. A missing default .env file is not an error.
func LoadEnvFile(args []string) error {
	path, explicit := envFilePath(args)
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func envFilePath(args []string) (string, bool) {
	for i, arg := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != EnvFileFlag.Name {
			continue
		}
		if hasValue {
			return value, true
		}
		if i+1 < len(args) {
			return args[i+1], true
		}
	}
	for _, env := range EnvFileFlag.EnvVars {
		if v := os.Getenv(env); v != "" {
			return v, true
		}
	}
	return EnvFileFlag.Value, false
}

// ConfigFromCLI builds the config from the defaults, then the config file if any, then the flags that are set.
func ConfigFromCLI(ctx *cli.Context, version string, fsys afero.Fs) (*config.Config, error) {
	cfg := config.DefaultCLIConfig()
	cfg.Version = version
	if path := ctx.String(ConfigFlag.Name); path != "" {
		if err := config.LoadFile(fsys, path, cfg); err != nil {
			return nil, err
		}
	}
	if err := cliutil.PopulateStruct(cfg, ctx); err != nil {
		return nil, fmt.Errorf("failed to apply flags: %w", err)
	}
	cfg.LogConfig = oplog.ReadCLIConfig(ctx)
	return cfg, nil
}

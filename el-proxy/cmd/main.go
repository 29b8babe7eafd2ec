package main

import (
	"context"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"github.com/ethereum/go-ethereum/log"

	"github.com/elciao/elciao/el-proxy/config"
	"github.com/elciao/elciao/el-proxy/flags"
	"github.com/elciao/elciao/el-proxy/metrics"
	"github.com/elciao/elciao/el-proxy/proxy"
	elservice "github.com/elciao/elciao/el-service"
	"github.com/elciao/elciao/el-service/cliapp"
	oplog "github.com/elciao/elciao/el-service/log"
	"github.com/elciao/elciao/el-service/metrics/doc"
)

var (
	Version   = "v0.0.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	ctx := cliapp.WithSignalWaiterMain(context.Background())
	err := run(ctx, os.Stdout, os.Stderr, os.Args, fromConfig)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(ctx context.Context, w io.Writer, ew io.Writer, args []string, fn proxy.MainFn) error {
	oplog.SetupDefaults()
	if err := flags.LoadEnvFile(args); err != nil {
		return err
	}

	app := cli.NewApp()
	app.Writer = w
	app.ErrWriter = ew
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Version = elservice.FormatVersion(Version, GitCommit, GitDate, "")
	app.Name = "el-proxy"
	app.Usage = "el-proxy serves Ethereum JSON-RPC, verifying every answer of an untrusted node against trusted block hashes."
	app.Description = "Verifying execution layer RPC proxy.\n" +
		" Point wallets at the RPC endpoint. Account state, code and storage are checked with Merkle proofs," +
		" blocks against their trusted hash, and calls are executed locally on verified state."
	app.Action = cliapp.LifecycleCmd(proxy.Main(app.Version, afero.NewOsFs(), fn))
	app.Commands = []*cli.Command{
		{
			Name:        "doc",
			Subcommands: doc.NewSubcommands(metrics.NewMetrics("default")),
		},
	}
	return app.RunContext(ctx, args)
}

func fromConfig(ctx context.Context, cfg *config.Config, logger log.Logger) (cliapp.Lifecycle, error) {
	return proxy.FromConfig(ctx, cfg, logger)
}

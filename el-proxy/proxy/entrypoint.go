package proxy

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"github.com/ethereum/go-ethereum/log"

	"github.com/elciao/elciao/el-proxy/config"
	"github.com/elciao/elciao/el-proxy/flags"
	"github.com/elciao/elciao/el-service/cliapp"
	oplog "github.com/elciao/elciao/el-service/log"
)

type MainFn func(ctx context.Context, cfg *config.Config, logger log.Logger) (cliapp.Lifecycle, error)

// Main is the entrypoint into the proxy service.
// It reads the config file from fsys, and the flags from the CLI context.
func Main(version string, fsys afero.Fs, fn MainFn) cliapp.LifecycleAction {
	return func(cliCtx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
		cfg, err := flags.ConfigFromCLI(cliCtx, version, fsys)
		if err != nil {
			return nil, err
		}
		if err := cfg.Check(); err != nil {
			return nil, fmt.Errorf("invalid CLI flags: %w", err)
		}

		l := oplog.NewLogger(cliCtx.App.Writer, cfg.LogConfig)
		l.Info("Initializing el-proxy", "version", version, "upstream", cfg.Upstream.URL, "feed", cfg.Feed.Kind)
		return fn(cliCtx.Context, cfg, l)
	}
}

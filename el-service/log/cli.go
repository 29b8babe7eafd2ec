package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/ethereum/go-ethereum/log"

	elservice "github.com/elciao/elciao/el-service"
)

const (
	LevelFlagName  = "log.level"
	FormatFlagName = "log.format"
	ColorFlagName  = "log.color"
)

// FormatType defines a type of log format.
// Supported formats: 'text', 'terminal', 'logfmt', 'json'
type FormatType string

const (
	FormatText     FormatType = "text"
	FormatTerminal FormatType = "terminal"
	FormatLogFmt   FormatType = "logfmt"
	FormatJSON     FormatType = "json"
)

func AvailableFormats() []FormatType {
	return []FormatType{FormatText, FormatTerminal, FormatLogFmt, FormatJSON}
}

func (ft FormatType) String() string {
	return string(ft)
}

// Set implements cli.Generic, so the format can be used as a typed flag.
func (ft *FormatType) Set(value string) error {
	switch FormatType(value) {
	case FormatText, FormatTerminal, FormatLogFmt, FormatJSON:
		*ft = FormatType(value)
		return nil
	default:
		return fmt.Errorf("unrecognized log-format: %q", value)
	}
}

// LevelFromString parses a log level name, case-insensitive.
func LevelFromString(lvl string) (slog.Level, error) {
	switch strings.ToLower(lvl) {
	case "trace", "trce":
		return log.LevelTrace, nil
	case "debug", "dbug":
		return log.LevelDebug, nil
	case "info":
		return log.LevelInfo, nil
	case "warn":
		return log.LevelWarn, nil
	case "error", "eror":
		return log.LevelError, nil
	case "crit":
		return log.LevelCrit, nil
	default:
		return log.LevelInfo, fmt.Errorf("unknown level: %v", lvl)
	}
}

type levelValue struct {
	lvl slog.Level
}

func (l *levelValue) String() string {
	return strings.ToLower(strings.TrimSpace(log.LevelString(l.lvl)))
}

func (l *levelValue) Set(value string) error {
	lvl, err := LevelFromString(value)
	if err != nil {
		return err
	}
	l.lvl = lvl
	return nil
}

func CLIFlags(envPrefix string) []cli.Flag {
	return CLIFlagsWithCategory(envPrefix, "")
}

func CLIFlagsWithCategory(envPrefix string, category string) []cli.Flag {
	return []cli.Flag{
		&cli.GenericFlag{
			Name:     LevelFlagName,
			Category: category,
			Usage:    "The lowest log level that will be output",
			Value:    &levelValue{lvl: log.LevelInfo},
			EnvVars:  elservice.PrefixEnvVar(envPrefix, "LOG_LEVEL"),
		},
		&cli.GenericFlag{
			Name:     FormatFlagName,
			Category: category,
			Usage:    "Format the log output. Supported formats: 'text', 'terminal', 'logfmt', 'json'",
			Value:    func() *FormatType { f := FormatText; return &f }(),
			EnvVars:  elservice.PrefixEnvVar(envPrefix, "LOG_FORMAT"),
		},
		&cli.BoolFlag{
			Name:     ColorFlagName,
			Category: category,
			Usage:    "Color the log output if in terminal mode",
			EnvVars:  elservice.PrefixEnvVar(envPrefix, "LOG_COLOR"),
		},
	}
}

type CLIConfig struct {
	Level  slog.Level
	Color  bool
	Format FormatType
}

func DefaultCLIConfig() CLIConfig {
	return CLIConfig{
		Level:  log.LevelInfo,
		Format: FormatText,
		Color:  isatty.IsTerminal(os.Stdout.Fd()),
	}
}

func ReadCLIConfig(ctx *cli.Context) CLIConfig {
	cfg := DefaultCLIConfig()
	if lvl, ok := ctx.Generic(LevelFlagName).(*levelValue); ok {
		cfg.Level = lvl.lvl
	}
	if ft, ok := ctx.Generic(FormatFlagName).(*FormatType); ok {
		cfg.Format = *ft
	}
	if ctx.IsSet(ColorFlagName) {
		cfg.Color = ctx.Bool(ColorFlagName)
	}
	return cfg
}

// NewLogger creates a logger with the given configuration,
// and sets it as the global default logger.
func NewLogger(wr io.Writer, cfg CLIConfig) log.Logger {
	h := NewLogHandler(wr, cfg)
	l := log.NewLogger(h)
	SetGlobalLogHandler(h)
	return l
}

func NewLogHandler(wr io.Writer, cfg CLIConfig) slog.Handler {
	switch cfg.Format {
	case FormatJSON:
		return JSONMsHandlerWithLevel(wr, cfg.Level)
	case FormatLogFmt:
		return LogfmtMsHandlerWithLevel(wr, cfg.Level)
	case FormatTerminal:
		return log.NewTerminalHandlerWithLevel(wr, cfg.Level, cfg.Color)
	default:
		return log.NewTerminalHandlerWithLevel(wr, cfg.Level, cfg.Color && isatty.IsTerminal(os.Stdout.Fd()))
	}
}

// SetGlobalLogHandler sets the log handler of the go-ethereum root logger.
func SetGlobalLogHandler(h slog.Handler) {
	log.SetDefault(log.NewLogger(h))
}

// SetupDefaults installs a logfmt root logger, used until the CLI config is read.
func SetupDefaults() {
	SetGlobalLogHandler(log.LogfmtHandlerWithLevel(os.Stdout, log.LevelInfo))
}

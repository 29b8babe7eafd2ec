package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

func TestLevelFromString(t *testing.T) {
	for name, want := range map[string]any{
		"trace": log.LevelTrace,
		"DEBUG": log.LevelDebug,
		"info":  log.LevelInfo,
		"warn":  log.LevelWarn,
		"eror":  log.LevelError,
		"crit":  log.LevelCrit,
	} {
		lvl, err := LevelFromString(name)
		require.NoError(t, err, name)
		require.Equal(t, want, lvl, name)
	}
	_, err := LevelFromString("loud")
	require.ErrorContains(t, err, "unknown level")
}

func TestFormatTypeSet(t *testing.T) {
	var ft FormatType
	require.NoError(t, ft.Set("json"))
	require.Equal(t, FormatJSON, ft)
	require.Error(t, ft.Set("xml"))
	require.Len(t, AvailableFormats(), 4)
}

func readConfig(t *testing.T, args ...string) CLIConfig {
	app := cli.NewApp()
	app.Flags = CLIFlags("TEST")
	var cfg CLIConfig
	app.Action = func(ctx *cli.Context) error {
		cfg = ReadCLIConfig(ctx)
		return nil
	}
	require.NoError(t, app.Run(append([]string{"test"}, args...)))
	return cfg
}

func TestReadCLIConfig(t *testing.T) {
	cfg := readConfig(t, "--log.level=debug", "--log.format=json", "--log.color=false")
	require.Equal(t, log.LevelDebug, cfg.Level)
	require.Equal(t, FormatJSON, cfg.Format)
	require.False(t, cfg.Color)

	cfg = readConfig(t)
	require.Equal(t, log.LevelInfo, cfg.Level)
	require.Equal(t, FormatText, cfg.Format)
}

func TestJSONHandlerRendering(t *testing.T) {
	var buf bytes.Buffer
	lgr := log.NewLogger(JSONMsHandlerWithLevel(&buf, log.LevelInfo))
	lgr.Debug("hidden")
	lgr.Info("hello",
		"balance", uint256.NewInt(42),
		"hash", common.Hash{0x01},
		"addr", common.Address{0x02},
	)
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Equal(t, "hello", out["msg"])
	require.Equal(t, "info", out["lvl"])
	require.Equal(t, "42", out["balance"])
	require.Equal(t, common.Hash{0x01}.Hex(), out["hash"])
	require.Equal(t, common.Address{0x02}.Hex(), out["addr"])
}

func TestLogfmtHandlerRendering(t *testing.T) {
	var buf bytes.Buffer
	lgr := log.NewLogger(NewLogHandler(&buf, CLIConfig{Level: log.LevelWarn, Format: FormatLogFmt}))
	lgr.Info("hidden")
	lgr.Warn("reorg", "number", 7, "hash", common.Hash{0x01}, "data", []byte{0xab})
	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "lvl=warn")
	require.Contains(t, out, "msg=reorg")
	require.Contains(t, out, "hash="+common.Hash{0x01}.Hex())
	require.Contains(t, out, "data=0xab")
}

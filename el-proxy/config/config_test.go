package config

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/elciao/elciao/el-proxy/proxy/feed"
	"github.com/elciao/elciao/el-proxy/proxy/notary"
)

func validConfig() *Config {
	cfg := DefaultCLIConfig()
	cfg.Upstream.URL = "http://localhost:8545"
	return cfg
}

func TestDefaultConfigRequiresUpstream(t *testing.T) {
	cfg := DefaultCLIConfig()
	require.ErrorContains(t, cfg.Check(), "upstream URL is required")
	require.NoError(t, validConfig().Check())
}

func TestCheckCollectsErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Upstream.DialAttempts = 0
	cfg.Feed.Kind = "carrier-pigeon"
	cfg.Notary.Kind = notary.KindHTTP
	err := cfg.Check()
	require.ErrorContains(t, err, "dial attempts")
	require.ErrorContains(t, err, "feed:")
	require.ErrorContains(t, err, "notary:")
}

const tomlConfig = `
chain-id = 1
strict-receipts = true

[upstream]
url = "https://eth.example.com"

[upstream.client]
retry-budget = 3
rate-limit = 12.5

[trust]
history-depth = 64

[feed]
kind = "beacon"
beacon-url = "http://beacon:5052"
poll-interval = "6s"
checkpoint-hash = "0x1111111111111111111111111111111111111111111111111111111111111111"
checkpoint-number = 100

[notary]
kind = "s3"

[notary.s3]
endpoint = "minio:9000"
bucket = "blocks"
`

const yamlConfig = `
chain-id: 1
strict-receipts: true
upstream:
  url: https://eth.example.com
  client:
    retry-budget: 3
    rate-limit: 12.5
trust:
  history-depth: 64
feed:
  kind: beacon
  beacon-url: http://beacon:5052
  poll-interval: 6s
  checkpoint-hash: "0x1111111111111111111111111111111111111111111111111111111111111111"
  checkpoint-number: 100
notary:
  kind: s3
  s3:
    endpoint: minio:9000
    bucket: blocks
`

func TestLoadFile(t *testing.T) {
	for _, tc := range []struct {
		path, content string
	}{
		{"/etc/el-proxy/config.toml", tomlConfig},
		{"/etc/el-proxy/config.yaml", yamlConfig},
	} {
		t.Run(tc.path, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, tc.path, []byte(tc.content), 0o644))

			cfg := DefaultCLIConfig()
			require.NoError(t, LoadFile(fs, tc.path, cfg))
			require.NoError(t, cfg.Check())

			require.Equal(t, uint64(1), cfg.ChainID)
			require.True(t, cfg.StrictReceipts)
			require.Equal(t, "https://eth.example.com", cfg.Upstream.URL)
			require.Equal(t, 3, cfg.Upstream.RetryBudget)
			require.Equal(t, 12.5, cfg.Upstream.RateLimit)
			require.Equal(t, uint64(64), cfg.Trust.HistoryDepth)
			require.Equal(t, feed.KindBeacon, cfg.Feed.Kind)
			require.Equal(t, 6*time.Second, cfg.Feed.PollInterval)
			require.Equal(t, common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111"), cfg.Feed.CheckpointHash)
			require.Equal(t, uint64(100), cfg.Feed.CheckpointNumber)
			require.Equal(t, notary.KindS3, cfg.Notary.Kind)
			require.Equal(t, "blocks", cfg.Notary.S3.Bucket)

			// absent keys keep their defaults
			def := DefaultCLIConfig()
			require.Equal(t, def.Upstream.BatchSize, cfg.Upstream.BatchSize)
			require.Equal(t, def.RPC, cfg.RPC)
			require.Equal(t, def.Trust.FutureTolerance, cfg.Trust.FutureTolerance)
		})
	}
}

func TestLoadFileErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/config.json", []byte(`{}`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/unknown.toml", []byte("unknown-key = 1\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/unknown.yml", []byte("unknown-key: 1\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/broken.toml", []byte("chain-id = \n"), 0o644))

	cfg := DefaultCLIConfig()
	require.ErrorContains(t, LoadFile(fs, "/missing.toml", cfg), "failed to open")
	require.ErrorContains(t, LoadFile(fs, "/config.json", cfg), "unsupported config file extension")
	require.ErrorContains(t, LoadFile(fs, "/unknown.toml", cfg), "unknown keys")
	require.Error(t, LoadFile(fs, "/unknown.yml", cfg))
	require.Error(t, LoadFile(fs, "/broken.toml", cfg))
}

package testutils

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	"github.com/elciao/elciao/el-service/client"
	"github.com/elciao/elciao/el-service/metrics"
)

// DialMockEL starts el and returns a resilient client connected to it. Both are closed when the test ends.
func DialMockEL(t *testing.T, el *MockEL, lgr log.Logger, cfg client.ResilientConfig) *client.ResilientClient {
	url, err := el.Start()
	require.NoError(t, err)
	t.Cleanup(el.Close)
	rpcClient, err := rpc.DialContext(context.Background(), url)
	require.NoError(t, err)
	c := client.NewResilientClient(client.NewBaseRPCClient(rpcClient), lgr, metrics.NoopRPCClientMetrics{}, cfg)
	t.Cleanup(c.Close)
	return c
}

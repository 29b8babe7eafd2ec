package rpc

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/elciao/elciao/el-service/httputil"
	"github.com/elciao/elciao/el-service/testlog"
)

type testAPI struct{}

func (t *testAPI) Frobnicate(n int) int {
	return n * 2
}

// startServer serves a handler with the test API on a free local port. Both are stopped when the test ends.
func startServer(t *testing.T, appVersion string, opts ...Option) (*Handler, *httputil.HTTPServer) {
	h := NewHandler(appVersion, opts...)
	require.NoError(t, h.AddAPI(rpc.API{
		Namespace: "test",
		Service:   new(testAPI),
	}))
	srv := httputil.NewHTTPServer("127.0.0.1:0", h)
	require.NoError(t, srv.Start(), "must start")
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, srv.Stop(ctx))
		h.Stop()
	})
	return h, srv
}

func TestBaseServer(t *testing.T) {
	appVersion := "test"
	logger := testlog.Logger(t, log.LevelTrace)
	h, srv := startServer(t, appVersion, WithLogger(logger), WithWebsocketEnabled())
	endpoint := srv.Addr().String()

	t.Run("supports 0 port", func(t *testing.T) {
		_, portStr, err := net.SplitHostPort(endpoint)
		require.NoError(t, err)
		port, err := strconv.Atoi(portStr)
		require.NoError(t, err)
		require.Greater(t, port, 0)
	})

	require.NoError(t, h.AddRPC("/extra"))
	require.NoError(t, h.AddAPIToRPC("/extra", rpc.API{
		Namespace: "test2",
		Service:   new(testAPI),
	}))

	t.Run("regular", func(t *testing.T) {
		testServer(t, endpoint, appVersion, "test")
	})
	t.Run("extra route", func(t *testing.T) {
		testServer(t, endpoint+"/extra", appVersion, "test2")
	})
}

func testServer(t *testing.T, endpoint string, appVersion string, namespace string) {
	httpRPCClient, err := rpc.Dial("http://" + endpoint)
	require.NoError(t, err)
	t.Cleanup(httpRPCClient.Close)

	t.Run("supports GET /healthz", func(t *testing.T) {
		res, err := http.Get("http://" + endpoint + "/healthz")
		require.NoError(t, err)
		defer res.Body.Close()
		body, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		require.EqualValues(t, fmt.Sprintf("{\"version\":\"%s\"}\n", appVersion), string(body))
	})

	t.Run("supports health_status", func(t *testing.T) {
		var res string
		require.NoError(t, httpRPCClient.Call(&res, "health_status"))
		require.Equal(t, appVersion, res)
	})

	t.Run("supports additional RPC APIs", func(t *testing.T) {
		var res int
		require.NoError(t, httpRPCClient.Call(&res, namespace+"_frobnicate", 2))
		require.Equal(t, 4, res)
	})

	t.Run("supports websocket", func(t *testing.T) {
		wsEndpoint := "ws://" + endpoint
		t.Log("connecting to", wsEndpoint)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		wsCl, err := rpc.DialContext(ctx, wsEndpoint)
		require.NoError(t, err)
		t.Cleanup(wsCl.Close)
		var res int
		require.NoError(t, wsCl.Call(&res, namespace+"_frobnicate", 42))
		require.Equal(t, 42*2, res)
	})
}

// TestUserMiddlewareBeforeHealth tests that the health endpoint is always available, in front of user-middleware.
func TestUserMiddlewareBeforeHealth(t *testing.T) {
	appVersion := "test"
	logger := testlog.Logger(t, log.LevelTrace)
	_, srv := startServer(t, appVersion,
		WithLogger(logger),
		WithWebsocketEnabled(),
		WithMiddleware(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTeapot)
			})
		}),
	)

	t.Run("does not support other GET /foobar", func(t *testing.T) {
		res, err := http.Get(srv.HTTPEndpoint() + "/foobar")
		require.NoError(t, err)
		defer res.Body.Close()
		require.Equal(t, http.StatusTeapot, res.StatusCode)
	})

	t.Run("supports GET /healthz", func(t *testing.T) {
		res, err := http.Get(srv.HTTPEndpoint() + "/healthz")
		require.NoError(t, err)
		defer res.Body.Close()
		require.Equal(t, http.StatusOK, res.StatusCode)
		body, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		require.EqualValues(t, fmt.Sprintf("{\"version\":\"%s\"}\n", appVersion), string(body))
	})
}

func TestBatchLimit(t *testing.T) {
	logger := testlog.Logger(t, log.LevelInfo)
	_, srv := startServer(t, "test", WithLogger(logger), WithBatchLimits(2, 1024*1024))

	cl, err := rpc.Dial(srv.HTTPEndpoint())
	require.NoError(t, err)
	t.Cleanup(cl.Close)

	var a, b, c int
	ok := []rpc.BatchElem{
		{Method: "test_frobnicate", Args: []any{1}, Result: &a},
		{Method: "test_frobnicate", Args: []any{2}, Result: &b},
	}
	require.NoError(t, cl.BatchCall(ok))
	require.NoError(t, ok[0].Error)
	require.NoError(t, ok[1].Error)
	require.Equal(t, 2, a)
	require.Equal(t, 4, b)

	tooMany := append(ok, rpc.BatchElem{Method: "test_frobnicate", Args: []any{3}, Result: &c})
	err = cl.BatchCall(tooMany)
	if err == nil {
		// the limit may be reported per element instead of for the whole batch
		require.Error(t, tooMany[0].Error)
	}
}

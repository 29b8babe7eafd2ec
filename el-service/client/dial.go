package client

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

// DialRPCClientWithBackoff dials the given URL, retrying up to attempts times with a fixed pause in between.
// It waits until the address is reachable before dialing, so the upstream may come up after this process.
func DialRPCClientWithBackoff(ctx context.Context, lgr log.Logger, addr string, attempts int, pause time.Duration, opts ...rpc.ClientOption) (*rpc.Client, error) {
	if attempts < 1 {
		attempts = 1
	}
	bOff := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(pause), uint64(attempts-1)), ctx)
	var out *rpc.Client
	err := backoff.Retry(func() error {
		if !IsURLAvailable(ctx, addr, 5*time.Second) {
			lgr.Warn("upstream not available, retrying", "url", redactURL(addr))
			return fmt.Errorf("address unavailable (%s)", redactURL(addr))
		}
		cl, err := rpc.DialOptions(ctx, addr, opts...)
		if err != nil {
			return fmt.Errorf("failed to dial address (%s): %w", redactURL(addr), err)
		}
		out = cl
		return nil
	}, bOff)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// IsURLAvailable checks that a TCP connection can be made to the host of the URL.
// Unknown schemes fail open.
func IsURLAvailable(ctx context.Context, address string, timeout time.Duration) bool {
	u, err := url.Parse(address)
	if err != nil {
		return false
	}
	addr := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "http", "ws":
			addr += ":80"
		case "https", "wss":
			addr += ":443"
		default:
			// Fail open if we can't figure out what the port should be
			return true
		}
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// redactURL strips credentials and the path, which commonly carries API keys of hosted providers.
func redactURL(addr string) string {
	u, err := url.Parse(addr)
	if err != nil {
		return "<invalid url>"
	}
	if u.Path != "" && u.Path != "/" {
		u.Path = "/" + strings.Repeat("*", 4)
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}

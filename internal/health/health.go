// Package health probes a running transcription server over its WebSocket
// port. A probe is handshake-only and never speaks the transcription
// protocol; it reports ready as soon as the socket accepts connections.
package health

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/coder/websocket"
)

const (
	dialTimeout     = 2 * time.Second
	defaultInterval = 250 * time.Millisecond
)

// Report describes a successful probe.
type Report struct {
	URL     string
	Latency time.Duration
}

// ProbeURL builds the WebSocket URL for a server bound to host:port. A
// wildcard bind address is probed over loopback.
func ProbeURL(host string, port int) string {
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "ws://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// Ping performs a WebSocket handshake against url and closes the connection
// immediately.
func Ping(ctx context.Context, url string) (Report, error) {
	start := time.Now()

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return Report{}, fmt.Errorf("dial %s: %w", url, err)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "health check")

	return Report{URL: url, Latency: time.Since(start)}, nil
}

// WaitReady polls the server until it accepts a WebSocket handshake or ctx
// ends. The returned error wraps the last probe failure so callers see why
// the server never came up.
func WaitReady(ctx context.Context, url string, interval time.Duration) (Report, error) {
	if interval <= 0 {
		interval = defaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		attemptCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		report, err := Ping(attemptCtx, url)
		cancel()
		if err == nil {
			return report, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return Report{}, fmt.Errorf("server not ready: %w", lastErr)
		case <-ticker.C:
		}
	}
}

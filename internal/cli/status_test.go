package cli

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/fmueller/voxlive/internal/health"
	"github.com/stretchr/testify/require"
)

func runStatusWith(t *testing.T, app *appState, args []string) (string, error) {
	t.Helper()

	cmd := newStatusCmd(app)
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestStatusProbesLoopbackForWildcardBind(t *testing.T) {
	isolateHome(t)

	var probedURL string
	app := &appState{
		probeTimeout: 2 * time.Second,
		probeFn: func(_ context.Context, url string) (health.Report, error) {
			probedURL = url
			return health.Report{URL: url, Latency: 3 * time.Millisecond}, nil
		},
	}

	out, err := runStatusWith(t, app, []string{})
	require.NoError(t, err)
	require.Equal(t, "ws://127.0.0.1:9090", probedURL)
	require.Contains(t, out, "Server at ws://127.0.0.1:9090 is accepting connections")
}

func TestStatusHonorsHostAndPortFlags(t *testing.T) {
	isolateHome(t)

	var probedURL string
	app := &appState{
		probeTimeout: 2 * time.Second,
		probeFn: func(_ context.Context, url string) (health.Report, error) {
			probedURL = url
			return health.Report{URL: url, Latency: time.Millisecond}, nil
		},
	}

	_, err := runStatusWith(t, app, []string{"--host", "10.1.2.3", "--port", "9191"})
	require.NoError(t, err)
	require.Equal(t, "ws://10.1.2.3:9191", probedURL)
}

func TestStatusReportsUnreachableServer(t *testing.T) {
	isolateHome(t)

	app := &appState{
		probeTimeout: 2 * time.Second,
		probeFn: func(context.Context, string) (health.Report, error) {
			return health.Report{}, errors.New("connection refused")
		},
	}

	_, err := runStatusWith(t, app, []string{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "server not reachable at ws://127.0.0.1:9090")
}

func TestStatusAgainstRealWebSocketServer(t *testing.T) {
	isolateHome(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer server.Close()

	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(server.URL, "http://"))
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	app := &appState{probeTimeout: 5 * time.Second, probeFn: health.Ping}
	out, err := runStatusWith(t, app, []string{"--host", host, "--port", strconv.Itoa(port)})
	require.NoError(t, err)
	require.Contains(t, out, "is accepting connections")
}

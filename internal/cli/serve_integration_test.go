//go:build integration

package cli

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/fmueller/voxlive/internal/config"
	"github.com/fmueller/voxlive/internal/whisperlive"
	"github.com/stretchr/testify/require"
)

func TestServeFlowEndToEndWithStubInterpreter(t *testing.T) {
	isolateHome(t)
	t.Setenv(whisperlive.PythonEnvVar, "")

	dir := t.TempDir()
	readyFile := filepath.Join(dir, "ready.txt")
	t.Setenv("READY_FILE", readyFile)

	stub := filepath.Join(dir, "python3")
	script := "#!/bin/sh\ntouch \"$READY_FILE\"\ntrap 'exit 0' INT\nwhile :; do sleep 0.02; done\n"
	require.NoError(t, os.WriteFile(stub, []byte(script), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))

	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"--port", "9292", "--model", "tiny"})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errCh := make(chan error, 1)
	go func() {
		errCh <- cmd.ExecuteContext(ctx)
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(readyFile)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-errCh)
	require.Contains(t, out.String(), "[WhisperLive] Starting server on port 9292 with model=tiny")
}

func TestWaitReadySucceedsAgainstDelayedWebSocketServer(t *testing.T) {
	t.Setenv(whisperlive.PythonEnvVar, "")

	dir := t.TempDir()
	stub := filepath.Join(dir, "python3")
	script := "#!/bin/sh\ntrap 'exit 0' INT\nwhile :; do sleep 0.02; done\n"
	require.NoError(t, os.WriteFile(stub, []byte(script), 0o755))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	_, portStr, err := net.SplitHostPort(listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	wsServer := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.Close(websocket.StatusNormalClosure, "")
	})}
	t.Cleanup(func() { _ = wsServer.Close() })
	go func() {
		time.Sleep(300 * time.Millisecond)
		_ = wsServer.Serve(listener)
	}()

	app := &appState{waitReady: true, readyTimeout: 3 * time.Second}
	cfg := &config.Config{Host: "127.0.0.1", Port: port, Model: "small", Python: stub}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.launchServer(ctx, cfg, whisperlive.Resolve(cfg.Model))
	}()

	// If readiness had failed, launchServer would return an error once the
	// ready timeout fires. Serving past that point means the probe succeeded.
	select {
	case err := <-errCh:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(4 * time.Second):
	}

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fmueller/voxlive/internal/config"
	"github.com/fmueller/voxlive/internal/health"
	"github.com/fmueller/voxlive/internal/whisperlive"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the WhisperLive transcription server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runServe(cmd)
		},
	}

	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)
	bindConfigFlag(cmd, app)
	bindServerFlags(cmd, app)
	bindModelFlags(cmd, app)
	bindPythonFlag(cmd, app)
	bindServeFlags(cmd, app)

	return cmd
}

func (a *appState) runServe(cmd *cobra.Command) error {
	cfg, err := a.effectiveConfig(cmd)
	if err != nil {
		return err
	}

	resolved := whisperlive.Resolve(cfg.Model)

	fmt.Fprintf(cmd.OutOrStdout(), "[WhisperLive] Starting server on port %d with model=%s\n", cfg.Port, cfg.Model)

	launchFn := a.launchFn
	if launchFn == nil {
		launchFn = a.launchServer
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = launchFn(ctx, cfg, resolved)
	if errors.Is(err, context.Canceled) {
		a.log().Info("server stopped")
		return nil
	}
	return err
}

func (a *appState) launchServer(ctx context.Context, cfg *config.Config, resolved whisperlive.Resolved) error {
	server, err := whisperlive.New(whisperlive.Options{
		Host:            cfg.Host,
		Port:            cfg.Port,
		CustomModelPath: resolved.CustomPath,
		SingleModel:     true,
		Python:          cfg.Python,
		Logger:          a.log(),
	})
	if err != nil {
		return err
	}

	if resolved.CustomPath != "" {
		a.log().Info("serving model from custom path", zap.String("path", resolved.CustomPath))
	}

	if !a.waitReady {
		return server.Run(ctx)
	}

	runCtx, cancelWait := context.WithCancel(ctx)
	defer cancelWait()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancelWait()
		return server.Run(gctx)
	})
	g.Go(func() error {
		waitFn := a.waitFn
		if waitFn == nil {
			waitFn = health.WaitReady
		}

		waitCtx, cancel := context.WithTimeout(gctx, a.readyTimeout)
		defer cancel()

		stopSpinner := startSpinner(a.progressEnabled(), "waiting for server")
		report, err := waitFn(waitCtx, health.ProbeURL(cfg.Host, cfg.Port), 0)
		stopSpinner()
		if err != nil {
			if gctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for server readiness: %w", err)
		}

		a.log().Info("server ready", zap.String("url", report.URL), zap.Duration("latency", report.Latency))
		return nil
	})

	return g.Wait()
}

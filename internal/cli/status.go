package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fmueller/voxlive/internal/health"
	"github.com/spf13/cobra"
)

func newStatusCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check whether a transcription server is accepting connections",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.effectiveConfig(cmd)
			if err != nil {
				return err
			}

			probeFn := app.probeFn
			if probeFn == nil {
				probeFn = health.Ping
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), app.probeTimeout)
			defer cancel()

			url := health.ProbeURL(cfg.Host, cfg.Port)
			report, err := probeFn(ctx, url)
			if err != nil {
				return fmt.Errorf("server not reachable at %s: %w", url, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Server at %s is accepting connections (%s)\n",
				report.URL, report.Latency.Round(time.Millisecond))
			return nil
		},
	}

	bindLoggingFlags(cmd, app)
	bindConfigFlag(cmd, app)
	bindServerFlags(cmd, app)
	cmd.Flags().DurationVar(&app.probeTimeout, "timeout", app.probeTimeout, "How long to wait for the handshake")

	return cmd
}

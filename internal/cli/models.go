package cli

import (
	"fmt"

	"github.com/fmueller/voxlive/internal/whisperlive"
	"github.com/spf13/cobra"
)

func newModelsCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List known model sizes and local snapshots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.effectiveConfig(cmd)
			if err != nil {
				return err
			}

			modelDir, err := app.modelStorageDir(cfg.ModelDir)
			if err != nil {
				return err
			}

			for _, name := range whisperlive.ModelNames() {
				model, _ := whisperlive.LookupModel(name)
				state := "not pulled"
				if whisperlive.SnapshotPresent(modelDir, model) {
					state = "pulled: " + whisperlive.SnapshotDir(modelDir, name)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %-32s %s\n", name, model.Repo, state)
			}
			return nil
		},
	}

	bindLoggingFlags(cmd, app)
	bindConfigFlag(cmd, app)
	bindModelFlags(cmd, app)

	return cmd
}

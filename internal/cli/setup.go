package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fmueller/voxlive/internal/download"
	"github.com/fmueller/voxlive/internal/whisperlive"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const preflightTimeout = 30 * time.Second

func newSetupCmd(app *appState) *cobra.Command {
	var pull bool

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Verify the Python environment and optionally prefetch a model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.effectiveConfig(cmd)
			if err != nil {
				return err
			}

			var pullTarget whisperlive.Model
			if pull {
				pullTarget, err = resolvePullTarget(cfg.Model)
				if err != nil {
					return err
				}
			}

			preflightFn := app.preflightFn
			if preflightFn == nil {
				preflightFn = app.preflightEnvironment
			}

			probe, err := preflightFn(cmd.Context(), cfg.Python)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "whisper_live %s via %s\n", probe.Version, probe.Interpreter)

			if !pull {
				return nil
			}
			return app.pullModel(cmd, pullTarget, cfg.ModelDir)
		},
	}

	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)
	bindConfigFlag(cmd, app)
	bindModelFlags(cmd, app)
	bindPythonFlag(cmd, app)
	cmd.Flags().BoolVar(&pull, "pull", false, "Download the selected model snapshot for offline serving")

	return cmd
}

func resolvePullTarget(modelRef string) (whisperlive.Model, error) {
	resolved := whisperlive.Resolve(modelRef)
	if resolved.CustomPath != "" {
		return whisperlive.Model{}, fmt.Errorf("pull expects a named model size; got path %s", resolved.CustomPath)
	}

	model, ok := whisperlive.LookupModel(resolved.Ref)
	if !ok {
		return whisperlive.Model{}, fmt.Errorf("unknown model %q (known models: %s)", resolved.Ref, strings.Join(whisperlive.ModelNames(), ", "))
	}

	return model, nil
}

func (a *appState) preflightEnvironment(ctx context.Context, python string) (whisperlive.Probe, error) {
	interpreter, err := whisperlive.ResolveInterpreter(python)
	if err != nil {
		return whisperlive.Probe{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, preflightTimeout)
	defer cancel()

	return whisperlive.Preflight(ctx, interpreter, a.log())
}

func (a *appState) pullModel(cmd *cobra.Command, model whisperlive.Model, modelDirOverride string) error {
	modelDir, err := a.modelStorageDir(modelDirOverride)
	if err != nil {
		return err
	}

	snapshotDir := whisperlive.SnapshotDir(modelDir, model.Name)
	if whisperlive.SnapshotPresent(modelDir, model) {
		a.log().Info("model snapshot already present", zap.String("model", model.Name), zap.String("path", snapshotDir))
		fmt.Fprintf(cmd.OutOrStdout(), "Model %s already present at %s\n", model.Name, snapshotDir)
		return nil
	}

	a.log().Info("downloading model snapshot",
		zap.String("model", model.Name),
		zap.String("repo", model.Repo),
		zap.String("path", snapshotDir),
	)
	for _, file := range model.Files {
		if err := download.DownloadFile(cmd.Context(), download.Options{
			URL:         model.FileURL(file),
			Destination: filepath.Join(snapshotDir, file),
			NoProgress:  a.noProgress,
			Logger:      a.log(),
		}); err != nil {
			return fmt.Errorf("download %s for model %s: %w", file, model.Name, err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Model %s installed at %s\n", model.Name, snapshotDir)
	fmt.Fprintf(cmd.OutOrStdout(), "Serve it with: voxlive --model %s\n", snapshotDir)
	return nil
}

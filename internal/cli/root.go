package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fmueller/voxlive/internal/config"
	"github.com/fmueller/voxlive/internal/health"
	"github.com/fmueller/voxlive/internal/logging"
	"github.com/fmueller/voxlive/internal/platform"
	"github.com/fmueller/voxlive/internal/version"
	"github.com/fmueller/voxlive/internal/whisperlive"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/spf13/cobra"
)

type appState struct {
	verbose      bool
	jsonLogs     bool
	noProgress   bool
	configPath   string
	host         string
	port         int
	model        string
	modelDir     string
	python       string
	waitReady    bool
	readyTimeout time.Duration
	probeTimeout time.Duration

	logger *zap.Logger

	launchFn    func(ctx context.Context, cfg *config.Config, resolved whisperlive.Resolved) error
	preflightFn func(ctx context.Context, python string) (whisperlive.Probe, error)
	probeFn     func(ctx context.Context, url string) (health.Report, error)
	waitFn      func(ctx context.Context, url string, interval time.Duration) (health.Report, error)
}

// NewRootCmd builds the voxlive command tree. Running the root command with
// no subcommand starts the server, so `voxlive --port 9090 --model small` is
// the whole launch incantation.
func NewRootCmd() *cobra.Command {
	app := &appState{
		host:         config.DefaultHost,
		port:         config.DefaultPort,
		model:        config.DefaultModel,
		readyTimeout: 60 * time.Second,
		probeTimeout: 5 * time.Second,
	}
	app.launchFn = app.launchServer
	app.preflightFn = app.preflightEnvironment
	app.probeFn = health.Ping
	app.waitFn = health.WaitReady

	cmd := &cobra.Command{
		Use:           "voxlive",
		Short:         "Launch and manage a WhisperLive transcription server",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(".env"); err != nil {
				return fmt.Errorf("load .env: %w", err)
			}
			logger, err := logging.New(logging.Options{Verbose: app.verbose, JSON: app.jsonLogs})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			app.logger = logger
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runServe(cmd)
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)
	bindConfigFlag(cmd, app)
	bindServerFlags(cmd, app)
	bindModelFlags(cmd, app)
	bindPythonFlag(cmd, app)
	bindServeFlags(cmd, app)

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newSetupCmd(app))
	cmd.AddCommand(newModelsCmd(app))
	cmd.AddCommand(newStatusCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindLoggingFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	cmd.Flags().BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
}

func bindProgressFlag(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
}

func bindConfigFlag(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.configPath, "config", app.configPath, "Config file (default ~/.config/voxlive/config.yaml)")
}

func bindServerFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.host, "host", app.host, "Address the server binds to")
	cmd.Flags().IntVar(&app.port, "port", app.port, "Port the server listens on")
}

func bindModelFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.model, "model", app.model, "Model size or path to a CTranslate2 model directory")
	cmd.Flags().StringVar(&app.modelDir, "model-dir", app.modelDir, "Directory where pulled model snapshots are stored")
}

func bindPythonFlag(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.python, "python", app.python, "Python interpreter hosting the server (name or path)")
}

func bindServeFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.waitReady, "wait-ready", app.waitReady, "Block until the server accepts WebSocket connections")
	cmd.Flags().DurationVar(&app.readyTimeout, "ready-timeout", app.readyTimeout, "How long to wait for readiness with --wait-ready")
}

// effectiveConfig merges the config file with flag overrides. Only flags the
// user actually set override file values, so file settings survive defaults.
func (a *appState) effectiveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Resolve(a.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = a.host
	}
	if flags.Changed("port") {
		cfg.Port = a.port
	}
	if flags.Changed("model") {
		cfg.Model = a.model
	}
	if flags.Changed("model-dir") {
		cfg.ModelDir = a.modelDir
	}
	if flags.Changed("python") {
		cfg.Python = a.python
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (a *appState) modelStorageDir(override string) (string, error) {
	dir, err := platform.ResolveModelDir(override)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create model directory %s: %w", dir, err)
	}
	return dir, nil
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

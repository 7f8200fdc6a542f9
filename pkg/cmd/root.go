package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitey-pm/bitey/pkg/config"
	"github.com/bitey-pm/bitey/pkg/installer"
	"github.com/bitey-pm/bitey/pkg/metrics"
	"github.com/bitey-pm/bitey/pkg/remote"
	"github.com/bitey-pm/bitey/pkg/shell"
	"github.com/bitey-pm/bitey/pkg/source"
	"github.com/bitey-pm/bitey/pkg/store"
	"github.com/spf13/cobra"
)

// skipConfig marks commands that must work without a loadable config.
const skipConfig = "bitey/skip-config"

// globals is the state shared by every subcommand once PersistentPreRunE has
// run.
type globals struct {
	configFile string
	verbose    bool

	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "bitey",
		Short: "A minimal package manager",
		Long: `bitey installs packages described by YAML manifests served from remotes.

A remote is a base URL serving list.txt (the package index) and one
<name>.yml pointer per package. Installed packages live in the store, one
directory per package.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.setup(cmd)
		},
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configFile, "config", "", "config file (default $XDG_CONFIG_HOME/bitey/config.toml)")
	pf.String("store-dir", "", "directory holding installed packages")
	pf.String("remotes-dir", "", "directory holding remote descriptors")
	pf.Bool("insecure", false, "skip TLS certificate verification")
	pf.String("metrics-file", "", "write run metrics to this file in Prometheus text format")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "log debug output")

	root.AddCommand(newInstallCmd(g))
	root.AddCommand(newRemoveCmd(g))
	root.AddCommand(newUpdateCmd(g))
	root.AddCommand(newListCmd(g))
	root.AddCommand(newRemoteCmd(g))
	root.AddCommand(newConfigCmd(g))

	return root
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func (g *globals) setup(cmd *cobra.Command) error {
	level := slog.LevelInfo
	if g.verbose {
		level = slog.LevelDebug
	}
	g.logger = newLogger(cmd.ErrOrStderr(), level, "text")

	if cmd.Annotations[skipConfig] != "" {
		return nil
	}

	cfg, err := config.Load(config.LoadOptions{File: g.configFile, Flags: cmd.Flags()})
	if err != nil {
		return err
	}
	g.cfg = cfg
	g.logger = newLogger(cmd.ErrOrStderr(), level, cfg.LogFormat)
	g.metrics = metrics.New()

	g.logger.Debug("loaded config", "store_dir", cfg.StoreDir, "remotes_dir", cfg.RemotesDir)
	return nil
}

func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// run wraps a command so the metrics textfile is written whether or not
// the command succeeds.
func (g *globals) run(fn func(ctx context.Context, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd.Context(), cmd, args)
		if g.cfg != nil && g.cfg.MetricsFile != "" {
			if werr := g.metrics.WriteTextfile(g.cfg.MetricsFile); werr != nil {
				g.logger.Warn("could not write metrics", "path", g.cfg.MetricsFile, "err", werr)
			}
		}
		return err
	}
}

// installer builds an Installer from the loaded config. When withRemotes is
// set the configured remotes are loaded and at least one is required.
func (g *globals) installer(withRemotes bool) (*installer.Installer, error) {
	cfg := g.cfg
	if cfg.Insecure {
		g.logger.Warn("TLS certificate verification is disabled")
	}

	inst := &installer.Installer{
		Store: store.New(cfg.StoreDir),
		Client: source.NewClient(source.Options{
			Insecure:        cfg.Insecure,
			Timeout:         cfg.HTTPTimeout,
			DownloadTimeout: cfg.DownloadTimeout,
			Retries:         cfg.FetchRetries,
			Concurrency:     cfg.FetchConcurrency,
			Logger:          g.logger,
			Metrics:         g.metrics,
		}),
		Runner: &shell.Runner{
			Shell:   cfg.Shell,
			Timeout: cfg.ScriptTimeout,
			Logger:  g.logger,
		},
		InstallPrefix: cfg.InstallPrefix,
		Logger:        g.logger,
		Metrics:       g.metrics,
	}

	if withRemotes {
		remotes, warnings := remote.List(cfg.RemotesDir)
		for _, w := range warnings {
			g.logger.Warn("skipping remote", "err", w)
		}
		if len(remotes) == 0 {
			return nil, fmt.Errorf("no remotes configured in %s; add one with 'bitey remote add <url>'", cfg.RemotesDir)
		}
		inst.Remotes = remotes
	}
	return inst, nil
}

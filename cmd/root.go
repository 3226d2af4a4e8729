package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stevedore-sh/stevedore/internal/config"
	"github.com/stevedore-sh/stevedore/internal/envfile"
	"github.com/stevedore-sh/stevedore/internal/manifest"
	"github.com/stevedore-sh/stevedore/internal/registry"
	"github.com/stevedore-sh/stevedore/internal/version"
	"github.com/stevedore-sh/stevedore/pkg/logger"
)

var (
	cfgFile   string
	assumeYes bool
	buildInfo BuildInfo
)

// BuildInfo carries the ldflags-injected build identity.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

var rootCmd = &cobra.Command{
	Use:   "stevedore",
	Short: "Stevedore - service version manifest & rollback manager",
	Long: `Stevedore tracks which image tag and content digest each service of a
deployment currently runs, keeps a bounded version history, and performs safe
transitions between versions: pull, pin, rollback and health-checked updates.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. The whole invocation is cancellable via SIGINT and
// SIGTERM; mutations already committed stay committed.
func Execute(version, commit, date string) {
	buildInfo = BuildInfo{Version: version, Commit: commit, Date: date}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.GetLogger().ConfigureFromEnv()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./stevedore.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "skip interactive confirmation prompts")
}

// loadConfig loads configuration and applies its log level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if cfg.LogLevel != "" {
		logger.GetLogger().SetLogLevel(cfg.LogLevel)
	}
	return cfg, nil
}

// newManager wires the full manager, including the Docker-backed fetcher,
// resolver and health checker.
func newManager() (*version.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	docker, err := registry.NewDockerClient()
	if err != nil {
		return nil, err
	}

	store := manifest.NewStore(cfg.Manifest, cfg.BackupDir, cfg.HistoryLimit)
	fetcher := registry.NewFetcher(docker, 0)
	resolver := registry.NewResolver(docker)
	projector := envfile.New(cfg.EnvFile, cfg.EnvPrefix, cfg.Registry)
	health := version.NewDockerHealthChecker(docker.Raw())

	return version.NewManager(cfg, store, fetcher, resolver, projector, health), nil
}

// newReadOnlyManager wires a manager for operations that never touch the
// container engine (show, history, generate-env, check-updates).
func newReadOnlyManager() (*version.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store := manifest.NewStore(cfg.Manifest, cfg.BackupDir, cfg.HistoryLimit)
	projector := envfile.New(cfg.EnvFile, cfg.EnvPrefix, cfg.Registry)
	return version.NewManager(cfg, store, nil, nil, projector, nil), nil
}

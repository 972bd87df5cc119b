package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opsdesk/integrity/internal/config"
	"github.com/opsdesk/integrity/internal/integrity"
	"github.com/opsdesk/integrity/internal/logging"
	"github.com/opsdesk/integrity/internal/storage"
)

var (
	dbPath     string
	configPath string
	verbose    bool
	jsonOutput bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Data integrity agent for the opsdesk admin tool",
	Long: `Checks tasks, procedures and user profiles for inconsistencies and
repairs the ones that have an unambiguous fix.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.Find()
		}

		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.Database.Path = dbPath
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(level, cfg.Logging.Format)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default: discover .opsdesk/*.db)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: "+config.DefaultPath+" if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(2)
	}
	os.Exit(exitStatus)
}

// openAgent resolves the database, opens it and builds an agent. With no
// database found the agent runs against an unconfigured gateway so the
// configuration check can report it.
func openAgent(ctx context.Context) (*integrity.Agent, storage.Gateway, error) {
	if cfg.Database.Path == "" {
		if discovered, err := storage.DiscoverDatabase(); err == nil {
			cfg.Database.Path = discovered
		} else {
			logger.Debug("no database discovered", zap.Error(err))
		}
	}
	logger.Debug("effective configuration", zap.Stringer("config", cfg))

	store, err := storage.NewStorage(ctx, cfg.Storage())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	agentCfg, err := cfg.Integrity()
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	agent, err := integrity.New(store,
		integrity.WithConfig(agentCfg),
		integrity.WithLogger(logger.Named("integrity")))
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return agent, store, nil
}

package main

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"gifpipe/internal/config"
	"gifpipe/internal/ledger"
	"gifpipe/internal/pkg/logger"
)

func newRootCommand() *cobra.Command {
	var verbose bool
	ctx := &commandContext{verbose: &verbose}

	rootCmd := &cobra.Command{
		Use:           "gifctl",
		Short:         "Operate a gifpipe deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level to stderr")

	rootCmd.AddCommand(newSweepCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newJobsCommand(ctx))
	rootCmd.AddCommand(newConvertCommand(ctx))
	rootCmd.AddCommand(newGDriveAuthCommand())

	return rootCmd
}

// commandContext loads configuration once per invocation.
type commandContext struct {
	verbose *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		c.config, c.configErr = config.Load()
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() *logger.Logger {
	if c.verbose == nil || !*c.verbose {
		return logger.Discard()
	}
	return logger.New(logger.Config{Level: "debug", Format: "text", ServiceName: "gifctl"})
}

// openLedger opens the configured status store. The returned func releases it.
func (c *commandContext) openLedger(ctx context.Context, cfg *config.Config) (ledger.Ledger, func(), error) {
	if cfg.Ledger.Backend == "pebble" {
		l, err := ledger.OpenPebble(cfg.Ledger.Path, cfg.Ledger.TTL)
		if err != nil {
			return nil, nil, err
		}
		return l, func() { _ = l.Close() }, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	return ledger.NewRedisLedger(rdb, cfg.Ledger.TTL), func() { _ = rdb.Close() }, nil
}

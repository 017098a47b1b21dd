package app

import (
	"context"

	"gifpipe/internal/config"
	"gifpipe/internal/pkg/logger"
)

// Main loads configuration, lets prepare adjust it and choose roles, then runs
// the container until a shutdown signal or a component failure.
func Main(service string, prepare func(cfg *config.Config) Roles) {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault().LogFatal("invalid configuration", err)
	}
	roles := prepare(cfg)

	log := logger.New(cfg.LoggerConfig(service))
	log.Info("starting gifpipe",
		"service", service,
		"version", Version,
		"queue", cfg.Queue.Backend,
		"ledger", cfg.Ledger.Backend,
		"storage", cfg.Storage.Provider,
	)

	ctx := context.Background()
	c, err := New(ctx, cfg, log, roles)
	if err != nil {
		log.LogFatal("failed to initialize", err)
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Shutdown.Shutdown()
		log.LogFatal("failed to start", err)
	}

	if err := c.Shutdown.WaitWithContext(c.Done()); err != nil {
		log.Error("shutdown finished with errors", "error", err.Error())
	}
	if err := c.Err(); err != nil {
		log.LogFatal("stopped after a component failure", err)
	}
}

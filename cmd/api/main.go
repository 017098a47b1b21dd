package main

import (
	"gifpipe/internal/app"
	"gifpipe/internal/config"
)

func main() {
	app.Main("api", func(cfg *config.Config) app.Roles {
		return app.Roles{API: true, Sweeper: cfg.Retention.Enabled}
	})
}

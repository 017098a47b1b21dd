package main

import (
	"gifpipe/internal/app"
	"gifpipe/internal/config"
)

func main() {
	app.Main("worker", func(cfg *config.Config) app.Roles {
		return app.Roles{Worker: true}
	})
}

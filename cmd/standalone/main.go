// Command standalone runs the API, the worker pool and the sweeper in one
// process with local blobs, an embedded ledger and an in-process queue.
package main

import (
	"gifpipe/internal/app"
	"gifpipe/internal/config"
)

func main() {
	app.Main("standalone", func(cfg *config.Config) app.Roles {
		cfg.Standalone()
		return app.Roles{API: true, Worker: true, Sweeper: true}
	})
}

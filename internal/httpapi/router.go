// Package httpapi wires the HTTP routes of the request tier.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"gifpipe/internal/httpapi/handlers"
	"gifpipe/internal/httpkit"
	"gifpipe/internal/pkg/logger"
	"gifpipe/internal/pkg/middleware"
)

type Deps struct {
	Handlers    handlers.Deps
	CORSOrigins []string
	Log         *logger.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	if d.Handlers.Log == nil {
		d.Handlers.Log = log
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))

	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: d.CORSOrigins,
		ExposedHeaders: []string{"Content-Disposition", "X-Request-ID"},
		MaxAgeSeconds:  600,
	}))

	h := handlers.New(d.Handlers)
	wrap := func(fn middleware.ErrorHandlerFunc) http.HandlerFunc {
		return middleware.WrapHandler(log, fn)
	}

	// ---- HEALTH ----
	r.Get("/health", h.Health)

	// ---- CONVERSION ----
	r.Post("/convert", wrap(h.Convert))
	r.Get("/status/{taskId}", wrap(h.Status))
	r.Get("/download/{taskId}", wrap(h.Download))
	r.Get("/download/{taskId}/url", wrap(h.DownloadURL))
	r.Get("/files/*", wrap(h.ServeFile))

	// ---- JOBS ----
	r.Get("/jobs", wrap(h.ListJobs))
	r.Get("/jobs/{jobId}", wrap(h.GetJob))

	return r
}

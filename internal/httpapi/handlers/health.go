package handlers

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"gifpipe/internal/ports"
)

// healthProbeKey is statted to exercise the blob store; it need not exist.
const healthProbeKey = "health/probe"

// Health performs a health check of the service.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log.FromContext(ctx)

	health := map[string]any{
		"status":  "ok",
		"service": "gifpipe-api",
		"version": h.version,
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := h.deepHealthCheck(ctx)
		health["checks"] = checks

		for _, check := range checks {
			if check["status"] != "ok" {
				health["status"] = "degraded"
				log.Warn("health check degraded", "checks", checks)
				break
			}
		}
	}

	writeJSON(w, http.StatusOK, health)
}

// deepHealthCheck performs detailed health checks on dependencies.
func (h *Handler) deepHealthCheck(ctx context.Context) map[string]map[string]any {
	checks := make(map[string]map[string]any, len(h.checks)+1)
	for _, c := range h.checks {
		checks[c.Name] = runCheck(ctx, c.Ping)
	}

	storage := runCheck(ctx, h.checkStorage)
	storage["provider"] = h.sp.Provider()
	checks["storage"] = storage

	return checks
}

func runCheck(ctx context.Context, ping func(context.Context) error) map[string]any {
	start := time.Now()
	result := map[string]any{
		"status": "ok",
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := ping(checkCtx); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}

	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}

func (h *Handler) checkStorage(ctx context.Context) error {
	_, err := h.sp.StatObject(ctx, healthProbeKey)
	if err == nil || stderrors.Is(err, ports.ErrObjectNotFound) {
		return nil
	}
	return err
}

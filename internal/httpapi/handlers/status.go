package handlers

import (
	stderrors "errors"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"gifpipe/internal/httpkit"
	"gifpipe/internal/models"
	"gifpipe/internal/pkg/errors"
	"gifpipe/internal/ports"
	"gifpipe/internal/signedurl"
)

type statusResponse struct {
	models.Status
	GIFURL      string `json:"gif_url,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
	PreviewURL  string `json:"preview_url,omitempty"`
}

// Status reports the state of a job. Unknown ids read as PENDING.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	id := chi.URLParam(r, "taskId")

	st, err := h.ledger.Get(ctx, id)
	if err != nil {
		return err
	}

	resp := statusResponse{Status: st}
	if st.State == models.StateSuccess && st.ArtifactKey != "" {
		resp.DownloadURL = h.baseURL + "/download/" + url.PathEscape(id)
		resp.GIFURL = resp.DownloadURL
		if out, err := h.sp.GetSignedURL(ctx, st.ArtifactKey, h.urlTTL); err == nil {
			resp.GIFURL = out.URL
		} else if !stderrors.Is(err, ports.ErrSignedURLUnsupported) {
			h.log.FromContext(ctx).Warn("signed url failed", "task_id", id, "error", err.Error())
		}
		if st.PreviewKey != "" {
			if out, err := h.sp.GetSignedURL(ctx, st.PreviewKey, h.urlTTL); err == nil {
				resp.PreviewURL = out.URL
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
	return nil
}

// Download streams the finished GIF as an attachment.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	id := chi.URLParam(r, "taskId")

	key, err := h.artifactKey(r, id)
	if err != nil {
		return err
	}

	rc, contentType, size, err := h.sp.GetObject(ctx, key)
	if err != nil {
		if stderrors.Is(err, ports.ErrObjectNotFound) {
			return errors.NotFound("gif", id)
		}
		return errors.Storage(err, "api.download", key)
	}
	defer rc.Close()

	if contentType == "" || contentType == "application/octet-stream" {
		contentType = "image/gif"
	}
	httpkit.SetAttachment(w, contentType, path.Base(key), size)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.log.FromContext(ctx).Warn("download interrupted", "task_id", id, "error", err.Error())
	}
	return nil
}

// DownloadURL returns a time-limited URL for the GIF, or redirects to it when
// redirect=true.
func (h *Handler) DownloadURL(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	id := chi.URLParam(r, "taskId")

	key, err := h.artifactKey(r, id)
	if err != nil {
		return err
	}

	target := h.baseURL + "/download/" + url.PathEscape(id)
	expiresAt := time.Now().UTC().Add(h.urlTTL)
	out, err := h.sp.GetSignedURL(ctx, key, h.urlTTL)
	switch {
	case err == nil:
		target, expiresAt = out.URL, out.ExpiresAt
	case stderrors.Is(err, ports.ErrSignedURLUnsupported):
	default:
		return errors.Storage(err, "api.download_url", key)
	}

	if strings.EqualFold(r.URL.Query().Get("redirect"), "true") {
		http.Redirect(w, r, target, http.StatusFound)
		return nil
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"url":        target,
		"expires_at": expiresAt,
	})
	return nil
}

// ServeFile serves a local-store object to a holder of a valid token.
func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	key := chi.URLParam(r, "*")

	if h.signer == nil {
		return errors.NotFound("file", key)
	}
	if err := h.signer.Verify(r.URL.Query().Get("token"), key); err != nil {
		h.log.FromContext(ctx).Debug("file token rejected", "key", key, "error", err.Error())
		if stderrors.Is(err, signedurl.ErrTokenExpired) {
			return errors.New(errors.CodeNotFound, "link has expired").WithField("key", key)
		}
		return errors.NotFound("file", key)
	}

	rc, contentType, size, err := h.sp.GetObject(ctx, key)
	if err != nil {
		if stderrors.Is(err, ports.ErrObjectNotFound) {
			return errors.NotFound("file", key)
		}
		return errors.Storage(err, "api.files", key)
	}
	defer rc.Close()

	httpkit.SetAttachment(w, contentType, path.Base(key), size)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
	return nil
}

// artifactKey resolves the GIF key of a finished job or reports 404.
func (h *Handler) artifactKey(r *http.Request, id string) (string, error) {
	st, err := h.ledger.Get(r.Context(), id)
	if err != nil {
		return "", err
	}
	if st.State != models.StateSuccess || st.ArtifactKey == "" {
		return "", errors.New(errors.CodeNotFound, "GIF not ready or task not found").
			WithField("task_id", id).
			WithField("state", string(st.State))
	}
	return st.ArtifactKey, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	httpkit.WriteJSON(w, status, body)
}

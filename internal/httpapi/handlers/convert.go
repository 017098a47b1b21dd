package handlers

import (
	stderrors "errors"
	"net/http"
	"os"
	"strings"
	"time"

	"gifpipe/internal/acquire"
	"gifpipe/internal/media"
	"gifpipe/internal/models"
	"gifpipe/internal/pkg/errors"
	"gifpipe/internal/storage"
)

// multipartMemory is how much of a form is held in memory before spilling to disk.
const multipartMemory = 32 << 20

// Convert accepts a video upload or URL with conversion options and enqueues a job.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	log := h.log.FromContext(ctx)

	if h.maxUpload > 0 {
		// Headroom for the option fields and multipart framing.
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+1<<20)
	}
	if err := h.parseForm(r); err != nil {
		return err
	}

	src, kind, err := h.acquireSource(r)
	if err != nil {
		return err
	}

	opts := media.ParseForm(r.FormValue)
	id := h.newID()
	key := models.SourceKey(src.Name)

	putErr := storage.PutFile(ctx, h.sp, src.Path, key)
	if err := os.Remove(src.Path); err != nil && !os.IsNotExist(err) {
		log.Warn("scratch cleanup failed", "path", src.Path, "error", err.Error())
	}
	if putErr != nil {
		return putErr
	}

	desc := models.Descriptor{
		ID:         id,
		SourceKey:  key,
		SourceName: src.Name,
		SourceKind: kind,
		Options:    opts,
		CreatedAt:  time.Now().UTC(),
	}

	if err := h.ledger.Put(ctx, models.NewStatus(id, models.StatePending)); err != nil {
		h.discardSource(r, key)
		return errors.Wrap(err, "api.convert", "failed to record job status")
	}
	if err := h.history.Create(ctx, desc); err != nil {
		log.Warn("job history insert failed", "task_id", id, "error", err.Error())
	}

	if err := h.producer.Enqueue(ctx, desc); err != nil {
		h.discardSource(r, key)
		return errors.WrapWithCode(err, errors.CodeUnavailable, "api.convert", "job queue unavailable")
	}

	log.Info("job accepted",
		"task_id", id,
		"source", key,
		"kind", string(kind),
		"size", src.Size,
	)
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id})
	return nil
}

func (h *Handler) parseForm(r *http.Request) error {
	err := r.ParseMultipartForm(multipartMemory)
	if stderrors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err == nil {
		return nil
	}
	var tooBig *http.MaxBytesError
	if stderrors.As(err, &tooBig) {
		return errors.PayloadTooLarge(h.maxUpload)
	}
	return errors.WrapWithCode(err, errors.CodeBadRequest, "api.convert", "invalid form body")
}

// acquireSource prefers a file part and falls back to the url field.
func (h *Handler) acquireSource(r *http.Request) (acquire.Source, models.SourceKind, error) {
	ctx := r.Context()

	file, header, err := r.FormFile("video")
	if err == nil {
		defer file.Close()
		src, err := h.acq.FromUpload(ctx, header.Filename, file)
		return src, models.SourceUpload, err
	}

	// A file part sent without a filename is parsed as a plain value.
	if r.MultipartForm != nil {
		if _, ok := r.MultipartForm.Value["video"]; ok {
			return acquire.Source{}, "", errors.ValidationField("video", "No video file selected.")
		}
	}

	if raw := strings.TrimSpace(r.FormValue("url")); raw != "" {
		src, err := h.acq.FromURL(ctx, raw)
		return src, models.SourceURL, err
	}
	return acquire.Source{}, "", errors.ValidationField("video", "No video file part in the request.")
}

func (h *Handler) discardSource(r *http.Request, key string) {
	if err := storage.Delete(r.Context(), h.sp, key); err != nil {
		h.log.FromContext(r.Context()).Warn("source cleanup failed", "key", key, "error", err.Error())
	}
}

package processor

import (
	"context"

	"gifpipe/internal/media"
	"gifpipe/internal/models"
	"gifpipe/internal/pkg/logger"
	"gifpipe/internal/ports"
	"gifpipe/internal/storage"
)

type OutputHandler struct {
	sp  ports.StorageProvider
	log *logger.Logger
}

func NewOutputHandler(sp ports.StorageProvider, log *logger.Logger) *OutputHandler {
	return &OutputHandler{sp: sp, log: log}
}

// OutputKeys are the blob keys a job publishes.
type OutputKeys struct {
	GIF     string
	Preview string
}

// Publish uploads the rendered GIF and, when present, its preview. A preview
// upload failure is logged and leaves Preview empty.
func (oh *OutputHandler) Publish(ctx context.Context, d models.Descriptor, res media.Result) (OutputKeys, error) {
	keys := OutputKeys{GIF: models.ArtifactKey(d.SourceName)}
	if err := storage.PutFile(ctx, oh.sp, res.Path, keys.GIF); err != nil {
		return OutputKeys{}, err
	}

	if res.PreviewPath != "" {
		key := models.PreviewKey(d.SourceName)
		if err := storage.PutFile(ctx, oh.sp, res.PreviewPath, key); err != nil {
			oh.log.FromContext(ctx).Warn("preview upload failed", "key", key, "error", err.Error())
		} else {
			keys.Preview = key
		}
	}
	return keys, nil
}

// Release deletes the job's source blob. Failures are logged; the sweeper
// removes whatever is left.
func (oh *OutputHandler) Release(ctx context.Context, d models.Descriptor) {
	if err := storage.Delete(ctx, oh.sp, d.SourceKey); err != nil {
		oh.log.FromContext(ctx).Warn("source cleanup failed", "key", d.SourceKey, "error", err.Error())
	}
}

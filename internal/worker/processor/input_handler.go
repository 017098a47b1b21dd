package processor

import (
	"context"
	"os"
	"path/filepath"

	"gifpipe/internal/models"
	"gifpipe/internal/pkg/errors"
	"gifpipe/internal/ports"
	"gifpipe/internal/storage"
)

type InputHandler struct {
	sp         ports.StorageProvider
	scratchDir string
}

func NewInputHandler(sp ports.StorageProvider, scratchDir string) *InputHandler {
	return &InputHandler{sp: sp, scratchDir: scratchDir}
}

// WorkDir is the per-job directory. It is keyed by job id so a redelivery
// reuses the same path.
func (ih *InputHandler) WorkDir(jobID string) string {
	return filepath.Join(ih.scratchDir, "jobs", jobID)
}

// Materialize downloads the job's source blob into its work directory.
func (ih *InputHandler) Materialize(ctx context.Context, d models.Descriptor) (string, error) {
	dir := ih.WorkDir(d.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "processor.inputs", "failed to create work directory")
	}

	name := filepath.Base(d.SourceName)
	if name == "." || name == string(filepath.Separator) {
		return "", errors.ValidationField("source_name", "invalid source name")
	}
	local := filepath.Join(dir, name)
	if err := storage.GetFile(ctx, ih.sp, d.SourceKey, local); err != nil {
		return "", err
	}
	return local, nil
}

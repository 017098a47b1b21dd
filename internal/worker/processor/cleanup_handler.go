package processor

import (
	"os"

	"gifpipe/internal/pkg/logger"
)

type Cleanup struct {
	log *logger.Logger
}

func NewCleanup(log *logger.Logger) *Cleanup {
	return &Cleanup{log: log}
}

// RemoveWorkDir deletes a job's local files. Errors are logged only.
func (c *Cleanup) RemoveWorkDir(jobID, dir string) {
	if err := os.RemoveAll(dir); err != nil {
		c.log.WithJobID(jobID).Warn("work dir cleanup failed", "dir", dir, "error", err.Error())
	}
}

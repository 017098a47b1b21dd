// Package ledger records the last known status of every job.
package ledger

import (
	"context"
	"time"

	"gifpipe/internal/models"
)

// Ledger stores job statuses. Get on an unknown or expired id returns a
// PENDING status and no error.
type Ledger interface {
	Get(ctx context.Context, id string) (models.Status, error)
	Put(ctx context.Context, st models.Status) error
}

// DefaultTTL is how long a status is kept after its last write.
const DefaultTTL = 24 * time.Hour

func stamp(st models.Status) models.Status {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	if st.Status == "" {
		st.Status = st.State.Text()
	}
	return st
}

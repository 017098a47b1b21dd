package models

import (
	"encoding/json"
	"time"
)

// JobRecord is the durable history row of a job.
type JobRecord struct {
	ID          string          `json:"id"`
	SourceName  string          `json:"source_name"`
	SourceKind  SourceKind      `json:"source_kind"`
	Options     json.RawMessage `json:"options"`
	State       State           `json:"state"`
	ArtifactKey string          `json:"artifact_key,omitempty"`
	Width       int             `json:"width,omitempty"`
	Height      int             `json:"height,omitempty"`
	Error       string          `json:"error,omitempty"`
	Attempts    int             `json:"attempts"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
}

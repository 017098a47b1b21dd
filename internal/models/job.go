package models

import (
	"time"

	"gifpipe/internal/media"
)

// SourceKind records how a job's input reached the system.
type SourceKind string

const (
	SourceUpload SourceKind = "upload"
	SourceURL    SourceKind = "url"
)

// Descriptor is the message carried on the broker. It is created once on accept
// and never mutated except for the redelivery counter.
type Descriptor struct {
	ID         string        `json:"id"`
	SourceKey  string        `json:"source_key"`
	SourceName string        `json:"source_name"`
	SourceKind SourceKind    `json:"source_kind"`
	Options    media.Options `json:"options"`
	CreatedAt  time.Time     `json:"created_at"`
	Attempt    int           `json:"attempt"`
}

// State is the lifecycle state of a job.
type State string

const (
	StatePending State = "PENDING"
	StateRunning State = "RUNNING"
	StateSuccess State = "SUCCESS"
	StateFailure State = "FAILURE"
)

// Terminal reports whether no further transition is expected.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailure
}

// Text is the human readable form shown to polling clients.
func (s State) Text() string {
	switch s {
	case StateRunning:
		return "In Progress..."
	case StateSuccess:
		return "Completed"
	case StateFailure:
		return "Task failed"
	default:
		return "Pending..."
	}
}

// MaxErrorLen bounds the failure message kept on a status.
const MaxErrorLen = 2000

// Status is the last known state of a job as recorded in the ledger.
type Status struct {
	TaskID      string    `json:"task_id"`
	State       State     `json:"state"`
	Status      string    `json:"status"`
	ArtifactKey string    `json:"artifact_key,omitempty"`
	PreviewKey  string    `json:"preview_key,omitempty"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	Error       string    `json:"error,omitempty"`
	Trace       string    `json:"trace,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PendingStatus is what an unknown or expired id reads as.
func PendingStatus(id string) Status {
	return Status{TaskID: id, State: StatePending, Status: StatePending.Text()}
}

// NewStatus builds a status for id in state s stamped with now.
func NewStatus(id string, s State) Status {
	return Status{TaskID: id, State: s, Status: s.Text(), UpdatedAt: time.Now().UTC()}
}

// Failed builds a FAILURE status with msg truncated to MaxErrorLen.
func Failed(id, msg, trace string) Status {
	st := NewStatus(id, StateFailure)
	st.Error = Truncate(msg, MaxErrorLen)
	st.Trace = trace
	return st
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// Package handlers implements the HTTP endpoints of the request tier.
package handlers

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"gifpipe/internal/acquire"
	"gifpipe/internal/ledger"
	"gifpipe/internal/models"
	"gifpipe/internal/pkg/logger"
	"gifpipe/internal/ports"
	"gifpipe/internal/queue"
	"gifpipe/internal/repositories"
	"gifpipe/internal/signedurl"
)

// Acquirer turns request input into a local video file.
type Acquirer interface {
	FromUpload(ctx context.Context, filename string, r io.Reader) (acquire.Source, error)
	FromURL(ctx context.Context, rawURL string) (acquire.Source, error)
}

// JobStore reads the job history.
type JobStore interface {
	List(ctx context.Context, f repositories.ListFilter) ([]models.JobRecord, error)
	Get(ctx context.Context, id string) (*models.JobRecord, error)
}

// Check is a named dependency probe for the deep health check.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type Deps struct {
	Acquirer Acquirer
	Producer queue.Producer
	Ledger   ledger.Ledger
	SP       ports.StorageProvider
	History  repositories.JobRecorder
	// Jobs is nil when no database is configured.
	Jobs JobStore
	// Signer verifies /files tokens. Nil disables the route.
	Signer *signedurl.Signer

	PublicBaseURL string
	SignedURLTTL  time.Duration
	MaxUploadSize int64
	Checks        []Check
	Version       string
	Log           *logger.Logger

	NewID func() string
}

type Handler struct {
	acq      Acquirer
	producer queue.Producer
	ledger   ledger.Ledger
	sp       ports.StorageProvider
	history  repositories.JobRecorder
	jobs     JobStore
	signer   *signedurl.Signer

	baseURL   string
	urlTTL    time.Duration
	maxUpload int64
	checks    []Check
	version   string
	log       *logger.Logger
	newID     func() string
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	history := d.History
	if history == nil {
		history = repositories.NopRecorder{}
	}
	newID := d.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	ttl := d.SignedURLTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	version := d.Version
	if version == "" {
		version = "dev"
	}

	return &Handler{
		acq:       d.Acquirer,
		producer:  d.Producer,
		ledger:    d.Ledger,
		sp:        d.SP,
		history:   history,
		jobs:      d.Jobs,
		signer:    d.Signer,
		baseURL:   d.PublicBaseURL,
		urlTTL:    ttl,
		maxUpload: d.MaxUploadSize,
		checks:    d.Checks,
		version:   version,
		log:       log.WithComponent("api"),
		newID:     newID,
	}
}

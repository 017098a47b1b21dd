package repositories

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gifpipe/internal/httpkit"
	"gifpipe/internal/models"
	"gifpipe/internal/pkg/errors"
)

// JobRecorder receives job lifecycle events for the history table.
type JobRecorder interface {
	Create(ctx context.Context, d models.Descriptor) error
	MarkRunning(ctx context.Context, id string) error
	MarkSucceeded(ctx context.Context, st models.Status) error
	MarkFailed(ctx context.Context, id, msg string) error
}

// NopRecorder is used when no database is configured.
type NopRecorder struct{}

func (NopRecorder) Create(context.Context, models.Descriptor) error     { return nil }
func (NopRecorder) MarkRunning(context.Context, string) error          { return nil }
func (NopRecorder) MarkSucceeded(context.Context, models.Status) error { return nil }
func (NopRecorder) MarkFailed(context.Context, string, string) error   { return nil }

const schema = `
CREATE TABLE IF NOT EXISTS gif_jobs (
	id           TEXT PRIMARY KEY,
	source_name  TEXT NOT NULL,
	source_kind  TEXT NOT NULL,
	options_json JSONB NOT NULL DEFAULT '{}'::jsonb,
	state        TEXT NOT NULL,
	artifact_key TEXT,
	width        INT,
	height       INT,
	error_text   TEXT,
	attempts     INT NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at   TIMESTAMPTZ,
	finished_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS gif_jobs_created_at_idx ON gif_jobs (created_at DESC);
`

// ErrJobExists is returned by Create for a duplicate id.
var ErrJobExists = stderrors.New("job already recorded")

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// ListFilter narrows List.
type ListFilter struct {
	State models.State
	Limit int
}

type JobRepository struct {
	db *pgxpool.Pool
}

func NewJobRepository(db *pgxpool.Pool) *JobRepository {
	return &JobRepository{db: db}
}

// EnsureSchema creates the history table if it does not exist.
func (r *JobRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "jobs.schema", "failed to create job history schema")
	}
	return nil
}

func (r *JobRepository) Create(ctx context.Context, d models.Descriptor) error {
	opts, err := json.Marshal(d.Options)
	if err != nil {
		return errors.Wrap(err, "jobs.create", "marshal options")
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO gif_jobs (id, source_name, source_kind, options_json, state, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, d.ID, d.SourceName, string(d.SourceKind), opts, string(models.StatePending), d.CreatedAt)
	if err != nil {
		if httpkit.IsUniqueViolation(err) {
			return ErrJobExists
		}
		return errors.Wrap(err, "jobs.create", "insert job")
	}
	return nil
}

func (r *JobRepository) MarkRunning(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE gif_jobs
		SET state='RUNNING', started_at=now(), finished_at=NULL, error_text=NULL, attempts=attempts+1
		WHERE id=$1
	`, id)
	if err != nil {
		return errors.Wrap(err, "jobs.running", "update job")
	}
	return nil
}

func (r *JobRepository) MarkSucceeded(ctx context.Context, st models.Status) error {
	_, err := r.db.Exec(ctx, `
		UPDATE gif_jobs
		SET state='SUCCESS', artifact_key=$2, width=$3, height=$4, finished_at=now()
		WHERE id=$1
	`, st.TaskID, st.ArtifactKey, st.Width, st.Height)
	if err != nil {
		return errors.Wrap(err, "jobs.succeeded", "update job")
	}
	return nil
}

func (r *JobRepository) MarkFailed(ctx context.Context, id, msg string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE gif_jobs
		SET state='FAILURE', error_text=$2, finished_at=now()
		WHERE id=$1
	`, id, models.Truncate(msg, models.MaxErrorLen))
	if err != nil {
		return errors.Wrap(err, "jobs.failed", "update job")
	}
	return nil
}

const selectJob = `
	SELECT id, source_name, source_kind, options_json, state,
	       COALESCE(artifact_key, ''), COALESCE(width, 0), COALESCE(height, 0),
	       COALESCE(error_text, ''), attempts, created_at, started_at, finished_at
	FROM gif_jobs
`

func scanJob(row pgx.Row) (models.JobRecord, error) {
	var j models.JobRecord
	var kind, state string
	err := row.Scan(
		&j.ID,
		&j.SourceName,
		&kind,
		&j.Options,
		&state,
		&j.ArtifactKey,
		&j.Width,
		&j.Height,
		&j.Error,
		&j.Attempts,
		&j.CreatedAt,
		&j.StartedAt,
		&j.FinishedAt,
	)
	j.SourceKind = models.SourceKind(kind)
	j.State = models.State(state)
	return j, err
}

func (r *JobRepository) Get(ctx context.Context, id string) (*models.JobRecord, error) {
	j, err := scanJob(r.db.QueryRow(ctx, selectJob+` WHERE id=$1`, id))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NotFound("job", id)
		}
		return nil, errors.Wrap(err, "jobs.get", "query job")
	}
	return &j, nil
}

// List returns the most recent jobs, newest first.
func (r *JobRepository) List(ctx context.Context, f ListFilter) ([]models.JobRecord, error) {
	limit := NormalizeLimit(f.Limit)

	var (
		rows pgx.Rows
		err  error
	)
	if f.State != "" {
		rows, err = r.db.Query(ctx, selectJob+` WHERE state=$1 ORDER BY created_at DESC LIMIT $2`, string(f.State), limit)
	} else {
		rows, err = r.db.Query(ctx, selectJob+` ORDER BY created_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		if httpkit.IsUndefinedTable(err) {
			return nil, errors.New(errors.CodeNotConfigured, "job history table is missing")
		}
		return nil, errors.Wrap(err, "jobs.list", "query jobs")
	}
	defer rows.Close()

	out := []models.JobRecord{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "jobs.list", "scan job")
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "jobs.list", "iterate jobs")
	}
	return out, nil
}

// Ping checks database connectivity.
func (r *JobRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// NormalizeLimit clamps a requested page size.
func NormalizeLimit(n int) int {
	if n <= 0 {
		return DefaultListLimit
	}
	if n > MaxListLimit {
		return MaxListLimit
	}
	return n
}

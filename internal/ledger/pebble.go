package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/pebble"

	"gifpipe/internal/models"
	"gifpipe/internal/pkg/errors"
)

var statusPrefix = []byte("status/")

type record struct {
	Status    models.Status `json:"status"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// PebbleLedger is an embedded ledger for single-process deployments. Expired
// records read as PENDING until Purge removes them.
type PebbleLedger struct {
	db  *pebble.DB
	ttl time.Duration
	now func() time.Time
}

func OpenPebble(path string, ttl time.Duration) (*PebbleLedger, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "ledger.open", "failed to open status store").WithField("path", path)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PebbleLedger{db: db, ttl: ttl, now: time.Now}, nil
}

func (l *PebbleLedger) Close() error {
	return l.db.Close()
}

func key(id string) []byte {
	return append(append([]byte{}, statusPrefix...), id...)
}

func (l *PebbleLedger) Get(ctx context.Context, id string) (models.Status, error) {
	data, closer, err := l.db.Get(key(id))
	if err == pebble.ErrNotFound {
		return models.PendingStatus(id), nil
	}
	if err != nil {
		return models.Status{}, errors.Wrap(err, "ledger.get", "read status")
	}
	defer closer.Close()

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.Status{}, errors.Wrap(err, "ledger.get", "corrupt status record").WithField("task_id", id)
	}
	if !l.now().Before(rec.ExpiresAt) {
		return models.PendingStatus(id), nil
	}
	return rec.Status, nil
}

func (l *PebbleLedger) Put(ctx context.Context, st models.Status) error {
	st = stamp(st)
	b, err := json.Marshal(record{Status: st, ExpiresAt: l.now().Add(l.ttl).UTC()})
	if err != nil {
		return errors.Wrap(err, "ledger.put", "marshal status")
	}
	if err := l.db.Set(key(st.TaskID), b, pebble.Sync); err != nil {
		return errors.Wrap(err, "ledger.put", "write status")
	}
	return nil
}

// Purge deletes expired and unreadable records and returns how many were
// removed.
func (l *PebbleLedger) Purge(ctx context.Context) (int, error) {
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: statusPrefix,
		UpperBound: []byte("status0"),
	})
	if err != nil {
		return 0, errors.Wrap(err, "ledger.purge", "open iterator")
	}

	now := l.now()
	var stale [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		if ctx.Err() != nil {
			break
		}
		var rec record
		if err := json.Unmarshal(iter.Value(), &rec); err == nil && now.Before(rec.ExpiresAt) {
			continue
		}
		k := make([]byte, len(iter.Key()))
		copy(k, iter.Key())
		stale = append(stale, k)
	}
	if err := iter.Close(); err != nil {
		return 0, errors.Wrap(err, "ledger.purge", "iterate")
	}

	if len(stale) == 0 {
		return 0, nil
	}
	batch := l.db.NewBatch()
	defer batch.Close()
	for _, k := range stale {
		if err := batch.Delete(k, nil); err != nil {
			return 0, errors.Wrap(err, "ledger.purge", "stage delete")
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, errors.Wrap(err, "ledger.purge", "commit")
	}
	return len(stale), nil
}

package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"gifpipe/internal/models"
	"gifpipe/internal/pkg/errors"
)

// KeyPrefix namespaces status keys in Redis.
const KeyPrefix = "gifpipe:status:"

// RedisLedger keeps statuses as JSON strings that expire ttl after the last
// write.
type RedisLedger struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLedger(rdb *redis.Client, ttl time.Duration) *RedisLedger {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	// Expiry is kept at minute granularity.
	ttl = ttl.Round(time.Minute)
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return &RedisLedger{rdb: rdb, ttl: ttl}
}

func (l *RedisLedger) Get(ctx context.Context, id string) (models.Status, error) {
	raw, err := l.rdb.Get(ctx, KeyPrefix+id).Bytes()
	if err == redis.Nil {
		return models.PendingStatus(id), nil
	}
	if err != nil {
		return models.Status{}, errors.WrapWithCode(err, errors.CodeUnavailable, "ledger.get", "status store unavailable")
	}

	var st models.Status
	if err := json.Unmarshal(raw, &st); err != nil {
		return models.Status{}, errors.Wrap(err, "ledger.get", "corrupt status record").WithField("task_id", id)
	}
	return st, nil
}

func (l *RedisLedger) Put(ctx context.Context, st models.Status) error {
	st = stamp(st)
	b, err := json.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "ledger.put", "marshal status")
	}
	if err := l.rdb.Set(ctx, KeyPrefix+st.TaskID, b, l.ttl).Err(); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "ledger.put", "status store unavailable")
	}
	return nil
}

// TTL is the effective expiry applied to each write.
func (l *RedisLedger) TTL() time.Duration { return l.ttl }

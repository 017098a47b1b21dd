package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"gifpipe/internal/models"
	"gifpipe/internal/pkg/logger"
)

// DefaultHeartbeatTTL is how long a slot stays alive without refreshing its heartbeat.
const DefaultHeartbeatTTL = 30 * time.Second

// RedisQueue is a list-backed queue. Producers LPUSH; each consumer slot
// claims with BLMOVE into its own processing list and keeps a heartbeat key
// alive while it runs. Any consumer moves the contents of a processing list
// whose heartbeat expired back onto the queue.
type RedisQueue struct {
	rdb          *redis.Client
	name         string
	workerID     string
	popTimeout   time.Duration
	maxAttempts  int
	heartbeatTTL time.Duration
	reapInterval time.Duration
	log          *logger.Logger
}

type RedisOptions struct {
	Name        string
	WorkerID    string
	PopTimeout  time.Duration
	MaxAttempts int
	// HeartbeatTTL defaults to DefaultHeartbeatTTL.
	HeartbeatTTL time.Duration
	// ReapInterval defaults to HeartbeatTTL.
	ReapInterval time.Duration
}

func NewRedisQueue(rdb *redis.Client, opts RedisOptions, log *logger.Logger) *RedisQueue {
	if opts.PopTimeout <= 0 {
		opts.PopTimeout = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.WorkerID == "" {
		opts.WorkerID = "worker"
	}
	if opts.HeartbeatTTL <= 0 {
		opts.HeartbeatTTL = DefaultHeartbeatTTL
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = opts.HeartbeatTTL
	}
	return &RedisQueue{
		rdb:          rdb,
		name:         opts.Name,
		workerID:     opts.WorkerID,
		popTimeout:   opts.PopTimeout,
		maxAttempts:  opts.MaxAttempts,
		heartbeatTTL: opts.HeartbeatTTL,
		reapInterval: opts.ReapInterval,
		log:          log.WithComponent("queue"),
	}
}

// ProcessingList is the claim list of one slot of this worker.
func (q *RedisQueue) ProcessingList(slot int) string {
	return fmt.Sprintf("%s:processing:%s:%d", q.name, q.workerID, slot)
}

// HeartbeatKey is the liveness key of one slot of this worker.
func (q *RedisQueue) HeartbeatKey(slot int) string {
	return fmt.Sprintf("%s:alive:%s:%d", q.name, q.workerID, slot)
}

func (q *RedisQueue) heartbeat(ctx context.Context, slot int) error {
	return q.rdb.Set(ctx, q.HeartbeatKey(slot), time.Now().UTC().Format(time.RFC3339), q.heartbeatTTL).Err()
}

// aliveKeyFor maps a processing list key to the heartbeat key of its slot.
func (q *RedisQueue) aliveKeyFor(processing string) string {
	return q.name + ":alive:" + strings.TrimPrefix(processing, q.name+":processing:")
}

func (q *RedisQueue) Enqueue(ctx context.Context, d models.Descriptor) error {
	b, err := encode(d)
	if err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, q.name, b).Err(); err != nil {
		return unavailable(err, "queue.enqueue")
	}
	return nil
}

// Len returns the number of descriptors waiting.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.name).Result()
}

// Recover moves everything left in the slot's processing list back to the head
// of the queue.
func (q *RedisQueue) Recover(ctx context.Context, slot int) (int, error) {
	return q.drain(ctx, q.ProcessingList(slot))
}

// Reap returns the contents of every processing list whose slot heartbeat has
// expired, whichever worker it belonged to.
func (q *RedisQueue) Reap(ctx context.Context) (int, error) {
	total := 0
	iter := q.rdb.Scan(ctx, 0, q.name+":processing:*", 100).Iterator()
	for iter.Next(ctx) {
		processing := iter.Val()
		alive, err := q.rdb.Exists(ctx, q.aliveKeyFor(processing)).Result()
		if err != nil {
			return total, unavailable(err, "queue.reap")
		}
		if alive > 0 {
			continue
		}
		n, err := q.drain(ctx, processing)
		total += n
		if err != nil {
			return total, err
		}
		if n > 0 {
			q.log.Info("reclaimed jobs from a dead slot", "list", processing, "count", n)
		}
	}
	if err := iter.Err(); err != nil {
		return total, unavailable(err, "queue.reap")
	}
	return total, nil
}

func (q *RedisQueue) drain(ctx context.Context, processing string) (int, error) {
	n := 0
	for {
		err := q.rdb.LMove(ctx, processing, q.name, "LEFT", "RIGHT").Err()
		if err == redis.Nil {
			return n, nil
		}
		if err != nil {
			return n, unavailable(err, "queue.recover")
		}
		n++
	}
}

// keepAlive refreshes the slot heartbeat and reaps dead slots until ctx ends.
func (q *RedisQueue) keepAlive(ctx context.Context, slot int, log *logger.Logger) {
	every := q.heartbeatTTL / 3
	if every <= 0 {
		every = q.heartbeatTTL
	}
	beat := time.NewTicker(every)
	defer beat.Stop()
	reap := time.NewTicker(q.reapInterval)
	defer reap.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-beat.C:
			if err := q.heartbeat(ctx, slot); err != nil && ctx.Err() == nil {
				log.Warn("heartbeat failed", "error", err.Error())
			}
		case <-reap.C:
			if _, err := q.Reap(ctx); err != nil && ctx.Err() == nil {
				log.Warn("reap failed", "error", err.Error())
			}
		}
	}
}

func (q *RedisQueue) Consume(ctx context.Context, slot int, h Handler) error {
	log := q.log.WithFields(map[string]any{"slot": slot})

	if err := q.heartbeat(ctx, slot); err != nil {
		log.Warn("heartbeat failed", "error", err.Error())
	}
	if n, err := q.Recover(ctx, slot); err != nil {
		log.Warn("recovery failed", "error", err.Error())
	} else if n > 0 {
		log.Info("recovered unacknowledged jobs", "count", n)
	}
	if _, err := q.Reap(ctx); err != nil {
		log.Warn("reap failed", "error", err.Error())
	}

	// The heartbeat outlives ctx until the in-flight job returns.
	beatCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	go q.keepAlive(beatCtx, slot, log)
	defer func() {
		stop()
		_ = q.rdb.Del(context.WithoutCancel(ctx), q.HeartbeatKey(slot)).Err()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := q.next(ctx, slot, h); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("queue pop error, retrying", "error", err.Error())
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

// next claims at most one descriptor and runs h on it. It reports whether a
// descriptor was claimed.
func (q *RedisQueue) next(ctx context.Context, slot int, h Handler) (bool, error) {
	processing := q.ProcessingList(slot)
	raw, err := q.rdb.BLMove(ctx, q.name, processing, "RIGHT", "LEFT", q.popTimeout).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	d, err := decode([]byte(raw))
	if err != nil {
		q.log.Error("dropping malformed descriptor", "error", err.Error())
		return true, q.ack(ctx, processing, raw)
	}

	if herr := h(ctx, d); herr != nil {
		return true, q.retry(ctx, processing, raw, d, herr)
	}
	return true, q.ack(ctx, processing, raw)
}

func (q *RedisQueue) ack(ctx context.Context, processing, raw string) error {
	return q.rdb.LRem(context.WithoutCancel(ctx), processing, 1, raw).Err()
}

func (q *RedisQueue) retry(ctx context.Context, processing, raw string, d models.Descriptor, cause error) error {
	log := q.log.WithJobID(d.ID)
	if !retryable(d, q.maxAttempts) {
		log.Error("giving up on job", "attempt", d.Attempt+1, "error", cause.Error())
		return q.ack(ctx, processing, raw)
	}

	d.Attempt++
	b, err := encode(d)
	if err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)
	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, processing, 1, raw)
		p.LPush(ctx, q.name, b)
		return nil
	})
	if err != nil {
		return err
	}
	log.Warn("job requeued", "attempt", d.Attempt, "error", cause.Error())
	return nil
}

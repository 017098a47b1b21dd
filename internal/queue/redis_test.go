package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"gifpipe/internal/models"
	apperrors "gifpipe/internal/pkg/errors"
	"gifpipe/internal/pkg/logger"
)

func newTestRedisQueue(t *testing.T, maxAttempts int) (*RedisQueue, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	q := NewRedisQueue(rdb, RedisOptions{
		Name:        "test:jobs",
		WorkerID:    "w1",
		PopTimeout:  time.Second,
		MaxAttempts: maxAttempts,
	}, logger.Discard())
	return q, rdb, mr
}

func descriptor(id string) models.Descriptor {
	return models.Descriptor{ID: id, SourceKey: "uploads/" + id + "_clip.mp4", SourceName: id + "_clip.mp4", SourceKind: models.SourceUpload}
}

func TestRedisProcessingList(t *testing.T) {
	q, _, _ := newTestRedisQueue(t, 3)
	if got := q.ProcessingList(2); got != "test:jobs:processing:w1:2" {
		t.Errorf("ProcessingList() = %s", got)
	}
}

func TestRedisEnqueueAndAck(t *testing.T) {
	q, rdb, _ := newTestRedisQueue(t, 3)
	ctx := context.Background()

	if err := q.Enqueue(ctx, descriptor("a")); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if n, _ := q.Len(ctx); n != 1 {
		t.Fatalf("Len() = %d, want 1", n)
	}

	var got models.Descriptor
	claimed, err := q.next(ctx, 0, func(ctx context.Context, d models.Descriptor) error {
		got = d
		return nil
	})
	if err != nil || !claimed {
		t.Fatalf("next() = %v, %v", claimed, err)
	}
	if got.ID != "a" || got.SourceKey != "uploads/a_clip.mp4" {
		t.Errorf("handler got %+v", got)
	}
	if n := rdb.LLen(ctx, q.ProcessingList(0)).Val(); n != 0 {
		t.Errorf("processing list holds %d items after ack", n)
	}
	if n, _ := q.Len(ctx); n != 0 {
		t.Errorf("queue holds %d items after ack", n)
	}
}

func TestRedisFIFO(t *testing.T) {
	q, _, _ := newTestRedisQueue(t, 3)
	ctx := context.Background()
	for _, id := range []string{"first", "second"} {
		if err := q.Enqueue(ctx, descriptor(id)); err != nil {
			t.Fatal(err)
		}
	}

	var order []string
	for i := 0; i < 2; i++ {
		if _, err := q.next(ctx, 0, func(ctx context.Context, d models.Descriptor) error {
			order = append(order, d.ID)
			return nil
		}); err != nil {
			t.Fatal(err)
		}
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("order = %v", order)
	}
}

func TestRedisRetryUntilMaxAttempts(t *testing.T) {
	q, rdb, _ := newTestRedisQueue(t, 2)
	ctx := context.Background()
	if err := q.Enqueue(ctx, descriptor("a")); err != nil {
		t.Fatal(err)
	}

	var attempts []int
	failing := func(ctx context.Context, d models.Descriptor) error {
		attempts = append(attempts, d.Attempt)
		return errors.New("ledger down")
	}

	if _, err := q.next(ctx, 0, failing); err != nil {
		t.Fatalf("next() error = %v", err)
	}
	raw := rdb.LRange(ctx, "test:jobs", 0, -1).Val()
	if len(raw) != 1 {
		t.Fatalf("expected descriptor back on the queue, got %v", raw)
	}
	var d models.Descriptor
	if err := json.Unmarshal([]byte(raw[0]), &d); err != nil || d.Attempt != 1 {
		t.Fatalf("requeued descriptor = %+v, %v", d, err)
	}

	if _, err := q.next(ctx, 0, failing); err != nil {
		t.Fatalf("next() error = %v", err)
	}
	if n, _ := q.Len(ctx); n != 0 {
		t.Errorf("exhausted descriptor still queued")
	}
	if n := rdb.LLen(ctx, q.ProcessingList(0)).Val(); n != 0 {
		t.Errorf("processing list holds %d items", n)
	}
	if len(attempts) != 2 || attempts[0] != 0 || attempts[1] != 1 {
		t.Errorf("attempts = %v", attempts)
	}
}

func TestRedisMalformedIsDropped(t *testing.T) {
	q, rdb, _ := newTestRedisQueue(t, 3)
	ctx := context.Background()
	rdb.LPush(ctx, "test:jobs", "{not json")

	called := false
	claimed, err := q.next(ctx, 0, func(ctx context.Context, d models.Descriptor) error {
		called = true
		return nil
	})
	if err != nil || !claimed || called {
		t.Fatalf("next() = %v, %v, handler called %v", claimed, err, called)
	}
	if n := rdb.LLen(ctx, q.ProcessingList(0)).Val(); n != 0 {
		t.Errorf("malformed descriptor left in processing list")
	}
}

func TestRedisRecover(t *testing.T) {
	q, rdb, _ := newTestRedisQueue(t, 3)
	ctx := context.Background()

	b, _ := json.Marshal(descriptor("crashed"))
	rdb.LPush(ctx, q.ProcessingList(1), b)

	n, err := q.Recover(ctx, 1)
	if err != nil || n != 1 {
		t.Fatalf("Recover() = %d, %v", n, err)
	}
	if l, _ := q.Len(ctx); l != 1 {
		t.Errorf("Len() = %d after recovery", l)
	}
	if n := rdb.LLen(ctx, q.ProcessingList(1)).Val(); n != 0 {
		t.Errorf("processing list holds %d items", n)
	}
}

func TestRedisConsume(t *testing.T) {
	q, rdb, _ := newTestRedisQueue(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, _ := json.Marshal(descriptor("left-over"))
	rdb.LPush(ctx, q.ProcessingList(0), b)
	if err := q.Enqueue(ctx, descriptor("fresh")); err != nil {
		t.Fatal(err)
	}

	seen := make(chan string, 2)
	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, 0, func(ctx context.Context, d models.Descriptor) error {
			seen <- d.ID
			return nil
		})
	}()

	got := map[string]bool{}
	for len(got) < 2 {
		select {
		case id := <-seen:
			got[id] = true
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out, saw %v", got)
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Consume() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Consume did not stop")
	}
	if rdb.Exists(context.Background(), q.HeartbeatKey(0)).Val() != 0 {
		t.Error("heartbeat left behind after Consume returned")
	}
}

func workerQueue(rdb *redis.Client, id string, ttl time.Duration) *RedisQueue {
	return NewRedisQueue(rdb, RedisOptions{
		Name:         "test:jobs",
		WorkerID:     id,
		PopTimeout:   time.Second,
		MaxAttempts:  3,
		HeartbeatTTL: ttl,
		ReapInterval: 50 * time.Millisecond,
	}, logger.Discard())
}

// claim moves the next descriptor into the slot's processing list the way
// BLMOVE does, without acknowledging it.
func claim(t *testing.T, q *RedisQueue, slot int) {
	t.Helper()
	ctx := context.Background()
	if err := q.heartbeat(ctx, slot); err != nil {
		t.Fatal(err)
	}
	if err := q.rdb.LMove(ctx, q.name, q.ProcessingList(slot), "RIGHT", "LEFT").Err(); err != nil {
		t.Fatal(err)
	}
}

func TestRedisHeartbeatKey(t *testing.T) {
	q, _, _ := newTestRedisQueue(t, 3)
	if got := q.HeartbeatKey(2); got != "test:jobs:alive:w1:2" {
		t.Errorf("HeartbeatKey() = %s", got)
	}
	if got := q.aliveKeyFor("test:jobs:processing:pod:x:4"); got != "test:jobs:alive:pod:x:4" {
		t.Errorf("aliveKeyFor() = %s", got)
	}
}

func TestRedisReapSkipsLiveSlots(t *testing.T) {
	_, rdb, mr := newTestRedisQueue(t, 3)
	ctx := context.Background()
	podA := workerQueue(rdb, "pod-a", 2*time.Second)
	podB := workerQueue(rdb, "pod-b", 2*time.Second)

	if err := podA.Enqueue(ctx, descriptor("job-1")); err != nil {
		t.Fatal(err)
	}
	claim(t, podA, 0)

	if n, err := podB.Reap(ctx); err != nil || n != 0 {
		t.Fatalf("Reap() with a live heartbeat = %d, %v", n, err)
	}
	if n := rdb.LLen(ctx, podA.ProcessingList(0)).Val(); n != 1 {
		t.Fatalf("live slot lost its claim, list holds %d", n)
	}

	mr.FastForward(3 * time.Second)

	if n, err := podB.Reap(ctx); err != nil || n != 1 {
		t.Fatalf("Reap() after heartbeat expiry = %d, %v", n, err)
	}
	if l, _ := podB.Len(ctx); l != 1 {
		t.Errorf("Len() = %d after reaping", l)
	}
	if n := rdb.LLen(ctx, podA.ProcessingList(0)).Val(); n != 0 {
		t.Errorf("dead slot still holds %d items", n)
	}
}

func TestRedisCrashedWorkerJobReachesAnotherWorker(t *testing.T) {
	_, rdb, mr := newTestRedisQueue(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	podA := workerQueue(rdb, "pod-a", 2*time.Second)
	podB := workerQueue(rdb, "pod-b", time.Minute)

	if err := podA.Enqueue(ctx, descriptor("job-1")); err != nil {
		t.Fatal(err)
	}
	claim(t, podA, 0)

	seen := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- podB.Consume(ctx, 0, func(ctx context.Context, d models.Descriptor) error {
			select {
			case seen <- d.ID:
			default:
			}
			return nil
		})
	}()

	select {
	case id := <-seen:
		t.Fatalf("%s taken from a live worker", id)
	case <-time.After(300 * time.Millisecond):
	}

	// pod-a stops refreshing its heartbeat.
	mr.FastForward(3 * time.Second)

	select {
	case id := <-seen:
		if id != "job-1" {
			t.Errorf("handled %s, want job-1", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("job claimed by pod-a never reached pod-b; stranded %d", rdb.LLen(ctx, podA.ProcessingList(0)).Val())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Consume did not stop")
	}
}

func TestRedisEnqueueUnavailable(t *testing.T) {
	q, _, mr := newTestRedisQueue(t, 3)
	mr.Close()

	err := q.Enqueue(context.Background(), descriptor("a"))
	if apperrors.GetCode(err) != apperrors.CodeUnavailable {
		t.Fatalf("expected UNAVAILABLE, got %v", err)
	}
}

package sweeper

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"gifpipe/internal/pkg/logger"
	"gifpipe/internal/storage/storagetest"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSweeper(store *storagetest.MemStore, cfg Config, hooks ...Hook) *Sweeper {
	s := New(store, cfg, logger.Discard(), hooks...)
	s.now = func() time.Time { return now }
	return s
}

func TestRunOnceDeletesExpired(t *testing.T) {
	store := storagetest.New()
	store.Set("uploads/old.mp4", []byte("x"), "video/mp4", now.Add(-25*time.Hour))
	store.Set("uploads/new.mp4", []byte("x"), "video/mp4", now.Add(-23*time.Hour))
	store.Set("gifs/old.gif", []byte("x"), "image/gif", now.Add(-25*time.Hour))
	store.Set("gifs/new.gif", []byte("x"), "image/gif", now.Add(-time.Minute))
	store.Set("keep/forever.txt", []byte("x"), "text/plain", now.Add(-1000*time.Hour))

	rep, err := newTestSweeper(store, Config{TTL: 24 * time.Hour}).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if rep.Scanned != 4 || rep.Deleted != 2 || rep.Kept != 2 || rep.Failed != 0 {
		t.Errorf("report = %+v", rep)
	}

	want := []string{"gifs/new.gif", "keep/forever.txt", "uploads/new.mp4"}
	got := store.Keys()
	if len(got) != len(want) {
		t.Fatalf("remaining keys = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("remaining keys = %v, want %v", got, want)
			break
		}
	}
}

func TestRunOnceContinuesAfterErrors(t *testing.T) {
	store := storagetest.New()
	store.Set("uploads/a.mp4", []byte("x"), "", now.Add(-48*time.Hour))
	store.Set("uploads/b.mp4", []byte("x"), "", now.Add(-48*time.Hour))
	store.Set("uploads/c.mp4", []byte("x"), "", now.Add(-48*time.Hour))
	store.Set("gifs/a.gif", []byte("x"), "", now.Add(-48*time.Hour))
	store.FailDelete = func(key string) error {
		if key == "uploads/b.mp4" {
			return storagetest.ErrInjected
		}
		return nil
	}

	rep, err := newTestSweeper(store, Config{TTL: time.Hour}).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("individual delete failures must not fail the pass: %v", err)
	}
	if rep.Deleted != 3 || rep.Failed != 1 {
		t.Errorf("report = %+v", rep)
	}
	if !store.Has("uploads/b.mp4") || store.Has("uploads/c.mp4") {
		t.Errorf("remaining keys = %v", store.Keys())
	}
}

func TestRunOnceListFailure(t *testing.T) {
	store := storagetest.New()
	store.Set("gifs/a.gif", []byte("x"), "", now.Add(-48*time.Hour))
	store.FailList = func(prefix string) error {
		if prefix == "uploads/" {
			return storagetest.ErrInjected
		}
		return nil
	}

	rep, err := newTestSweeper(store, Config{TTL: time.Hour}).RunOnce(context.Background())
	if !errors.Is(err, storagetest.ErrInjected) {
		t.Errorf("expected list failure in result, got %v", err)
	}
	if rep.Deleted != 1 {
		t.Errorf("other prefixes must still be swept: %+v", rep)
	}
}

func TestRunOnceHooks(t *testing.T) {
	store := storagetest.New()
	var calls int
	hooks := []Hook{
		{Name: "ledger", Run: func(ctx context.Context) (int, error) { calls++; return 3, nil }},
		{Name: "broken", Run: func(ctx context.Context) (int, error) { return 0, errors.New("boom") }},
	}

	rep, err := newTestSweeper(store, Config{}, hooks...).RunOnce(context.Background())
	if err == nil {
		t.Error("expected hook error to be reported")
	}
	if calls != 1 || rep.Purged["ledger"] != 3 {
		t.Errorf("report = %+v, calls = %d", rep, calls)
	}
}

func TestRunOnceSkipsWhenLocked(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "locks", "sweep.lock")
	store := storagetest.New()
	store.Set("gifs/old.gif", []byte("x"), "", now.Add(-48*time.Hour))
	s := newTestSweeper(store, Config{TTL: time.Hour, LockFile: lockPath})

	// The first pass creates the lock directory.
	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	store.Set("gifs/old2.gif", []byte("x"), "", now.Add(-48*time.Hour))
	other := flock.New(lockPath)
	ok, err := other.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock() = %v, %v", ok, err)
	}
	defer other.Unlock()

	rep, err := s.RunOnce(context.Background())
	if err != nil || !rep.Skipped {
		t.Fatalf("RunOnce() = %+v, %v, want skipped", rep, err)
	}
	if !store.Has("gifs/old2.gif") {
		t.Error("a skipped pass must not delete")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	store := storagetest.New()
	store.Set("gifs/old.gif", []byte("x"), "", now.Add(-48*time.Hour))
	s := newTestSweeper(store, Config{TTL: time.Hour, Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for store.Has("gifs/old.gif") {
		select {
		case <-deadline:
			t.Fatal("first pass did not run")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

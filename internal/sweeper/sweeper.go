// Package sweeper deletes expired uploads and artifacts from the blob store.
package sweeper

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"gifpipe/internal/pkg/errors"
	"gifpipe/internal/pkg/logger"
	"gifpipe/internal/ports"
)

// DefaultPrefixes are the key prefixes holding transient objects.
var DefaultPrefixes = []string{"uploads/", "gifs/"}

type Config struct {
	TTL      time.Duration
	Interval time.Duration
	Prefixes []string
	// LockFile, when set, serialises sweeps across processes.
	LockFile string
}

// Hook runs after each sweep pass and reports how many items it removed.
type Hook struct {
	Name string
	Run  func(ctx context.Context) (int, error)
}

// Report summarises one pass.
type Report struct {
	Scanned  int
	Deleted  int
	Kept     int
	Failed   int
	Purged   map[string]int
	Skipped  bool
	Duration time.Duration
}

type Sweeper struct {
	sp    ports.StorageProvider
	cfg   Config
	log   *logger.Logger
	lock  *flock.Flock
	hooks []Hook
	now   func() time.Time
}

func New(sp ports.StorageProvider, cfg Config, log *logger.Logger, hooks ...Hook) *Sweeper {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if len(cfg.Prefixes) == 0 {
		cfg.Prefixes = DefaultPrefixes
	}
	s := &Sweeper{sp: sp, cfg: cfg, log: log.WithComponent("sweeper"), hooks: hooks, now: time.Now}
	if cfg.LockFile != "" {
		s.lock = flock.New(cfg.LockFile)
	}
	return s
}

// RunOnce deletes every object under the configured prefixes whose ModTime is
// older than the TTL. Individual failures are counted and do not stop the pass.
func (s *Sweeper) RunOnce(ctx context.Context) (Report, error) {
	start := s.now()
	rep := Report{Purged: map[string]int{}}

	if s.lock != nil {
		if err := os.MkdirAll(filepath.Dir(s.cfg.LockFile), 0o755); err != nil {
			return rep, errors.Wrap(err, "sweeper.lock", "create lock directory")
		}
		ok, err := s.lock.TryLock()
		if err != nil {
			return rep, errors.Wrap(err, "sweeper.lock", "acquire lock")
		}
		if !ok {
			s.log.Info("another sweep holds the lock, skipping", "lock", s.cfg.LockFile)
			rep.Skipped = true
			return rep, nil
		}
		defer func() {
			if err := s.lock.Unlock(); err != nil {
				s.log.Warn("failed to release sweep lock", "error", err.Error())
			}
		}()
	}

	var errs []error
	cutoff := start.Add(-s.cfg.TTL)
	for _, prefix := range s.cfg.Prefixes {
		objs, err := s.sp.ListObjects(ctx, prefix)
		if err != nil {
			s.log.Error("list failed", "prefix", prefix, "error", err.Error())
			errs = append(errs, errors.Storage(err, "sweeper.list", prefix))
			continue
		}
		for _, o := range objs {
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			rep.Scanned++
			if !o.ModTime.Before(cutoff) {
				rep.Kept++
				continue
			}
			if err := s.sp.DeleteObject(ctx, o.Key); err != nil {
				rep.Failed++
				s.log.Warn("delete failed", "key", o.Key, "error", err.Error())
				continue
			}
			rep.Deleted++
			s.log.Debug("expired object deleted", "key", o.Key, "age", start.Sub(o.ModTime).String())
		}
	}

	for _, h := range s.hooks {
		n, err := h.Run(ctx)
		if err != nil {
			s.log.Error("sweep hook failed", "hook", h.Name, "error", err.Error())
			errs = append(errs, errors.Wrap(err, "sweeper.hook", h.Name))
			continue
		}
		rep.Purged[h.Name] = n
	}

	rep.Duration = s.now().Sub(start)
	s.log.Info("sweep complete",
		"scanned", rep.Scanned,
		"deleted", rep.Deleted,
		"kept", rep.Kept,
		"failed", rep.Failed,
		"duration_ms", rep.Duration.Milliseconds(),
	)
	return rep, errors.Join(errs...)
}

// Run sweeps immediately and then every Interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.log.Info("sweeper started", "ttl", s.cfg.TTL.String(), "interval", s.cfg.Interval.String())
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("sweep failed", "error", err.Error())
		}
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

// Package app assembles the process from configuration and runs its
// long-lived components.
package app

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"gifpipe/internal/acquire"
	"gifpipe/internal/config"
	"gifpipe/internal/httpapi"
	"gifpipe/internal/httpapi/handlers"
	"gifpipe/internal/ledger"
	"gifpipe/internal/media"
	"gifpipe/internal/pkg/errors"
	"gifpipe/internal/pkg/logger"
	"gifpipe/internal/pkg/shutdown"
	"gifpipe/internal/ports"
	"gifpipe/internal/queue"
	"gifpipe/internal/repositories"
	"gifpipe/internal/signedurl"
	"gifpipe/internal/storage"
	"gifpipe/internal/sweeper"
	"gifpipe/internal/worker"
	"gifpipe/internal/worker/processor"
)

// Version is reported by the health endpoint.
var Version = "0.1.0"

// Roles selects which components a process runs.
type Roles struct {
	API     bool
	Worker  bool
	Sweeper bool
}

// Container owns every dependency of a process. Resources are registered with
// Shutdown in construction order and released in reverse.
type Container struct {
	Config   *config.Config
	Log      *logger.Logger
	Shutdown *shutdown.Manager

	Redis   *redis.Client
	DB      *pgxpool.Pool
	Jobs    *repositories.JobRepository
	Storage ports.StorageProvider
	Signer  *signedurl.Signer
	Ledger  ledger.Ledger

	Producer  queue.Producer
	Consumer  queue.Consumer
	Acquirer  *acquire.Acquirer
	Engine    *media.Engine
	Processor *processor.Processor
	Sweeper   *sweeper.Sweeper
	Server    *http.Server

	roles  Roles
	checks []handlers.Check
	purge  []sweeper.Hook

	failCtx  context.Context
	fail     context.CancelCauseFunc
	cancel   context.CancelFunc
	group    *errgroup.Group
	listener net.Listener
}

// New builds the components roles need. On error, whatever was already opened
// is released.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, roles Roles) (*Container, error) {
	c := &Container{
		Config:   cfg,
		Log:      log,
		Shutdown: shutdown.NewManager(log, cfg.HTTP.ShutdownTimeout),
		roles:    roles,
	}
	c.failCtx, c.fail = context.WithCancelCause(context.Background())

	steps := []func(context.Context) error{
		c.openRedis,
		c.openDatabase,
		c.openStorage,
		c.openLedger,
		c.openQueue,
		c.buildWorker,
		c.buildSweeper,
		c.buildServer,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			_ = c.Shutdown.Shutdown()
			return nil, err
		}
	}
	return c, nil
}

func (c *Container) openRedis(ctx context.Context) error {
	cfg := c.Config
	if cfg.Queue.Backend != "redis" && cfg.Ledger.Backend != "redis" {
		return nil
	}

	c.Log.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	c.Shutdown.RegisterCloser("redis", rdb)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "app.redis", "failed to ping Redis")
	}
	c.Log.Info("Redis connected")

	c.Redis = rdb
	c.checks = append(c.checks, handlers.Check{
		Name: "redis",
		Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})
	return nil
}

func (c *Container) openDatabase(ctx context.Context) error {
	url := c.Config.Database.URL
	if url == "" {
		c.Log.Info("DATABASE_URL not set, job history disabled")
		return nil
	}

	c.Log.Info("connecting to PostgreSQL")
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "app.postgres", "failed to connect to PostgreSQL")
	}
	c.Shutdown.RegisterSimple("postgres", pool.Close)

	if err := pool.Ping(ctx); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "app.postgres", "failed to ping PostgreSQL")
	}
	repo := repositories.NewJobRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		return err
	}
	c.Log.Info("PostgreSQL connected")

	c.DB = pool
	c.Jobs = repo
	c.checks = append(c.checks, handlers.Check{Name: "postgres", Ping: repo.Ping})
	return nil
}

func (c *Container) openStorage(ctx context.Context) error {
	cfg := c.Config.Storage

	if cfg.Provider == "" || cfg.Provider == "localfs" {
		signer, err := signedurl.New([]byte(cfg.SigningKey))
		if err != nil {
			return errors.WrapWithCode(err, errors.CodeValidation, "app.storage", "invalid STORAGE_SIGNING_KEY")
		}
		if cfg.SigningKey == "" && c.roles.API {
			c.Log.Warn("STORAGE_SIGNING_KEY not set, signed links only verify in this process")
		}
		c.Signer = signer
	}

	sp, err := storage.NewProvider(ctx, cfg, c.Config.HTTP.PublicBaseURL, c.Signer)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "app.storage", "failed to initialize storage provider")
	}
	if cl, ok := sp.(io.Closer); ok {
		c.Shutdown.RegisterCloser("storage", cl)
	}
	c.Log.Info("storage provider initialized", "provider", sp.Provider())

	c.Storage = sp
	return nil
}

func (c *Container) openLedger(ctx context.Context) error {
	cfg := c.Config.Ledger
	switch cfg.Backend {
	case "pebble":
		l, err := ledger.OpenPebble(cfg.Path, cfg.TTL)
		if err != nil {
			return err
		}
		c.Shutdown.RegisterCloser("ledger", l)
		c.purge = append(c.purge, sweeper.Hook{Name: "ledger", Run: l.Purge})
		c.Ledger = l
	default:
		c.Ledger = ledger.NewRedisLedger(c.Redis, cfg.TTL)
	}
	c.Log.Info("status ledger ready", "backend", cfg.Backend, "ttl", cfg.TTL.String())
	return nil
}

func (c *Container) openQueue(ctx context.Context) error {
	cfg := c.Config.Queue
	switch cfg.Backend {
	case "local":
		q := queue.NewLocalQueue(cfg.LocalBuffer, cfg.MaxAttempts, c.Log)
		c.Producer, c.Consumer = q, q

	case "kafka":
		p, err := queue.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return errors.WrapWithCode(err, errors.CodeUnavailable, "app.kafka", "failed to connect to Kafka")
		}
		c.Shutdown.RegisterCloser("kafka-producer", p)
		c.Producer = p
		c.Consumer = queue.NewKafkaConsumer(queue.KafkaOptions{
			Brokers:     cfg.KafkaBrokers,
			Group:       cfg.KafkaGroup,
			Topic:       cfg.KafkaTopic,
			MaxAttempts: cfg.MaxAttempts,
		}, p, c.Log)

	default:
		q := queue.NewRedisQueue(c.Redis, queue.RedisOptions{
			Name:         cfg.Name,
			WorkerID:     c.Config.Worker.ID,
			PopTimeout:   cfg.PopTimeout,
			MaxAttempts:  cfg.MaxAttempts,
			HeartbeatTTL: cfg.HeartbeatTTL,
		}, c.Log)
		c.Producer, c.Consumer = q, q
	}
	c.Log.Info("job queue ready", "backend", cfg.Backend)
	return nil
}

func (c *Container) buildWorker(ctx context.Context) error {
	if !c.roles.Worker {
		return nil
	}
	cfg := c.Config

	c.Engine = media.NewEngine(media.Config{
		FFmpegBin:      cfg.Media.FFmpegBin,
		FFprobeBin:     cfg.Media.FFprobeBin,
		FontDirs:       cfg.Media.FontDirs,
		FontCandidates: cfg.Media.FontCandidates,
		ScratchDir:     cfg.Worker.ScratchDir,
	}, c.Log)

	c.Processor = processor.New(processor.Deps{
		Ledger:     c.Ledger,
		SP:         c.Storage,
		Engine:     c.Engine,
		History:    c.history(),
		ScratchDir: cfg.Worker.ScratchDir,
		Log:        c.Log,
	})
	return nil
}

func (c *Container) buildSweeper(ctx context.Context) error {
	if !c.roles.Sweeper || !c.Config.Retention.Enabled {
		return nil
	}
	cfg := c.Config.Retention
	c.Sweeper = sweeper.New(c.Storage, sweeper.Config{
		TTL:      cfg.TTL,
		Interval: cfg.Interval,
		LockFile: cfg.LockFile,
	}, c.Log, c.purge...)
	return nil
}

func (c *Container) buildServer(ctx context.Context) error {
	if !c.roles.API {
		return nil
	}
	cfg := c.Config

	c.Acquirer = acquire.New(acquire.Config{
		ScratchDir:  filepath.Join(cfg.Worker.ScratchDir, "intake"),
		MaxBytes:    cfg.MaxUploadBytes(),
		YtDlpBin:    cfg.Media.YtDlpBin,
		CookiesFile: cfg.Media.YtDlpCookies,
	}, c.Log)

	deps := handlers.Deps{
		Acquirer:      c.Acquirer,
		Producer:      c.Producer,
		Ledger:        c.Ledger,
		SP:            c.Storage,
		History:       c.history(),
		Signer:        c.Signer,
		PublicBaseURL: cfg.HTTP.PublicBaseURL,
		SignedURLTTL:  cfg.Storage.SignedURLTTL,
		MaxUploadSize: cfg.MaxUploadBytes(),
		Checks:        c.checks,
		Version:       Version,
		Log:           c.Log,
	}
	if c.Jobs != nil {
		deps.Jobs = c.Jobs
	}

	c.Server = &http.Server{
		Addr: "0.0.0.0:" + cfg.HTTP.Port,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Handlers:    deps,
			CORSOrigins: cfg.HTTP.CORSOrigins,
			Log:         c.Log,
		}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}
	return nil
}

func (c *Container) history() repositories.JobRecorder {
	if c.Jobs == nil {
		return repositories.NopRecorder{}
	}
	return c.Jobs
}

// Start launches the HTTP server, worker slots and sweeper selected by the
// roles. It returns once they are running; a component that fails ends Done.
func (c *Container) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	c.cancel, c.group = cancel, g

	if c.Server != nil {
		ln, err := net.Listen("tcp", c.Server.Addr)
		if err != nil {
			cancel()
			return errors.WrapWithCode(err, errors.CodeUnavailable, "app.http", "failed to listen")
		}
		c.listener = ln
		g.Go(func() error {
			c.Log.Info("HTTP server listening", "addr", ln.Addr().String())
			if err := c.Server.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				c.fail(err)
				return err
			}
			return nil
		})
	}

	if c.Processor != nil {
		g.Go(func() error {
			err := worker.Run(gctx, worker.Deps{
				Consumer:    c.Consumer,
				Processor:   c.Processor,
				Concurrency: c.Config.Worker.Concurrency,
				Log:         c.Log,
			})
			if err != nil {
				c.fail(err)
			}
			return err
		})
	}

	if c.Sweeper != nil {
		g.Go(func() error {
			c.Sweeper.Run(gctx)
			return nil
		})
	}

	c.Shutdown.Register("runtime", c.Stop)
	return nil
}

// Stop stops accepting requests, stops claiming jobs and waits for in-flight
// work until ctx ends.
func (c *Container) Stop(ctx context.Context) error {
	var errs []error
	if c.Server != nil {
		c.Log.Info("shutting down HTTP server")
		if err := c.Server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if c.cancel != nil {
		c.cancel()
	}
	if c.group != nil {
		done := make(chan error, 1)
		go func() { done <- c.group.Wait() }()
		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			errs = append(errs, errors.Timeout("app.stop"))
		}
	}
	return stderrors.Join(errs...)
}

// Addr is the address the HTTP server listens on once started.
func (c *Container) Addr() string {
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

// Done is canceled when a started component fails.
func (c *Container) Done() context.Context { return c.failCtx }

// Err reports why Done ended, or nil.
func (c *Container) Err() error {
	if c.failCtx.Err() == nil {
		return nil
	}
	return context.Cause(c.failCtx)
}

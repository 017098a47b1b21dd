// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"gifpipe/internal/pkg/errors"
	"gifpipe/internal/pkg/logger"
)

// Log configures the process logger.
type Log struct {
	Level       string `env:"LOG_LEVEL" env-default:"info"`
	Format      string `env:"LOG_FORMAT" env-default:""`
	AddSource   bool   `env:"LOG_SOURCE" env-default:"false"`
	ServiceName string `env:"SERVICE_NAME" env-default:"gifpipe"`
}

// HTTP configures the request tier.
type HTTP struct {
	Port            string        `env:"HTTP_PORT" env-default:"8080"`
	PublicBaseURL   string        `env:"PUBLIC_BASE_URL" env-default:"http://localhost:8080"`
	MaxUploadMB     int64         `env:"MAX_UPLOAD_MB" env-default:"50"`
	CORSOrigins     []string      `env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"*"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" env-default:"60s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"30s"`
}

// Redis configures the broker and ledger connection.
type Redis struct {
	Addr     string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD" env-default:""`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

// Database configures the optional job history store.
type Database struct {
	URL string `env:"DATABASE_URL" env-default:""`
}

// Queue selects and configures the broker.
type Queue struct {
	Backend      string        `env:"QUEUE_BACKEND" env-default:"redis"`
	Name         string        `env:"JOB_QUEUE_NAME" env-default:"gifpipe:jobs"`
	PopTimeout   time.Duration `env:"QUEUE_POP_TIMEOUT" env-default:"30s"`
	MaxAttempts  int           `env:"QUEUE_MAX_ATTEMPTS" env-default:"3"`
	HeartbeatTTL time.Duration `env:"QUEUE_HEARTBEAT_TTL" env-default:"30s"`
	LocalBuffer  int           `env:"QUEUE_LOCAL_BUFFER" env-default:"256"`
	KafkaBrokers []string      `env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`
	KafkaTopic   string        `env:"KAFKA_TOPIC" env-default:"gifpipe.jobs"`
	KafkaGroup   string        `env:"KAFKA_GROUP" env-default:"gifpipe-workers"`
}

// Ledger selects and configures the status store.
type Ledger struct {
	Backend string        `env:"LEDGER_BACKEND" env-default:"redis"`
	TTL     time.Duration `env:"LEDGER_TTL" env-default:"24h"`
	Path    string        `env:"LEDGER_PATH" env-default:"./data/ledger"`
}

// Storage selects and configures the blob store.
type Storage struct {
	Provider     string        `env:"STORAGE_PROVIDER" env-default:"localfs"`
	SignedURLTTL time.Duration `env:"SIGNED_URL_TTL" env-default:"10m"`

	LocalRoot  string `env:"STORAGE_LOCAL_ROOT" env-default:"./data/blobs"`
	SigningKey string `env:"STORAGE_SIGNING_KEY" env-default:""`

	GCSBucket          string `env:"GCS_BUCKET" env-default:""`
	GCSCredentialsFile string `env:"GCS_CREDENTIALS_FILE" env-default:""`

	S3Bucket       string `env:"S3_BUCKET" env-default:""`
	S3Region       string `env:"S3_REGION" env-default:"us-east-1"`
	S3Endpoint     string `env:"S3_ENDPOINT" env-default:""`
	S3AccessKey    string `env:"S3_ACCESS_KEY_ID" env-default:""`
	S3SecretKey    string `env:"S3_SECRET_ACCESS_KEY" env-default:""`
	S3UsePathStyle bool   `env:"S3_USE_PATH_STYLE" env-default:"false"`

	GDriveFolderID     string `env:"GDRIVE_FOLDER_ID" env-default:""`
	GDriveClientID     string `env:"GDRIVE_CLIENT_ID" env-default:""`
	GDriveClientSecret string `env:"GDRIVE_CLIENT_SECRET" env-default:""`
	GDriveRefreshToken string `env:"GDRIVE_REFRESH_TOKEN" env-default:""`
}

// Worker configures the worker pool.
type Worker struct {
	ID          string `env:"WORKER_ID" env-default:""`
	Concurrency int    `env:"WORKER_CONCURRENCY" env-default:"2"`
	ScratchDir  string `env:"SCRATCH_DIR" env-default:"./data/scratch"`
}

// Media configures the external tools used by the transform engine and acquisition.
type Media struct {
	FFmpegBin      string   `env:"FFMPEG_BIN" env-default:"ffmpeg"`
	FFprobeBin     string   `env:"FFPROBE_BIN" env-default:"ffprobe"`
	YtDlpBin       string   `env:"YTDLP_BIN" env-default:"yt-dlp"`
	YtDlpCookies   string   `env:"YTDLP_COOKIES_FILE" env-default:""`
	FontDirs       []string `env:"FONT_DIRS" env-separator:"," env-default:"/usr/share/fonts/truetype/dejavu,/usr/share/fonts/truetype/liberation,/usr/share/fonts/truetype/freefont,/Library/Fonts,/System/Library/Fonts"`
	FontCandidates []string `env:"FONT_CANDIDATES" env-separator:"," env-default:"DejaVuSans.ttf,LiberationSans-Regular.ttf,Arial.ttf,FreeSans.ttf,Helvetica.ttc"`
}

// Retention configures the sweeper.
type Retention struct {
	Enabled  bool          `env:"RETENTION_ENABLED" env-default:"true"`
	TTL      time.Duration `env:"RETENTION_TTL" env-default:"24h"`
	Interval time.Duration `env:"RETENTION_INTERVAL" env-default:"24h"`
	LockFile string        `env:"RETENTION_LOCK_FILE" env-default:""`
}

// Config is the full process configuration.
type Config struct {
	Log       Log
	HTTP      HTTP
	Redis     Redis
	Database  Database
	Queue     Queue
	Ledger    Ledger
	Storage   Storage
	Worker    Worker
	Media     Media
	Retention Retention
}

// Load reads an optional .env file, then the environment, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "config.load", "read environment")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Standalone adjusts cfg for the single-process local deployment.
func (c *Config) Standalone() {
	c.Storage.Provider = "localfs"
	c.Queue.Backend = "local"
	c.Ledger.Backend = "pebble"
	c.Retention.Enabled = true
	c.Retention.TTL = time.Hour
	c.Retention.Interval = time.Hour
}

// LoggerConfig converts the Log group into a logger configuration.
func (c *Config) LoggerConfig(service string) logger.Config {
	name := c.Log.ServiceName
	if service != "" {
		name = name + "-" + service
	}
	return logger.Config{
		Level:       c.Log.Level,
		Format:      c.Log.Format,
		Output:      os.Stdout,
		AddSource:   c.Log.AddSource,
		ServiceName: name,
	}
}

// MaxUploadBytes returns the upload cap in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.HTTP.MaxUploadMB << 20
}

func (c *Config) applyDefaults() {
	if c.Worker.ID == "" {
		if h, err := os.Hostname(); err == nil && h != "" {
			c.Worker.ID = h
		} else {
			c.Worker.ID = "worker"
		}
	}
	c.HTTP.PublicBaseURL = strings.TrimRight(c.HTTP.PublicBaseURL, "/")
}

// Validate checks backend names and the fields each backend requires.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.Queue.Backend {
	case "redis", "local":
	case "kafka":
		if len(c.Queue.KafkaBrokers) == 0 {
			add("KAFKA_BROKERS is required for the kafka queue")
		}
	default:
		add("unknown QUEUE_BACKEND %q", c.Queue.Backend)
	}

	switch c.Ledger.Backend {
	case "redis":
	case "pebble":
		if c.Ledger.Path == "" {
			add("LEDGER_PATH is required for the pebble ledger")
		}
	default:
		add("unknown LEDGER_BACKEND %q", c.Ledger.Backend)
	}

	switch c.Storage.Provider {
	case "localfs":
		if c.Storage.LocalRoot == "" {
			add("STORAGE_LOCAL_ROOT is required for localfs")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			add("GCS_BUCKET is required for gcs")
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			add("S3_BUCKET is required for s3")
		}
	case "gdrive":
		if c.Storage.GDriveFolderID == "" || c.Storage.GDriveClientID == "" ||
			c.Storage.GDriveClientSecret == "" || c.Storage.GDriveRefreshToken == "" {
			add("GDRIVE_FOLDER_ID, GDRIVE_CLIENT_ID, GDRIVE_CLIENT_SECRET and GDRIVE_REFRESH_TOKEN are required for gdrive")
		}
	default:
		add("unknown STORAGE_PROVIDER %q", c.Storage.Provider)
	}

	if c.Worker.Concurrency < 1 {
		add("WORKER_CONCURRENCY must be at least 1")
	}
	if c.Queue.MaxAttempts < 1 {
		add("QUEUE_MAX_ATTEMPTS must be at least 1")
	}
	if c.HTTP.MaxUploadMB < 1 {
		add("MAX_UPLOAD_MB must be at least 1")
	}
	if c.Retention.Enabled && (c.Retention.TTL <= 0 || c.Retention.Interval <= 0) {
		add("RETENTION_TTL and RETENTION_INTERVAL must be positive")
	}

	if len(problems) > 0 {
		return errors.New(errors.CodeValidation, "invalid configuration: "+strings.Join(problems, "; ")).
			WithField("problems", problems)
	}
	return nil
}

package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server      ServerConfig
	Worker      WorkerConfig
	Compression CompressionConfig
	Capability  CapabilityConfig
	FFmpeg      FFmpegConfig
	Database    DatabaseConfig
	MinIO       MinIOConfig
	RabbitMQ    RabbitMQConfig
	Redis       RedisConfig
}

type ServerConfig struct {
	Port              int           `envconfig:"API_PORT" default:"8080"`
	ReadTimeout       time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout      time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout   time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"10s"`
	UploadURLExpiry   time.Duration `envconfig:"API_UPLOAD_URL_EXPIRY" default:"15m"`
	DownloadURLExpiry time.Duration `envconfig:"API_DOWNLOAD_URL_EXPIRY" default:"1h"`
	CacheTTL          time.Duration `envconfig:"API_CACHE_TTL" default:"5m"`
}

type WorkerConfig struct {
	TempDir            string        `envconfig:"WORKER_TEMP_DIR" default:"/tmp/gocompress"`
	MaxDeliveries      int           `envconfig:"WORKER_MAX_DELIVERIES" default:"3"`
	CancelPollInterval time.Duration `envconfig:"WORKER_CANCEL_POLL_INTERVAL" default:"1s"`
	ShutdownTimeout    time.Duration `envconfig:"WORKER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// CompressionConfig tunes the orchestrator. Zero-valued planner and
// estimator constants keep their package defaults.
type CompressionConfig struct {
	MaxRetries       int           `envconfig:"COMPRESS_MAX_RETRIES" default:"3"`
	FallbackRatio    float64       `envconfig:"COMPRESS_FALLBACK_RATIO" default:"0.95"`
	DiskHeadroom     float64       `envconfig:"COMPRESS_DISK_HEADROOM" default:"1.1"`
	Alignment        int           `envconfig:"COMPRESS_ALIGNMENT" default:"16"`
	GraceDelay       time.Duration `envconfig:"COMPRESS_PROGRESS_GRACE_DELAY" default:"1s"`
	PollInterval     time.Duration `envconfig:"COMPRESS_PROGRESS_POLL_INTERVAL" default:"100ms"`
	MinVideoBitrate  int           `envconfig:"COMPRESS_MIN_VIDEO_BITRATE" default:"100000"`
	LargeFramePixels int           `envconfig:"COMPRESS_LARGE_FRAME_PIXELS" default:"6220800"`
}

type CapabilityConfig struct {
	Enabled             bool    `envconfig:"CAPABILITY_ENABLED" default:"true"`
	MinCores            int     `envconfig:"CAPABILITY_MIN_CORES" default:"4"`
	MinTotalMemoryMiB   uint64  `envconfig:"CAPABILITY_MIN_TOTAL_MEMORY_MIB" default:"2048"`
	MinAvailMemoryMiB   uint64  `envconfig:"CAPABILITY_MIN_AVAILABLE_MEMORY_MIB" default:"512"`
	MinClockMHz         float64 `envconfig:"CAPABILITY_MIN_CLOCK_MHZ" default:"1500"`
	BenchmarkIterations int     `envconfig:"CAPABILITY_BENCHMARK_ITERATIONS" default:"200000"`
	MinBenchmarkScore   float64 `envconfig:"CAPABILITY_MIN_BENCHMARK_SCORE" default:"50"`
}

type FFmpegConfig struct {
	FFmpegPath  string `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	FFprobePath string `envconfig:"FFPROBE_PATH" default:"ffprobe"`
	H264Encoder string `envconfig:"FFMPEG_H264_ENCODER" default:"libx264"`
	HEVCEncoder string `envconfig:"FFMPEG_HEVC_ENCODER" default:"libx265"`
	Preset      string `envconfig:"FFMPEG_PRESET" default:"fast"`
}

type DatabaseConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"gocompress"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"gocompress"`
	DBName   string `envconfig:"POSTGRES_DB" default:"gocompress"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

type MinIOConfig struct {
	Endpoint       string `envconfig:"MINIO_ENDPOINT" default:"localhost:9000"`
	PublicEndpoint string `envconfig:"MINIO_PUBLIC_ENDPOINT"`
	AccessKey      string `envconfig:"MINIO_ACCESS_KEY" default:"minioadmin"`
	SecretKey      string `envconfig:"MINIO_SECRET_KEY" default:"minioadmin"`
	Bucket         string `envconfig:"MINIO_BUCKET" default:"videos"`
	UseSSL         bool   `envconfig:"MINIO_USE_SSL" default:"false"`
}

type RabbitMQConfig struct {
	Host     string `envconfig:"RABBITMQ_HOST" default:"localhost"`
	Port     int    `envconfig:"RABBITMQ_PORT" default:"5672"`
	User     string `envconfig:"RABBITMQ_USER" default:"gocompress"`
	Password string `envconfig:"RABBITMQ_PASSWORD" default:"gocompress"`
	VHost    string `envconfig:"RABBITMQ_VHOST" default:"/"`
	Queue    string `envconfig:"RABBITMQ_QUEUE" default:"compress_tasks"`
}

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d%s",
		c.User, c.Password, c.Host, c.Port, c.VHost,
	)
}

type RedisConfig struct {
	Host        string        `envconfig:"REDIS_HOST" default:"localhost"`
	Port        int           `envconfig:"REDIS_PORT" default:"6379"`
	Password    string        `envconfig:"REDIS_PASSWORD"`
	DB          int           `envconfig:"REDIS_DB" default:"0"`
	ProgressTTL time.Duration `envconfig:"REDIS_PROGRESS_TTL" default:"24h"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Compression.validate(); err != nil {
		return nil, fmt.Errorf("invalid compression config: %w", err)
	}
	return &cfg, nil
}

func (c CompressionConfig) validate() error {
	switch {
	case c.MaxRetries < 0:
		return fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries)
	case c.FallbackRatio <= 0 || c.FallbackRatio > 1:
		return fmt.Errorf("fallback ratio must be in (0, 1], got %v", c.FallbackRatio)
	case c.DiskHeadroom < 1:
		return fmt.Errorf("disk headroom must be at least 1, got %v", c.DiskHeadroom)
	case c.Alignment <= 0 || c.Alignment%2 != 0:
		return fmt.Errorf("alignment must be a positive even number, got %d", c.Alignment)
	}
	return nil
}

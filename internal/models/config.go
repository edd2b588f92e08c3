package models

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment override, e.g. IMAGES_BLOB_BACKEND.
// Only fields tagged envconfig also fall back to their bare name (DATABASE_URL,
// FRONTEND_URL, ...); generic names like BACKEND or DEBUG are never read.
const EnvPrefix = "IMAGES"

type Config struct {
	ServerAddr     string `yaml:"server_addr" split_words:"true"`
	PublicURL      string `yaml:"public_url" split_words:"true"`
	FrontendURL    string `yaml:"frontend_url" envconfig:"frontend_url"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" split_words:"true"`
	SentryDSN      string `yaml:"sentry_dsn" envconfig:"sentry_dsn"`

	Log      LogConfig      `yaml:"log" envconfig:"log"`
	Metadata MetadataConfig `yaml:"metadata" envconfig:"metadata"`
	Blob     BlobConfig     `yaml:"blob" envconfig:"blob"`
	Dispatch DispatchConfig `yaml:"dispatch" envconfig:"dispatch"`
	Cache    CacheConfig    `yaml:"cache" envconfig:"cache"`
	Worker   WorkerConfig   `yaml:"worker" envconfig:"worker"`
}

type LogConfig struct {
	Level string `yaml:"level" split_words:"true"`
	Debug bool   `yaml:"debug" split_words:"true"`
}

type MetadataConfig struct {
	Backend     string `yaml:"backend" split_words:"true"` // postgres, badger
	DatabaseURL string `yaml:"database_url" envconfig:"database_url"`
	BadgerPath  string `yaml:"badger_path" split_words:"true"`
}

type BlobConfig struct {
	Backend     string `yaml:"backend" split_words:"true"` // local, s3, minio
	StoragePath string `yaml:"storage_path" split_words:"true"`
	Bucket      string `yaml:"bucket" split_words:"true"`
	Endpoint    string `yaml:"endpoint" split_words:"true"`
	Region      string `yaml:"region" split_words:"true"`
	AccessKey   string `yaml:"access_key" split_words:"true"`
	SecretKey   string `yaml:"secret_key" split_words:"true"`
	UseSSL      bool   `yaml:"use_ssl" split_words:"true"`
}

type DispatchConfig struct {
	Backend       string        `yaml:"backend" split_words:"true"` // kafka, rabbitmq, lambda
	Timeout       time.Duration `yaml:"timeout" split_words:"true"`
	KafkaBrokers  []string      `yaml:"kafka_brokers" envconfig:"kafka_brokers"`
	KafkaTopic    string        `yaml:"kafka_topic" envconfig:"kafka_topic"`
	KafkaGroup    string        `yaml:"kafka_group" envconfig:"kafka_group"`
	RabbitMQURL   string        `yaml:"rabbitmq_url" envconfig:"rabbitmq_url"`
	RabbitMQQueue string        `yaml:"rabbitmq_queue" envconfig:"rabbitmq_queue"`
	LambdaName    string        `yaml:"lambda_function" envconfig:"lambda_function"`
	LambdaURL     string        `yaml:"lambda_endpoint" envconfig:"lambda_endpoint"`
}

type CacheConfig struct {
	RedisAddr string        `yaml:"redis_addr" envconfig:"redis_addr"`
	TTL       time.Duration `yaml:"ttl" split_words:"true"`
}

type WorkerConfig struct {
	Embedded        bool          `yaml:"embedded" split_words:"true"`
	ThumbnailWidth  int           `yaml:"thumbnail_width" split_words:"true"`
	ThumbnailHeight int           `yaml:"thumbnail_height" split_words:"true"`
	JPEGQuality     int           `yaml:"jpeg_quality" split_words:"true"`
	WatermarkText   string        `yaml:"watermark_text" split_words:"true"`
	PendingAfter    time.Duration `yaml:"pending_after" split_words:"true"`
	PendingInterval time.Duration `yaml:"pending_interval" split_words:"true"`
	// MetricsAddr is where the standalone worker exposes /metrics. Empty disables it.
	MetricsAddr string `yaml:"metrics_addr" split_words:"true"`
}

// DefaultConfig mirrors the values the service runs with when nothing is configured.
func DefaultConfig() *Config {
	return &Config{
		ServerAddr:     "0.0.0.0:5001",
		PublicURL:      "http://localhost:5001",
		FrontendURL:    "http://localhost:3000",
		MaxUploadBytes: MaxUploadBytes,
		Log:            LogConfig{Level: "info"},
		Metadata: MetadataConfig{
			Backend:    "badger",
			BadgerPath: "./data/metadata",
		},
		Blob: BlobConfig{
			Backend:     "local",
			StoragePath: "./data/blobs",
			Bucket:      "images",
			Region:      "us-east-1",
		},
		Dispatch: DispatchConfig{
			Backend:       "kafka",
			Timeout:       10 * time.Second,
			KafkaBrokers:  []string{"localhost:9092"},
			KafkaTopic:    "image-processing",
			KafkaGroup:    "image-processor-group",
			RabbitMQQueue: "image_processing_queue",
			LambdaName:    "processImage",
		},
		Cache: CacheConfig{TTL: 30 * time.Second},
		Worker: WorkerConfig{
			Embedded:        true,
			ThumbnailWidth:  200,
			ThumbnailHeight: 200,
			JPEGQuality:     80,
			PendingAfter:    10 * time.Minute,
			PendingInterval: time.Minute,
			MetricsAddr:     "0.0.0.0:9102",
		},
	}
}

// LoadConfig reads defaults, then the YAML file at path (if any), then
// IMAGES_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	const op = "models.LoadConfig"

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// running on env and defaults only
		default:
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive, got %d", c.MaxUploadBytes)
	}

	switch c.Metadata.Backend {
	case "postgres":
		if c.Metadata.DatabaseURL == "" {
			return errors.New("metadata.database_url is required for postgres")
		}
	case "badger":
		if c.Metadata.BadgerPath == "" {
			return errors.New("metadata.badger_path is required for badger")
		}
	default:
		return fmt.Errorf("unknown metadata backend %q", c.Metadata.Backend)
	}

	switch c.Blob.Backend {
	case "local":
		if c.Blob.StoragePath == "" {
			return errors.New("blob.storage_path is required for local")
		}
	case "s3", "minio":
		if c.Blob.Bucket == "" || c.Blob.Endpoint == "" {
			return fmt.Errorf("blob.bucket and blob.endpoint are required for %s", c.Blob.Backend)
		}
	default:
		return fmt.Errorf("unknown blob backend %q", c.Blob.Backend)
	}

	switch c.Dispatch.Backend {
	case "kafka":
		if len(c.Dispatch.KafkaBrokers) == 0 || c.Dispatch.KafkaTopic == "" {
			return errors.New("dispatch.kafka_brokers and dispatch.kafka_topic are required for kafka")
		}
	case "rabbitmq":
		if c.Dispatch.RabbitMQURL == "" {
			return errors.New("dispatch.rabbitmq_url is required for rabbitmq")
		}
	case "lambda":
		if c.Dispatch.LambdaName == "" {
			return errors.New("dispatch.lambda_function is required for lambda")
		}
	default:
		return fmt.Errorf("unknown dispatch backend %q", c.Dispatch.Backend)
	}

	return nil
}

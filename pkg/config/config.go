package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures the full runtime configuration for the reconciler service.
type Config struct {
	App        AppConfig
	HTTP       HTTPConfig
	Kafka      KafkaConfig
	Ledger     LedgerConfig
	Primary    EndpointConfig `envPrefix:"PRIMARY_"`
	Downstream EndpointConfig `envPrefix:"DOWNSTREAM_"`
	Pipeline   PipelineConfig
	Tracing    TracingConfig
	Metrics    MetricsConfig
}

type AppConfig struct {
	Name        string `env:"APP_NAME" envDefault:"creditsync-reconciler"`
	Environment string `env:"APP_ENV" envDefault:"development"`
	Version     string `env:"APP_VERSION" envDefault:"0.1.0"`
	LogLevel    string `env:"APP_LOG_LEVEL" envDefault:"info"`
}

type HTTPConfig struct {
	Addr         string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"5m"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	MaxBodyBytes int64         `env:"HTTP_MAX_BODY_BYTES" envDefault:"10485760"`
}

// KafkaConfig configures delivery report publishing. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers          []string      `env:"KAFKA_BROKERS" envSeparator:","`
	DeliveryTopic    string        `env:"KAFKA_DELIVERY_TOPIC" envDefault:"creditsync.delivery"`
	Retries          int           `env:"KAFKA_RETRIES" envDefault:"3"`
	CompressionCodec string        `env:"KAFKA_COMPRESSION_CODEC" envDefault:"snappy"`
	BatchSize        int           `env:"KAFKA_BATCH_SIZE" envDefault:"1"`
	BatchTimeout     time.Duration `env:"KAFKA_BATCH_TIMEOUT" envDefault:"100ms"`
}

type LedgerConfig struct {
	Driver      string `env:"LEDGER_DRIVER" envDefault:"postgres"`
	DSN         string `env:"LEDGER_DSN" envDefault:"host=localhost user=hrms2 password=hrms2 dbname=hrms2 port=5432 sslmode=disable"`
	AutoMigrate bool   `env:"LEDGER_AUTO_MIGRATE" envDefault:"true"`
}

// EndpointConfig describes one remote artifact store. The same struct is
// parsed twice, once per PRIMARY_ and DOWNSTREAM_ prefix.
type EndpointConfig struct {
	Provider       string        `env:"PROVIDER" envDefault:"sftp"`
	Host           string        `env:"HOST" envDefault:"localhost"`
	Port           int           `env:"PORT" envDefault:"22"`
	User           string        `env:"USER"`
	Password       string        `env:"PASSWORD"`
	KnownHostsFile string        `env:"KNOWN_HOSTS_FILE"`
	DialTimeout    time.Duration `env:"DIAL_TIMEOUT" envDefault:"15s"`

	Endpoint  string `env:"S3_ENDPOINT" envDefault:"localhost:9000"`
	Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	Bucket    string `env:"S3_BUCKET"`
	AccessKey string `env:"S3_ACCESS_KEY"`
	SecretKey string `env:"S3_SECRET_KEY"`
	UseSSL    bool   `env:"S3_USE_SSL" envDefault:"false"`

	PDFPath  string `env:"PDF_PATH"`
	JSONPath string `env:"JSON_PATH"`
}

type PipelineConfig struct {
	SourceDir     string `env:"PIPELINE_SOURCE_DIR" envDefault:"/upload/pdf"`
	ArtifactLimit int    `env:"PIPELINE_ARTIFACT_LIMIT" envDefault:"10"`
	SystemID      string `env:"PIPELINE_SYSTEM_ID" envDefault:"GEMS"`
}

type TracingConfig struct {
	Endpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure     bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	SampleRatio  float64 `env:"OTEL_TRACES_SAMPLER_RATIO" envDefault:"1.0"`
	ResourceAttr string  `env:"OTEL_RESOURCE_ATTRIBUTES" envDefault:"service.namespace=creditsync"`
}

type MetricsConfig struct {
	Addr string `env:"METRICS_ADDR" envDefault:":9102"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Pipeline.ArtifactLimit <= 0 {
		return fmt.Errorf("PIPELINE_ARTIFACT_LIMIT must be positive, got %d", c.Pipeline.ArtifactLimit)
	}
	switch c.Ledger.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported ledger driver: %s", c.Ledger.Driver)
	}
	return nil
}

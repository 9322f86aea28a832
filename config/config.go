package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/kapicorp/webhook-relay/sources"
)

// Queue backend type identifiers, fixed at startup
const (
	QueueGCPPubSub    = "gcp_pubsub"
	QueueAWSSQS       = "aws_sqs"
	QueueRedisStreams = "redis_streams"
)

type Config struct {
	LogLevel  string          `mapstructure:"log_level"`
	Queue     QueueSettings   `mapstructure:"queue"`
	Metrics   MetricsSettings `mapstructure:"metrics"`
	Collector Collector       `mapstructure:"collector"`
	Forwarder Forwarder       `mapstructure:"forwarder"`
}

// QueueSettings selects and configures exactly one queue backend
type QueueSettings struct {
	Type  string        `mapstructure:"type" validate:"required,oneof=gcp_pubsub aws_sqs redis_streams"`
	GCP   GCPSettings   `mapstructure:"gcp"`
	AWS   AWSSettings   `mapstructure:"aws"`
	Redis RedisSettings `mapstructure:"redis"`
}

// GCPSettings configures the fixed Pub/Sub topic/subscription pair
type GCPSettings struct {
	ProjectID      string `mapstructure:"project_id"`
	TopicID        string `mapstructure:"topic_id"`
	SubscriptionID string `mapstructure:"subscription_id"` // Only needed by the forwarder
}

// AWSSettings configures the fixed SQS queue URL
type AWSSettings struct {
	Region          string `mapstructure:"region"`
	QueueURL        string `mapstructure:"queue_url"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Endpoint        string `mapstructure:"endpoint"` // Override for local testing
}

// RedisSettings configures the Redis Streams backend
type RedisSettings struct {
	Addr              string        `mapstructure:"addr"`
	Password          string        `mapstructure:"password"`
	DB                int           `mapstructure:"db"`
	Stream            string        `mapstructure:"stream"`
	Group             string        `mapstructure:"group"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
}

type MetricsSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

type Collector struct {
	Addr    string           `mapstructure:"addr"`
	Sources []sources.Config `mapstructure:"sources"`
}

type Forwarder struct {
	TargetURL     string            `mapstructure:"target_url"`
	Headers       map[string]string `mapstructure:"headers"`
	RetryAttempts int               `mapstructure:"retry_attempts" validate:"min=0"`
	RetryDelay    time.Duration     `mapstructure:"retry_delay"`
	Timeout       time.Duration     `mapstructure:"timeout"`
	Workers       int               `mapstructure:"workers" validate:"min=0"`
	BatchSize     int               `mapstructure:"batch_size" validate:"min=0"`
	WaitTimeout   time.Duration     `mapstructure:"wait_timeout"`
}

// Load reads the YAML config file and applies WEBHOOK_RELAY_* env overrides.
// Invalid configuration is fatal at startup; nothing re-reads config later.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("WEBHOOK_RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", "127.0.0.1:9090")
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("collector.addr", ":8000")
	v.SetDefault("forwarder.retry_attempts", 3)
	v.SetDefault("forwarder.retry_delay", 5*time.Second)
	v.SetDefault("forwarder.timeout", 10*time.Second)
	v.SetDefault("forwarder.workers", 4)
	v.SetDefault("forwarder.batch_size", 10)
	v.SetDefault("forwarder.wait_timeout", 5*time.Second)
	v.SetDefault("queue.redis.stream", "webhook-relay")
	v.SetDefault("queue.redis.group", "forwarders")
	v.SetDefault("queue.redis.visibility_timeout", 30*time.Second)
}

// Validate checks the settings every component needs
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}
	return c.validateQueue()
}

// validateQueue ensures the selected backend variant is fully configured
func (c *Config) validateQueue() error {
	switch c.Queue.Type {
	case QueueGCPPubSub:
		if c.Queue.GCP.ProjectID == "" || c.Queue.GCP.TopicID == "" {
			return fmt.Errorf("gcp_pubsub selected but project_id/topic_id missing")
		}
	case QueueAWSSQS:
		if c.Queue.AWS.Region == "" || c.Queue.AWS.QueueURL == "" {
			return fmt.Errorf("aws_sqs selected but region/queue_url missing")
		}
	case QueueRedisStreams:
		if c.Queue.Redis.Addr == "" {
			return fmt.Errorf("redis_streams selected but addr missing")
		}
	}
	return nil
}

// ValidateCollector checks the settings the collector binary needs
func (c *Config) ValidateCollector() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.Collector.Sources) == 0 {
		return fmt.Errorf("collector requires at least one source")
	}
	return nil
}

// ValidateForwarder checks the settings the forwarder binary needs
func (c *Config) ValidateForwarder() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Forwarder.TargetURL == "" {
		return fmt.Errorf("forwarder requires target_url")
	}
	if c.Queue.Type == QueueGCPPubSub && c.Queue.GCP.SubscriptionID == "" {
		return fmt.Errorf("gcp_pubsub forwarder requires subscription_id")
	}
	return nil
}

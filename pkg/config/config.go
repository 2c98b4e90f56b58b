// Package config loads the application configuration from YAML with
// environment variable overrides.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type EngineConfig struct {
	Timeframes      []string      `yaml:"timeframes"`
	AllowedLateness time.Duration `yaml:"allowed_lateness"`
	DrainInterval   time.Duration `yaml:"drain_interval"`
	Shards          int           `yaml:"shards"`
}

type CheckpointConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Key      string        `yaml:"key"`
}

// BackendConfig selects the tick path: "kafka" decouples ingest through the
// broker, "engine" aggregates in-process.
type BackendConfig struct {
	Type string `yaml:"type"`
}

type KafkaProducerConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	Linger       time.Duration `yaml:"linger"`
	BatchBytes   int           `yaml:"batch_bytes"`
	BatchSize    int           `yaml:"batch_size"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	Async        bool          `yaml:"async"`
}

type KafkaConsumerConfig struct {
	GroupID    string        `yaml:"group_id"`
	Workers    int           `yaml:"workers"`
	BufferSize int           `yaml:"buffer_size"`
	RetryMax   int           `yaml:"retry_max"`
	BackoffMin time.Duration `yaml:"backoff_min"`
	BackoffMax time.Duration `yaml:"backoff_max"`
	DLQTopic   string        `yaml:"dlq_topic"`
	MinBytes   int           `yaml:"min_bytes"`
	MaxBytes   int           `yaml:"max_bytes"`
}

type KafkaConfig struct {
	Brokers      []string            `yaml:"brokers"`
	Topic        string              `yaml:"topic"`
	RequiredAcks int                 `yaml:"required_acks"`
	Compression  string              `yaml:"compression"`
	Producer     KafkaProducerConfig `yaml:"producer"`
	Consumer     KafkaConsumerConfig `yaml:"consumer"`
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	Database         string        `yaml:"database"`
	Table            string        `yaml:"table"`
	User             string        `yaml:"user"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type WriterConfig struct {
	RetryMax   int           `yaml:"retry_max"`
	BackoffMin time.Duration `yaml:"backoff_min"`
	BackoffMax time.Duration `yaml:"backoff_max"`
}

type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

type FeedConfig struct {
	WebSocketURL   string        `yaml:"websocket_url"`
	APIKey         string        `yaml:"api_key"`
	Symbols        []string      `yaml:"symbols"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

type Config struct {
	Environment string           `yaml:"environment"`
	Server      ServerConfig     `yaml:"server"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Engine      EngineConfig     `yaml:"engine"`
	Checkpoint  CheckpointConfig `yaml:"checkpoint"`
	Backend     BackendConfig    `yaml:"backend"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Redis       RedisConfig      `yaml:"redis"`
	Writer      WriterConfig     `yaml:"writer"`
	Cache       CacheConfig      `yaml:"cache"`
	Feed        FeedConfig       `yaml:"feed"`
}

// Load reads and parses a YAML configuration file. Unknown keys are
// rejected so typos fail fast.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	var c Config
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment
// variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv()
	return c, nil
}

func (c *Config) applyEnv() {
	for env, set := range map[string]func(string){
		"SYMBOLS":       func(v string) { c.Feed.Symbols = strings.Split(v, ",") },
		"TIMEFRAMES":    func(v string) { c.Engine.Timeframes = strings.Split(v, ",") },
		"BACKEND":       func(v string) { c.Backend.Type = v },
		"KAFKA_BROKERS": func(v string) { c.Kafka.Brokers = strings.Split(v, ",") },
		"KAFKA_TOPIC":   func(v string) { c.Kafka.Topic = v },
		"REDIS_ADDR":    func(v string) { c.Redis.Addr = v },
		"FEED_API_KEY":  func(v string) { c.Feed.APIKey = v },
	} {
		if v := os.Getenv(env); v != "" {
			set(v)
		}
	}
}

// Validate checks required fields and fills safe defaults.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Backend.Type {
	case "kafka", "engine":
	case "":
		return fmt.Errorf("backend.type is required")
	default:
		return fmt.Errorf("backend.type must be 'kafka' or 'engine', got '%s'", c.Backend.Type)
	}
	if len(c.Engine.Timeframes) == 0 {
		return fmt.Errorf("engine.timeframes cannot be empty")
	}
	if c.Engine.AllowedLateness < 0 {
		return fmt.Errorf("engine.allowed_lateness cannot be negative")
	}
	if c.Engine.DrainInterval <= 0 {
		c.Engine.DrainInterval = time.Second
	}
	if c.Checkpoint.Enabled && c.Checkpoint.Interval <= 0 {
		return fmt.Errorf("checkpoint.interval must be positive when checkpointing is enabled")
	}
	if c.ClickHouse.Table == "" {
		c.ClickHouse.Table = "candles"
	}
	return nil
}

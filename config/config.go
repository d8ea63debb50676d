package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	TrackLog TrackLogConfig `yaml:"tracklog"`
	Log      LogConfig      `yaml:"log"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	SubmitTopicName   string `yaml:"submit_topic_name"`
	RecordedTopicName string `yaml:"recorded_topic_name"`
	StalledTopicName  string `yaml:"stalled_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type LogConfig struct {
	Environment string `yaml:"environment"` // "development" | "production"
	Level       string `yaml:"level"`
}

type TrackLogConfig struct {
	GRPCAddr           string `yaml:"grpc_addr"`
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	// ListWindow caps how many events a list call fetches. There is no
	// cursor pagination; older events are out of reach of the feed.
	ListWindow int    `yaml:"list_window"`
	TimeZone   string `yaml:"time_zone"`

	RegistryMode            string `yaml:"registry_mode"` // "postgres" | "http" | "fake"
	RegistryBaseURL         string `yaml:"registry_base_url"`
	RegistryAPIKey          string `yaml:"registry_api_key"`
	RegistryCacheTTLSeconds int    `yaml:"registry_cache_ttl_seconds"`
	StopCacheSize           int    `yaml:"stop_cache_size"`

	SearchRateLimitPerMinute int `yaml:"search_rate_limit_per_minute"`

	PayloadSchemasPath string `yaml:"payload_schemas_path"`

	WorkerHTTPAddr             string `yaml:"worker_http_addr"`
	WorkerSweepIntervalSeconds int    `yaml:"worker_sweep_interval_seconds"`
	WorkerConcurrency          int    `yaml:"worker_concurrency"`
	WorkerAlertWindowSeconds   int    `yaml:"worker_alert_window_seconds"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}

// PostgresDSN builds the pgx connection string, defaulting sslmode to disable.
func (c *Config) PostgresDSN() string {
	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.Username, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.DBName, sslMode)
}

func (c *Config) KafkaBrokers() []string {
	return []string{fmt.Sprintf("%s:%d", c.Kafka.Host, c.Kafka.Port)}
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

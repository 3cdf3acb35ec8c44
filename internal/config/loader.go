package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "reviewd.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "REVIEWD_PORT")
	setString(&cfg.Server.CORSOrigin, "REVIEWD_CORS_ORIGIN")
	setBool(&cfg.Server.DevMode, "REVIEWD_DEV_MODE")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "REVIEWD_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "REVIEWD_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "REVIEWD_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "REVIEWD_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "REVIEWD_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.KVBucket, "REVIEWD_NATS_KV_BUCKET")
	setString(&cfg.Classifier.URL, "REVIEWD_CLASSIFIER_URL")
	setString(&cfg.Classifier.MasterKey, "REVIEWD_CLASSIFIER_KEY")
	setString(&cfg.Classifier.Model, "REVIEWD_CLASSIFIER_MODEL")
	setDuration(&cfg.Classifier.Timeout, "REVIEWD_CLASSIFIER_TIMEOUT")
	setString(&cfg.Dispatch.Provider, "REVIEWD_DISPATCH_PROVIDER")
	setString(&cfg.Dispatch.SlackWebhookURL, "REVIEWD_SLACK_WEBHOOK_URL")
	setString(&cfg.Dispatch.CallbackBaseURL, "REVIEWD_CALLBACK_BASE_URL")
	setString(&cfg.Webhook.Secret, "REVIEWD_WEBHOOK_SECRET")
	setDuration(&cfg.Broadcast.KeepaliveInterval, "REVIEWD_WS_KEEPALIVE")
	setDuration(&cfg.Broadcast.WriteTimeout, "REVIEWD_WS_WRITE_TIMEOUT")
	setInt(&cfg.Broadcast.SnapshotRetries, "REVIEWD_WS_SNAPSHOT_RETRIES")
	setDuration(&cfg.Broadcast.SnapshotBackoff, "REVIEWD_WS_SNAPSHOT_BACKOFF")
	setInt64(&cfg.Cache.MaxSizeMB, "REVIEWD_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "REVIEWD_CACHE_TTL")
	setString(&cfg.Logging.Level, "REVIEWD_LOG_LEVEL")
	setString(&cfg.Logging.Service, "REVIEWD_LOG_SERVICE")
	setInt(&cfg.Breaker.MaxFailures, "REVIEWD_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "REVIEWD_BREAKER_TIMEOUT")
	setBool(&cfg.Telemetry.Enabled, "REVIEWD_OTEL_ENABLED")
	setString(&cfg.Telemetry.OTLPEndpoint, "REVIEWD_OTEL_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if !cfg.Server.DevMode && cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	switch cfg.Dispatch.Provider {
	case "slack", "nats", "log":
	default:
		return fmt.Errorf("dispatch.provider must be slack, nats or log, got %q", cfg.Dispatch.Provider)
	}
	if cfg.Dispatch.Provider == "slack" && cfg.Dispatch.SlackWebhookURL == "" {
		return errors.New("dispatch.slack_webhook_url is required for the slack provider")
	}
	if cfg.Dispatch.Provider == "nats" && cfg.NATS.URL == "" {
		return errors.New("nats.url is required for the nats provider")
	}
	if cfg.Broadcast.KeepaliveInterval <= 0 {
		return errors.New("broadcast.keepalive_interval must be positive")
	}
	if cfg.Broadcast.SnapshotRetries < 1 {
		return errors.New("broadcast.snapshot_retries must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

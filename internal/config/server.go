package config

import (
	"fmt"
	"strings"
	"time"
)

type ServerConfig struct {
	AppEnv   string
	LogLevel string
	HTTPAddr string

	DatabaseURL string

	JWTSecret      string
	JWTAccessTTL   time.Duration
	InternalToken  string
	AllowedOrigins []string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	CleanupEnabled    bool
	CleanupInterval   time.Duration
	ArchivedRetention time.Duration

	MetricsEnabled bool
}

// KafkaEnabled reports whether domain events are ingested from Kafka.
func (c *ServerConfig) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func LoadServer() (*ServerConfig, error) {
	v, err := newViper(map[string]any{
		"log_level":                  "info",
		"http_addr":                  ":8080",
		"database_url":               "file:notifyd.db?_pragma=foreign_keys(1)",
		"jwt_secret":                 defaultJWTSecret,
		"jwt_access_ttl":             "24h",
		"internal_token":             defaultInternalToken,
		"allowed_origins":            "",
		"kafka.brokers":              "",
		"kafka.topic":                "notifications.events",
		"kafka.group_id":             "notifyd",
		"cleanup.enabled":            true,
		"cleanup.interval":           "1h",
		"cleanup.archived_retention": "2160h",
		"metrics.enabled":            true,
	})
	if err != nil {
		return nil, err
	}

	cfg := &ServerConfig{
		AppEnv:            normalizeEnv(v.GetString("env")),
		LogLevel:          strings.TrimSpace(v.GetString("log_level")),
		HTTPAddr:          strings.TrimSpace(v.GetString("http_addr")),
		DatabaseURL:       strings.TrimSpace(v.GetString("database_url")),
		JWTSecret:         strings.TrimSpace(v.GetString("jwt_secret")),
		JWTAccessTTL:      v.GetDuration("jwt_access_ttl"),
		InternalToken:     strings.TrimSpace(v.GetString("internal_token")),
		AllowedOrigins:    splitList(v, "allowed_origins"),
		KafkaBrokers:      splitList(v, "kafka.brokers"),
		KafkaTopic:        strings.TrimSpace(v.GetString("kafka.topic")),
		KafkaGroupID:      strings.TrimSpace(v.GetString("kafka.group_id")),
		CleanupEnabled:    v.GetBool("cleanup.enabled"),
		CleanupInterval:   v.GetDuration("cleanup.interval"),
		ArchivedRetention: v.GetDuration("cleanup.archived_retention"),
		MetricsEnabled:    v.GetBool("metrics.enabled"),
	}

	if err := validateServer(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateServer(cfg *ServerConfig) error {
	if cfg.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR must not be empty")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if cfg.JWTAccessTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL must be > 0")
	}
	if cfg.CleanupEnabled {
		if cfg.CleanupInterval <= 0 {
			return fmt.Errorf("CLEANUP_INTERVAL must be > 0")
		}
		if cfg.ArchivedRetention <= 0 {
			return fmt.Errorf("CLEANUP_ARCHIVED_RETENTION must be > 0")
		}
	}
	if cfg.KafkaEnabled() && cfg.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC must be set when KAFKA_BROKERS is")
	}

	if isProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
		if isEmptyOrDefault(cfg.InternalToken, defaultInternalToken) {
			return fmt.Errorf("in prod/release INTERNAL_TOKEN must be set and not default")
		}
		if len(cfg.AllowedOrigins) == 0 {
			return fmt.Errorf("in prod/release ALLOWED_ORIGINS must be set")
		}
	}

	return nil
}

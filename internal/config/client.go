package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ClientConfig struct {
	AppEnv    string
	LogLevel  string
	ServerURL string // http(s)://host:port

	// Token is used as is. Otherwise one is minted from JWTSecret and UserID (local only).
	Token     string
	JWTSecret string
	UserID    int64

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	AlertSound string
}

// WebSocketURL is the live channel endpoint derived from ServerURL.
func (c *ClientConfig) WebSocketURL() string {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/notifications"
	return u.String()
}

func (c *ClientConfig) APIBaseURL() string {
	return strings.TrimRight(c.ServerURL, "/") + "/api/v1"
}

func LoadClient() (*ClientConfig, error) {
	v, err := newViper(map[string]any{
		"log_level":      "warn",
		"server_url":     "http://localhost:8080",
		"notify.token":   "",
		"notify.user_id": 0,
		"jwt_secret":     "",
		"redis.addr":     "",
		"redis.password": "",
		"redis.db":       0,
		"redis.prefix":   "intranet",
		"alert_sound":    "",
	})
	if err != nil {
		return nil, err
	}

	cfg := &ClientConfig{
		AppEnv:        normalizeEnv(v.GetString("env")),
		LogLevel:      strings.TrimSpace(v.GetString("log_level")),
		ServerURL:     strings.TrimSpace(v.GetString("server_url")),
		Token:         strings.TrimSpace(v.GetString("notify.token")),
		JWTSecret:     strings.TrimSpace(v.GetString("jwt_secret")),
		UserID:        v.GetInt64("notify.user_id"),
		RedisAddr:     strings.TrimSpace(v.GetString("redis.addr")),
		RedisPassword: v.GetString("redis.password"),
		RedisDB:       v.GetInt("redis.db"),
		RedisPrefix:   strings.TrimSpace(v.GetString("redis.prefix")),
		AlertSound:    strings.TrimSpace(v.GetString("alert_sound")),
	}

	if err := validateClient(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateClient(cfg *ClientConfig) error {
	u, err := url.Parse(cfg.ServerURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("SERVER_URL must be an http(s) URL, got %q", cfg.ServerURL)
	}
	if cfg.Token == "" {
		if cfg.JWTSecret == "" || cfg.UserID <= 0 {
			return fmt.Errorf("NOTIFY_TOKEN or both JWT_SECRET and NOTIFY_USER_ID must be set")
		}
		if isProdLike(cfg.AppEnv) {
			return fmt.Errorf("in prod/release NOTIFY_TOKEN must be set")
		}
	}
	return nil
}

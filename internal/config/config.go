package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Channel（配送チャネルのAPI）
	ChannelAPIURL string
	ChannelToken  string
	WebhookSecret string

	// Roles
	ServiceUserID       int64
	AdminSecretPhrase   string
	ServiceSecretPhrase string

	// Schedule
	Timezone string
	Location *time.Location
	NotifyAt string

	// Session
	SessionTTL time.Duration

	// Rate Limit
	RateLimitPerMinute int
	RateLimitBurst     int

	// Security
	LinkCheckEnabled bool

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.ChannelAPIURL = os.Getenv("CHANNEL_API_URL")
	if cfg.ChannelAPIURL == "" {
		missing = append(missing, "CHANNEL_API_URL")
	}

	cfg.ChannelToken = os.Getenv("CHANNEL_TOKEN")
	if cfg.ChannelToken == "" {
		missing = append(missing, "CHANNEL_TOKEN")
	}

	cfg.WebhookSecret = os.Getenv("WEBHOOK_SECRET")
	if cfg.WebhookSecret == "" {
		missing = append(missing, "WEBHOOK_SECRET")
	}

	cfg.AdminSecretPhrase = os.Getenv("ADMIN_SECRET_PHRASE")
	if cfg.AdminSecretPhrase == "" {
		missing = append(missing, "ADMIN_SECRET_PHRASE")
	}

	cfg.ServiceSecretPhrase = os.Getenv("SERVICE_SECRET_PHRASE")
	if cfg.ServiceSecretPhrase == "" {
		missing = append(missing, "SERVICE_SECRET_PHRASE")
	}

	serviceUserID := os.Getenv("SERVICE_USER_ID")
	if serviceUserID == "" {
		missing = append(missing, "SERVICE_USER_ID")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	id, err := strconv.ParseInt(serviceUserID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SERVICE_USER_ID: %w", err)
	}
	cfg.ServiceUserID = id

	// Optional fields with defaults
	cfg.Timezone = getEnvString("TIMEZONE", "Europe/Moscow")
	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = location

	cfg.NotifyAt = getEnvString("NOTIFY_AT", "10:00")
	cfg.SessionTTL = getEnvDuration("SESSION_TTL", 24*time.Hour)
	cfg.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", 30)
	cfg.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 10)
	cfg.LinkCheckEnabled = getEnvBool("LINK_CHECK_ENABLED", false)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

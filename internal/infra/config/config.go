package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env      string
	HTTPAddr string

	StoreMode string
	MongoURI  string
	MongoDB   string

	KafkaBrokers     []string
	KafkaTopicPrefix string

	RedisAddr       string
	PresenceTTL     time.Duration
	PresenceTimeout time.Duration

	DeliveryGrace     time.Duration
	NotifyDedupTTL    time.Duration
	WorkerConcurrency int

	ChatAppEnabled bool
	TelegramToken  string

	EmailEnabled bool
	SMTPHost     string
	SMTPPort     int
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string
}

// Load parses configuration from the current environment.
func Load() (Config, error) {
	cfg := Config{
		Env:              getEnv("APP_ENV", "dev"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		StoreMode:        strings.ToLower(getEnv("STORE_MODE", "memory")),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDB:          getEnv("MONGO_DB", "marketchat"),
		KafkaTopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", ""),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		TelegramToken:    os.Getenv("TELEGRAM_TOKEN"),
		SMTPHost:         os.Getenv("SMTP_HOST"),
		SMTPFrom:         os.Getenv("SMTP_FROM"),
		SMTPUsername:     os.Getenv("SMTP_USERNAME"),
		SMTPPassword:     os.Getenv("SMTP_PASSWORD"),
	}
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	var err error
	if cfg.PresenceTTL, err = parseDurationEnv("PRESENCE_TTL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.PresenceTimeout, err = parseDurationEnv("PRESENCE_TIMEOUT", 50*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.DeliveryGrace, err = parseDurationEnv("DELIVERY_GRACE", 2*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.NotifyDedupTTL, err = parseDurationEnv("NOTIFY_DEDUP_TTL", 60*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.WorkerConcurrency, err = parseIntEnv("WORKER_CONCURRENCY", 10); err != nil {
		return Config{}, err
	}
	if cfg.ChatAppEnabled, err = parseBoolEnv("CHATAPP_ENABLED", false); err != nil {
		return Config{}, err
	}
	if cfg.EmailEnabled, err = parseBoolEnv("EMAIL_ENABLED", true); err != nil {
		return Config{}, err
	}
	if cfg.SMTPPort, err = parseIntEnv("SMTP_PORT", 587); err != nil {
		return Config{}, err
	}

	switch cfg.StoreMode {
	case "memory":
	case "mongo":
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("MONGO_URI is required when STORE_MODE=mongo")
		}
	default:
		return Config{}, fmt.Errorf("invalid STORE_MODE %q (memory or mongo)", cfg.StoreMode)
	}
	if cfg.ChatAppEnabled && cfg.TelegramToken == "" {
		return Config{}, fmt.Errorf("TELEGRAM_TOKEN is required when CHATAPP_ENABLED is set")
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseIntEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s integer: %w", key, err)
	}
	return v, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, nil
	case "0", "f", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s boolean: %q", key, raw)
	}
}

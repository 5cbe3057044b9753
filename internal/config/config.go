// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing or malformed, Load returns an
// error and the process exits.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"jobmate/fulfillment-service/internal/matching"
)

// Config holds all runtime configuration for the fulfillment service.
type Config struct {
	HTTPPort    string
	GRPCPort    string
	DatabaseURL string
	RedisURL    string

	KafkaBrokers []string
	EventsTopic  string
	RetryTopic   string
	OutboxDir    string

	Tuning        matching.Tuning
	TemplatesFile string
	DirectoryFile string

	ChannelTimeout    time.Duration
	MessageGatewayURL string
	SMSGatewayURL     string
	PushGatewayURL    string
	GatewayToken      string

	ReminderInterval      time.Duration
	DefaultEstimatedHours decimal.Decimal
	DirectoryCacheTTL     time.Duration
}

// Load reads the service configuration. DATABASE_URL and REDIS_URL are required.
func Load() (*Config, error) { return load(true) }

// LoadLocal is Load without the Redis requirement, for the operator CLI.
func LoadLocal() (*Config, error) { return load(false) }

func load(requireRedis bool) (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" && requireRedis {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	timeout, err := intEnv("CHANNEL_TIMEOUT_SECONDS", 5, 1)
	if err != nil {
		return nil, err
	}
	reminder, err := intEnv("REMINDER_INTERVAL_MINUTES", 60, 0)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := intEnv("DIRECTORY_CACHE_SECONDS", 60, 0)
	if err != nil {
		return nil, err
	}

	hours := decimal.NewFromInt(2)
	if s := os.Getenv("DEFAULT_ESTIMATED_HOURS"); s != "" {
		hours, err = decimal.NewFromString(s)
		if err != nil || !hours.IsPositive() {
			return nil, fmt.Errorf("DEFAULT_ESTIMATED_HOURS must be a positive number, got %q", s)
		}
	}

	tuning := matching.DefaultTuning()
	if path := os.Getenv("WEIGHTS_FILE"); path != "" {
		tuning, err = LoadTuning(path)
		if err != nil {
			return nil, err
		}
	}

	return &Config{
		HTTPPort:    envOr("FULFILLMENT_HTTP_PORT", "8083"),
		GRPCPort:    envOr("FULFILLMENT_GRPC_PORT", "9083"),
		DatabaseURL: dbURL,
		RedisURL:    redisURL,

		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		EventsTopic:  envOr("KAFKA_EVENTS_TOPIC", "fulfillment.events"),
		RetryTopic:   envOr("KAFKA_RETRY_TOPIC", "fulfillment.notification-retries"),
		OutboxDir:    os.Getenv("OUTBOX_DIR"),

		Tuning:        tuning,
		TemplatesFile: os.Getenv("TEMPLATES_FILE"),
		DirectoryFile: os.Getenv("DIRECTORY_FILE"),

		ChannelTimeout:    time.Duration(timeout) * time.Second,
		MessageGatewayURL: os.Getenv("MESSAGE_GATEWAY_URL"),
		SMSGatewayURL:     os.Getenv("SMS_GATEWAY_URL"),
		PushGatewayURL:    os.Getenv("PUSH_GATEWAY_URL"),
		GatewayToken:      os.Getenv("GATEWAY_TOKEN"),

		ReminderInterval:      time.Duration(reminder) * time.Minute,
		DefaultEstimatedHours: hours,
		DirectoryCacheTTL:     time.Duration(cacheTTL) * time.Second,
	}, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def, min int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < min {
		return 0, fmt.Errorf("%s must be an integer >= %d, got %q", key, min, s)
	}
	return v, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

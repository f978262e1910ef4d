package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the execution history service.
type Config struct {
	Port            int
	LogLevel        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// DatabaseDSN selects the Postgres ledger; empty keeps it in memory.
	DatabaseDSN     string
	PersistIncoming bool

	// WebhookURL and KafkaBrokers enable their notification sinks when set.
	WebhookURL     string
	WebhookTimeout time.Duration
	KafkaBrokers   []string
	KafkaTopic     string
	NotifyBuffer   int
}

func defaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("READ_TIMEOUT", "5s")
	v.SetDefault("WRITE_TIMEOUT", "10s")
	v.SetDefault("IDLE_TIMEOUT", "60s")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")
	v.SetDefault("DATABASE_DSN", "")
	v.SetDefault("PERSIST_INCOMING", false)
	v.SetDefault("WEBHOOK_URL", "")
	v.SetDefault("WEBHOOK_TIMEOUT", "5s")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "exechistory.changes")
	v.SetDefault("NOTIFY_BUFFER", "1024")
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
//
// Integers are base 10 ("010" is ten) and durations need a unit ("5" is
// rejected rather than read as nanoseconds).
func Load() (*Config, error) {
	v := viper.New()
	defaults(v)
	v.AutomaticEnv()

	port, err := strconv.Atoi(strings.TrimSpace(v.GetString("PORT")))
	if err != nil || port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid PORT: %q, must be an integer between 1 and 65535", v.GetString("PORT"))
	}

	logLevel := v.GetString("LOG_LEVEL")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	durations := make(map[string]time.Duration, 5)
	for _, key := range []string{"READ_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT", "SHUTDOWN_TIMEOUT", "WEBHOOK_TIMEOUT"} {
		d, err := time.ParseDuration(strings.TrimSpace(v.GetString(key)))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("invalid %s: %v, must be positive", key, d)
		}
		durations[key] = d
	}

	persist, err := cast.ToBoolE(v.Get("PERSIST_INCOMING"))
	if err != nil {
		return nil, fmt.Errorf("invalid PERSIST_INCOMING: %w", err)
	}

	buffer, err := strconv.Atoi(strings.TrimSpace(v.GetString("NOTIFY_BUFFER")))
	if err != nil || buffer < 1 {
		return nil, fmt.Errorf("invalid NOTIFY_BUFFER: %q, must be a positive integer", v.GetString("NOTIFY_BUFFER"))
	}

	return &Config{
		Port:            port,
		LogLevel:        logLevel,
		ReadTimeout:     durations["READ_TIMEOUT"],
		WriteTimeout:    durations["WRITE_TIMEOUT"],
		IdleTimeout:     durations["IDLE_TIMEOUT"],
		ShutdownTimeout: durations["SHUTDOWN_TIMEOUT"],
		DatabaseDSN:     v.GetString("DATABASE_DSN"),
		PersistIncoming: persist,
		WebhookURL:      v.GetString("WEBHOOK_URL"),
		WebhookTimeout:  durations["WEBHOOK_TIMEOUT"],
		KafkaBrokers:    splitList(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:      v.GetString("KAFKA_TOPIC"),
		NotifyBuffer:    buffer,
	}, nil
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

// Package config reads the gateway configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every setting of the gateway. Empty optional values
// disable the feature they configure.
type Config struct {
	// MQTT
	MQTTBroker   string
	MQTTClientID string
	InputTopic   string // subscription with wildcards, e.g. seaguard/+/+

	// HTTP
	HTTPPort string

	// Boats file (YAML). Optional.
	BoatsFile string

	// Storage. Both optional: without POSTGRES_URL there is no registry
	// refresh and no cold archive, without VALKEY_ADDR no hot cache.
	PostgresURL     string
	ValkeyAddr      string
	ArchiveQueue    int
	RegistryRefresh time.Duration

	// Logging
	LogLevel  slog.Level
	LogFile   string // rolling file, optional
	LogToMQTT bool

	// Bounds and timings of the boat state.
	HistoryLimit    int
	AckLimit        int
	AckMaxAge       time.Duration
	OnlineWindow    time.Duration
	ControlCooldown time.Duration

	// Warnings lists values that could not be parsed and were replaced by
	// their defaults. main logs them once the logger exists.
	Warnings []string
}

// Load reads the configuration. A missing variable falls back to its
// default, and so does one that does not parse (recorded in Warnings).
func Load() Config {
	var warn []string

	cfg := Config{
		MQTTBroker:   getEnv("MQTT_BROKER", "tcp://mosquitto:1883"),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "seaguard-gateway"),
		InputTopic:   getEnv("INPUT_TOPIC", "seaguard/+/+"),

		HTTPPort: getEnv("HTTP_PORT", "3000"),

		BoatsFile: getEnv("BOATS_FILE", ""),

		PostgresURL:     getEnv("POSTGRES_URL", ""),
		ValkeyAddr:      getEnv("VALKEY_ADDR", ""),
		ArchiveQueue:    getInt("ARCHIVE_QUEUE", 1024, &warn),
		RegistryRefresh: getDuration("REGISTRY_REFRESH", time.Minute, &warn),

		LogFile:   getEnv("LOG_FILE", ""),
		LogToMQTT: getBool("LOG_TO_MQTT", true, &warn),

		HistoryLimit:    getInt("HISTORY_LIMIT", 200, &warn),
		AckLimit:        getInt("ACK_LIMIT", 200, &warn),
		AckMaxAge:       getDuration("ACK_MAX_AGE", 5*time.Minute, &warn),
		OnlineWindow:    getDuration("ONLINE_WINDOW", 10*time.Second, &warn),
		ControlCooldown: getDuration("CONTROL_COOLDOWN", 100*time.Millisecond, &warn),
	}

	level, err := ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		warn = append(warn, err.Error())
	}
	cfg.LogLevel = level

	cfg.Warnings = warn
	return cfg
}

// ParseLevel maps debug|info|warn|error onto a slog level. Unknown names
// yield info and an error.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL=%q: unknown level, using info", s)
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getInt(key string, fallback int, warn *[]string) int {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v <= 0 {
		*warn = append(*warn, fmt.Sprintf("%s=%q: want a positive integer, using %d", key, raw, fallback))
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration, warn *[]string) time.Duration {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || v <= 0 {
		*warn = append(*warn, fmt.Sprintf("%s=%q: want a positive duration, using %s", key, raw, fallback))
		return fallback
	}
	return v
}

func getBool(key string, fallback bool, warn *[]string) bool {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		*warn = append(*warn, fmt.Sprintf("%s=%q: want true or false, using %t", key, raw, fallback))
		return fallback
	}
	return v
}

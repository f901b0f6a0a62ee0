package config

import (
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"
)

// unsetenv removes key for the rest of the test. The preceding t.Setenv
// registers the restore.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	if err := os.Unsetenv(key); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"MQTT_BROKER", "MQTT_CLIENT_ID", "INPUT_TOPIC", "HTTP_PORT", "BOATS_FILE",
		"POSTGRES_URL", "VALKEY_ADDR", "ARCHIVE_QUEUE", "REGISTRY_REFRESH",
		"LOG_LEVEL", "LOG_FILE", "LOG_TO_MQTT", "HISTORY_LIMIT", "ACK_LIMIT",
		"ACK_MAX_AGE", "ONLINE_WINDOW", "CONTROL_COOLDOWN",
	} {
		t.Setenv(key, "")
		unsetenv(t, key)
	}

	cfg := Load()

	if cfg.MQTTBroker != "tcp://mosquitto:1883" || cfg.MQTTClientID != "seaguard-gateway" || cfg.InputTopic != "seaguard/+/+" {
		t.Errorf("mqtt = %q %q %q", cfg.MQTTBroker, cfg.MQTTClientID, cfg.InputTopic)
	}
	if cfg.HTTPPort != "3000" {
		t.Errorf("HTTPPort = %q", cfg.HTTPPort)
	}
	if cfg.PostgresURL != "" || cfg.ValkeyAddr != "" || cfg.BoatsFile != "" || cfg.LogFile != "" {
		t.Error("optional backends should default to disabled")
	}
	if cfg.HistoryLimit != 200 || cfg.AckLimit != 200 {
		t.Errorf("limits = %d/%d", cfg.HistoryLimit, cfg.AckLimit)
	}
	if cfg.AckMaxAge != 5*time.Minute || cfg.OnlineWindow != 10*time.Second || cfg.ControlCooldown != 100*time.Millisecond {
		t.Errorf("timings = %s %s %s", cfg.AckMaxAge, cfg.OnlineWindow, cfg.ControlCooldown)
	}
	if cfg.ArchiveQueue != 1024 || cfg.RegistryRefresh != time.Minute {
		t.Errorf("archive = %d %s", cfg.ArchiveQueue, cfg.RegistryRefresh)
	}
	if cfg.LogLevel != slog.LevelInfo || !cfg.LogToMQTT {
		t.Errorf("logging = %v %v", cfg.LogLevel, cfg.LogToMQTT)
	}
	if len(cfg.Warnings) != 0 {
		t.Errorf("warnings = %v", cfg.Warnings)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://localhost:1884")
	t.Setenv("HISTORY_LIMIT", "50")
	t.Setenv("CONTROL_COOLDOWN", "250ms")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_TO_MQTT", "false")
	t.Setenv("POSTGRES_URL", "postgres://u:p@db:5432/seaguard")

	cfg := Load()

	if cfg.MQTTBroker != "tcp://localhost:1884" || cfg.HistoryLimit != 50 || cfg.ControlCooldown != 250*time.Millisecond {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.LogLevel != slog.LevelDebug || cfg.LogToMQTT {
		t.Errorf("logging = %v %v", cfg.LogLevel, cfg.LogToMQTT)
	}
	if cfg.PostgresURL != "postgres://u:p@db:5432/seaguard" {
		t.Errorf("PostgresURL = %q", cfg.PostgresURL)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("ACK_LIMIT", "lots")
	t.Setenv("ONLINE_WINDOW", "-5s")
	t.Setenv("LOG_TO_MQTT", "maybe")
	t.Setenv("LOG_LEVEL", "chatty")

	cfg := Load()

	if cfg.AckLimit != 200 || cfg.OnlineWindow != 10*time.Second || !cfg.LogToMQTT || cfg.LogLevel != slog.LevelInfo {
		t.Errorf("fallbacks not applied: %+v", cfg)
	}
	if len(cfg.Warnings) != 4 {
		t.Fatalf("warnings = %v, want 4", cfg.Warnings)
	}
	if !strings.Contains(strings.Join(cfg.Warnings, "\n"), "ACK_LIMIT") {
		t.Errorf("warnings do not name the key: %v", cfg.Warnings)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{" Info ", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"ERROR", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if got != tt.want || (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var hallVariables = []string{
	"HALL_HTTP_PORT",
	"HALL_SQLITE_PATH",
	"HALL_SESSION_SECRET",
	"HALL_SESSION_TTL",
	"HALL_MAX_ROOM_CAPACITY",
	"HALL_NOTIFIER",
	"HALL_NOTIFY_TIMEOUT",
	"HALL_REDIS_ADDR",
	"HALL_REDIS_PASSWORD",
	"HALL_REDIS_DB",
	"HALL_REDIS_STREAM",
	"HALL_WEBHOOK_URL",
	"HALL_LOG_LEVEL",
	"HALL_LOG_FORMAT",
}

// clearEnv unsets every HALL_ variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range hallVariables {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("failed to unset %s: %v", key, err)
		}
	}
}

func TestLoader_ParseEnvironment(t *testing.T) {
	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearEnv(t)

		const secret = "super-secret"
		t.Setenv("HALL_SESSION_SECRET", secret)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 8080 {
			t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTPPort)
		}
		if cfg.SQLitePath != "hall.db" {
			t.Fatalf("unexpected default SQLite path: %q", cfg.SQLitePath)
		}
		if cfg.SessionSecret != secret {
			t.Fatalf("expected session secret to be %q, got %q", secret, cfg.SessionSecret)
		}
		if cfg.MaxRoomCapacity != 6 {
			t.Fatalf("expected default max capacity 6, got %d", cfg.MaxRoomCapacity)
		}
		if cfg.Notifier != NotifierLog || cfg.NotifyTimeout != 5*time.Second {
			t.Fatalf("unexpected notifier defaults: %q %s", cfg.Notifier, cfg.NotifyTimeout)
		}
		if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.Stream != "hall:notifications" {
			t.Fatalf("unexpected redis defaults: %+v", cfg.Redis)
		}
		if cfg.LogLevel != slog.LevelInfo || cfg.LogFormat != "json" {
			t.Fatalf("unexpected log defaults: %v %q", cfg.LogLevel, cfg.LogFormat)
		}
	})

	t.Run("errors when required values are missing", func(t *testing.T) {
		clearEnv(t)

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error when required values are missing")
		}
		expected := "required environment variables are not set: HALL_SESSION_SECRET"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("requires a webhook URL for the webhook notifier", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("HALL_NOTIFIER", "webhook")

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error when the webhook URL is missing")
		}
		expected := "required environment variables are not set: HALL_SESSION_SECRET, HALL_WEBHOOK_URL"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("reports every invalid value", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("HALL_SESSION_SECRET", "secret-value")
		t.Setenv("HALL_HTTP_PORT", "zero")
		t.Setenv("HALL_MAX_ROOM_CAPACITY", "7")
		t.Setenv("HALL_NOTIFIER", "pigeon")
		t.Setenv("HALL_LOG_FORMAT", "xml")

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error for invalid values")
		}
		expected := "environment variables have invalid values: HALL_HTTP_PORT, HALL_MAX_ROOM_CAPACITY, HALL_NOTIFIER, HALL_LOG_FORMAT"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("parses duration and numeric fields", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("HALL_SESSION_SECRET", "secret-value")
		t.Setenv("HALL_HTTP_PORT", "9090")
		t.Setenv("HALL_SQLITE_PATH", "/tmp/hall.db")
		t.Setenv("HALL_SESSION_TTL", "12h")
		t.Setenv("HALL_MAX_ROOM_CAPACITY", "4")
		t.Setenv("HALL_NOTIFIER", "redis")
		t.Setenv("HALL_NOTIFY_TIMEOUT", "2s")
		t.Setenv("HALL_REDIS_ADDR", "redis:6380")
		t.Setenv("HALL_REDIS_DB", "3")
		t.Setenv("HALL_LOG_LEVEL", "debug")
		t.Setenv("HALL_LOG_FORMAT", "TEXT")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.SessionTTL != 12*time.Hour {
			t.Fatalf("expected session TTL 12h, got %s", cfg.SessionTTL)
		}
		if cfg.MaxRoomCapacity != 4 {
			t.Fatalf("expected max room capacity 4, got %d", cfg.MaxRoomCapacity)
		}
		if cfg.HTTPPort != 9090 {
			t.Fatalf("expected HTTP port 9090, got %d", cfg.HTTPPort)
		}
		if cfg.SQLitePath != "/tmp/hall.db" {
			t.Fatalf("unexpected SQLite path: %q", cfg.SQLitePath)
		}
		if cfg.Notifier != NotifierRedis || cfg.NotifyTimeout != 2*time.Second {
			t.Fatalf("unexpected notifier settings: %q %s", cfg.Notifier, cfg.NotifyTimeout)
		}
		if cfg.Redis.Addr != "redis:6380" || cfg.Redis.DB != 3 {
			t.Fatalf("unexpected redis settings: %+v", cfg.Redis)
		}
		if cfg.LogLevel != slog.LevelDebug || cfg.LogFormat != "text" {
			t.Fatalf("unexpected log settings: %v %q", cfg.LogLevel, cfg.LogFormat)
		}
	})
}

func TestLoadEnvFile(t *testing.T) {
	t.Run("ignores a missing file", func(t *testing.T) {
		if err := LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")); err != nil {
			t.Fatalf("expected missing file to be ignored, got %v", err)
		}
	})

	t.Run("fills unset variables without overriding the environment", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("HALL_HTTP_PORT", "7070")

		path := filepath.Join(t.TempDir(), ".env")
		content := "HALL_SESSION_SECRET=from-file\nHALL_HTTP_PORT=6060\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("failed to write env file: %v", err)
		}

		if err := LoadEnvFile(path); err != nil {
			t.Fatalf("LoadEnvFile returned error: %v", err)
		}
		t.Cleanup(func() { _ = os.Unsetenv("HALL_SESSION_SECRET") })

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.SessionSecret != "from-file" {
			t.Fatalf("expected secret from file, got %q", cfg.SessionSecret)
		}
		if cfg.HTTPPort != 7070 {
			t.Fatalf("expected environment to win over file, got %d", cfg.HTTPPort)
		}
	})
}

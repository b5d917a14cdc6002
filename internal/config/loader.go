package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Notifier backends understood by the hall portal.
const (
	NotifierLog     = "log"
	NotifierRedis   = "redis"
	NotifierWebhook = "webhook"
)

// Config captures environment driven configuration values for the hall portal.
type Config struct {
	HTTPPort        int
	SQLitePath      string
	SessionSecret   string
	SessionTTL      time.Duration
	MaxRoomCapacity int

	Notifier      string
	NotifyTimeout time.Duration
	Redis         RedisConfig
	WebhookURL    string

	LogLevel  slog.Level
	LogFormat string
}

// RedisConfig addresses the stream that receives allocation notifications.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

// LoadEnvFile applies a dotenv file to the process environment. Variables
// that are already set win over the file. A missing file is not an error.
func LoadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load parses configuration values from the current process environment.
//
// Optional fields fall back to defaults. Every missing or malformed variable
// is collected so a single error names all of them.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:        8080,
		SQLitePath:      "hall.db",
		SessionTTL:      24 * time.Hour,
		MaxRoomCapacity: 6,
		Notifier:        NotifierLog,
		NotifyTimeout:   5 * time.Second,
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Stream: "hall:notifications",
		},
		LogLevel:  slog.LevelInfo,
		LogFormat: "json",
	}

	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 4)

	if portValue := env("HALL_HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "HALL_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if path := env("HALL_SQLITE_PATH"); path != "" {
		cfg.SQLitePath = path
	}

	if secret := env("HALL_SESSION_SECRET"); secret == "" {
		missing = append(missing, "HALL_SESSION_SECRET")
	} else {
		cfg.SessionSecret = secret
	}

	if ttlValue := env("HALL_SESSION_TTL"); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "HALL_SESSION_TTL")
		} else {
			cfg.SessionTTL = ttl
		}
	}

	if capacityValue := env("HALL_MAX_ROOM_CAPACITY"); capacityValue != "" {
		capacity, err := strconv.Atoi(capacityValue)
		if err != nil || capacity < 1 || capacity > 6 {
			invalid = append(invalid, "HALL_MAX_ROOM_CAPACITY")
		} else {
			cfg.MaxRoomCapacity = capacity
		}
	}

	if timeoutValue := env("HALL_NOTIFY_TIMEOUT"); timeoutValue != "" {
		timeout, err := time.ParseDuration(timeoutValue)
		if err != nil || timeout <= 0 {
			invalid = append(invalid, "HALL_NOTIFY_TIMEOUT")
		} else {
			cfg.NotifyTimeout = timeout
		}
	}

	if notifier := strings.ToLower(env("HALL_NOTIFIER")); notifier != "" {
		switch notifier {
		case NotifierLog, NotifierRedis, NotifierWebhook:
			cfg.Notifier = notifier
		default:
			invalid = append(invalid, "HALL_NOTIFIER")
		}
	}

	if addr := env("HALL_REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	cfg.Redis.Password = os.Getenv("HALL_REDIS_PASSWORD")
	if dbValue := env("HALL_REDIS_DB"); dbValue != "" {
		db, err := strconv.Atoi(dbValue)
		if err != nil || db < 0 {
			invalid = append(invalid, "HALL_REDIS_DB")
		} else {
			cfg.Redis.DB = db
		}
	}
	if stream := env("HALL_REDIS_STREAM"); stream != "" {
		cfg.Redis.Stream = stream
	}

	if webhook := env("HALL_WEBHOOK_URL"); webhook != "" {
		if u, err := url.Parse(webhook); err != nil || u.Scheme == "" || u.Host == "" {
			invalid = append(invalid, "HALL_WEBHOOK_URL")
		} else {
			cfg.WebhookURL = webhook
		}
	} else if cfg.Notifier == NotifierWebhook {
		missing = append(missing, "HALL_WEBHOOK_URL")
	}

	if levelValue := env("HALL_LOG_LEVEL"); levelValue != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(levelValue)); err != nil {
			invalid = append(invalid, "HALL_LOG_LEVEL")
		}
	}

	if format := strings.ToLower(env("HALL_LOG_FORMAT")); format != "" {
		if format != "json" && format != "text" {
			invalid = append(invalid, "HALL_LOG_FORMAT")
		} else {
			cfg.LogFormat = format
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("environment variables have invalid values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// Package config loads matchbook settings from MATCHBOOK_* environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/matchbook/internal/logging"
)

const envPrefix = "MATCHBOOK_"

// Config captures environment driven configuration values for matchbook.
type Config struct {
	HTTPPort         int
	SQLiteDSN        string
	LogLevel         slog.Level
	PersonaCacheSize int
	PersonaCacheTTL  time.Duration
	MaxPartySize     int
	VenueCatalog     string
	RedisAddr        string
	LockTTL          time.Duration
	RankConcurrency  int
}

// Defaults returns the configuration used when no variables are set.
func Defaults() Config {
	return Config{
		HTTPPort:         8080,
		SQLiteDSN:        "matchbook.db",
		LogLevel:         slog.LevelInfo,
		PersonaCacheSize: 256,
		PersonaCacheTTL:  5 * time.Minute,
		MaxPartySize:     20,
		LockTTL:          30 * time.Second,
		RankConcurrency:  8,
	}
}

// LoadDotEnv exports the variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf(".env ファイルを読み込めません (%s): %w", path, err)
		}
	}
	return nil
}

// Load parses configuration values from the current process environment.
//
// Optional fields fall back to Defaults. Every invalid value is collected and
// reported together in a localized error message.
func Load() (Config, error) {
	cfg := Defaults()
	invalid := make([]string, 0, 2)

	intVar := func(key string, min int, dst *int) {
		if raw := lookup(key); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < min {
				invalid = append(invalid, envPrefix+key)
				return
			}
			*dst = n
		}
	}
	durationVar := func(key string, dst *time.Duration) {
		if raw := lookup(key); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil || d <= 0 {
				invalid = append(invalid, envPrefix+key)
				return
			}
			*dst = d
		}
	}

	intVar("HTTP_PORT", 1, &cfg.HTTPPort)
	if cfg.HTTPPort > 65535 {
		invalid = append(invalid, envPrefix+"HTTP_PORT")
	}
	if dsn := lookup("SQLITE_DSN"); dsn != "" {
		cfg.SQLiteDSN = dsn
	}
	if raw := lookup("LOG_LEVEL"); raw != "" {
		level, err := logging.ParseLevel(raw)
		if err != nil {
			invalid = append(invalid, envPrefix+"LOG_LEVEL")
		} else {
			cfg.LogLevel = level
		}
	}
	intVar("PERSONA_CACHE_SIZE", 1, &cfg.PersonaCacheSize)
	durationVar("PERSONA_CACHE_TTL", &cfg.PersonaCacheTTL)
	intVar("MAX_PARTY_SIZE", 1, &cfg.MaxPartySize)
	cfg.VenueCatalog = lookup("VENUE_CATALOG")
	cfg.RedisAddr = lookup("REDIS_ADDR")
	durationVar("LOCK_TTL", &cfg.LockTTL)
	intVar("RANK_CONCURRENCY", 1, &cfg.RankConcurrency)

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("環境変数の値が不正です: %s", strings.Join(invalid, ", "))
	}
	return cfg, nil
}

// Addr returns the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func lookup(key string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + key))
}

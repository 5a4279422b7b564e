// Package config loads and validates application configuration from
// environment variables, an optional .env file, and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/pkordes/parking-ledger/internal/domain"
	"github.com/pkordes/parking-ledger/internal/fare"
)

// Config holds all configuration values for the API server.
// Values are populated by Load.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Defaults to "8080".
	Port string

	// DatabaseURL is the Postgres connection string for the stay archive.
	// Optional: when empty the server runs in memory only.
	DatabaseURL string

	// LogLevel controls the minimum log level. Defaults to "info".
	// Valid values: debug, info, warn, error.
	LogLevel string

	// CORSOrigins is the list of allowed cross-origin request origins.
	// Defaults to ["http://localhost:5173"] (Vite dev server).
	// Set CORS_ORIGINS to a comma-separated list to override.
	CORSOrigins []string

	// HourlyRate is charged per started hour. Defaults to 10.00.
	HourlyRate domain.Money

	// Currency is the ISO code shown next to amounts. Defaults to "BRL".
	Currency string

	// Location is the facility time zone used by day filters and exports.
	// Defaults to UTC.
	Location *time.Location

	// MaxBodyBytes caps request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64

	// EventBuffer is the per-client buffer of the live event stream; a client
	// further behind misses events. The archive feed is never dropped.
	// Defaults to 64.
	EventBuffer int
}

// fileConfig is the shape of the optional CONFIG_FILE. It only carries the
// rate policy; environment variables still win over anything set here.
type fileConfig struct {
	HourlyRate string `yaml:"hourly_rate"`
	Currency   string `yaml:"currency"`
	Timezone   string `yaml:"timezone"`
}

// Load reads configuration and returns a Config.
// Precedence, lowest first: built-in defaults, CONFIG_FILE, the .env file
// (ENV_FILE, default ".env"), the process environment. The .env file is
// re-read on every call and never copied into the process environment, so a
// reload sees its current contents. Returns an error listing every invalid
// value.
func Load() (Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	dotenv, err := godotenv.Read(envFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: read %s: %w", envFile, err)
	}
	env := source{dotenv: dotenv}
	getEnv := env.get

	file := fileConfig{HourlyRate: "10.00", Currency: "BRL", Timezone: "UTC"}
	if path := getEnv("CONFIG_FILE", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg := Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		Currency:    getEnv("CURRENCY", file.Currency),
	}

	var invalid []string

	rate, err := domain.ParseMoney(getEnv("HOURLY_RATE", file.HourlyRate))
	if err == nil {
		err = fare.CheckRate(rate)
	}
	if err != nil {
		invalid = append(invalid, fmt.Sprintf("HOURLY_RATE: %s", err))
	}
	cfg.HourlyRate = rate

	tz := getEnv("TIMEZONE", file.Timezone)
	loc, err := time.LoadLocation(tz)
	if err != nil {
		invalid = append(invalid, fmt.Sprintf("TIMEZONE: unknown time zone %q", tz))
	}
	cfg.Location = loc

	maxBody, err := env.positiveInt("MAX_BODY_BYTES", 1<<20)
	if err != nil {
		invalid = append(invalid, err.Error())
	}
	cfg.MaxBodyBytes = int64(maxBody)

	cfg.EventBuffer, err = env.positiveInt("EVENT_BUFFER", 64)
	if err != nil {
		invalid = append(invalid, err.Error())
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		invalid = append(invalid, fmt.Sprintf("LOG_LEVEL: must be one of debug, info, warn, error, got %q", cfg.LogLevel))
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(invalid, "; "))
	}

	return cfg, nil
}

// source resolves a key against the process environment first and the
// parsed .env file second.
type source struct {
	dotenv map[string]string
}

// get returns the value named by key, or fallback if it is not set or is
// empty in both the environment and the .env file.
func (s source) get(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if v := s.dotenv[key]; v != "" {
		return v
	}
	return fallback
}

func (s source) positiveInt(key string, fallback int) (int, error) {
	v := s.get(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback, errors.New(key + ": must be a positive integer")
	}
	return n, nil
}

// splitCSV splits a comma-separated string into a trimmed slice, ignoring empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pkordes/parking-ledger/internal/config"
	"github.com/pkordes/parking-ledger/internal/domain"
)

// clearEnv blanks every variable Load reads so the host environment cannot
// leak into a test, and points ENV_FILE at a file that does not exist.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "DATABASE_URL", "LOG_LEVEL", "CORS_ORIGINS", "HOURLY_RATE",
		"CURRENCY", "TIMEZONE", "MAX_BODY_BYTES", "EVENT_BUFFER", "CONFIG_FILE",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func writeEnvFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// TestLoad_defaults verifies that every variable falls back to its default
// and that the database is optional.
func TestLoad_defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load()

	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, "info", cfg.LogLevel)
	require.Empty(t, cfg.DatabaseURL)
	require.Equal(t, []string{"http://localhost:5173"}, cfg.CORSOrigins)
	require.Equal(t, domain.Cents(1000), cfg.HourlyRate)
	require.Equal(t, "BRL", cfg.Currency)
	require.Equal(t, "UTC", cfg.Location.String())
	require.Equal(t, int64(1<<20), cfg.MaxBodyBytes)
	require.Equal(t, 64, cfg.EventBuffer)
}

// TestLoad_overrides verifies that all values can be overridden via env vars.
func TestLoad_overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://user:pass@db:5432/parking")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CORS_ORIGINS", "https://app.example.com, https://admin.example.com")
	t.Setenv("HOURLY_RATE", "12.5")
	t.Setenv("CURRENCY", "USD")
	t.Setenv("TIMEZONE", "America/Sao_Paulo")
	t.Setenv("MAX_BODY_BYTES", "4096")
	t.Setenv("EVENT_BUFFER", "8")

	cfg, err := config.Load()

	require.NoError(t, err)
	require.Equal(t, "9090", cfg.Port)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "postgres://user:pass@db:5432/parking", cfg.DatabaseURL)
	require.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.CORSOrigins)
	require.Equal(t, domain.Cents(1250), cfg.HourlyRate)
	require.Equal(t, "USD", cfg.Currency)
	require.Equal(t, "America/Sao_Paulo", cfg.Location.String())
	require.Equal(t, int64(4096), cfg.MaxBodyBytes)
	require.Equal(t, 8, cfg.EventBuffer)
}

// TestLoad_configFile verifies the YAML overlay sets the rate policy and that
// environment variables still take precedence over it.
func TestLoad_configFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "parking.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hourly_rate: \"7.25\"\ncurrency: EUR\ntimezone: Europe/Lisbon\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("CURRENCY", "GBP")

	cfg, err := config.Load()

	require.NoError(t, err)
	require.Equal(t, domain.Cents(725), cfg.HourlyRate)
	require.Equal(t, "GBP", cfg.Currency)
	require.Equal(t, "Europe/Lisbon", cfg.Location.String())
}

func TestLoad_configFileMissing(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := config.Load()

	require.ErrorContains(t, err, "nope.yaml")
}

// TestLoad_invalidValues verifies every invalid value is reported at once.
func TestLoad_invalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOURLY_RATE", "-1.00")
	t.Setenv("TIMEZONE", "Mars/Olympus")
	t.Setenv("EVENT_BUFFER", "zero")
	t.Setenv("LOG_LEVEL", "loud")

	_, err := config.Load()

	require.Error(t, err)
	require.ErrorContains(t, err, "HOURLY_RATE")
	require.ErrorContains(t, err, "TIMEZONE")
	require.ErrorContains(t, err, "EVENT_BUFFER")
	require.ErrorContains(t, err, "LOG_LEVEL")
}

func TestLoad_rateWithTooManyDecimals(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOURLY_RATE", "10.005")

	_, err := config.Load()

	require.ErrorContains(t, err, "HOURLY_RATE")
}

// TestLoad_rateAboveMaximum verifies a rate large enough to overflow a fare
// is refused at startup.
func TestLoad_rateAboveMaximum(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOURLY_RATE", "100000000000000")

	_, err := config.Load()

	require.ErrorContains(t, err, "HOURLY_RATE")
}

// ---- .env file ----

// TestLoad_envFileIsReReadOnEveryLoad verifies a second Load sees edits made
// to the .env file after the first one, which is what a SIGHUP reload does.
func TestLoad_envFileIsReReadOnEveryLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	t.Setenv("ENV_FILE", path)

	writeEnvFile(t, path, "HOURLY_RATE=10.00\n")
	first, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, domain.Cents(1000), first.HourlyRate)

	writeEnvFile(t, path, "HOURLY_RATE=20.00\n")
	second, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, domain.Cents(2000), second.HourlyRate)
}

func TestLoad_envFileDoesNotTouchProcessEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	t.Setenv("ENV_FILE", path)
	writeEnvFile(t, path, "HOURLY_RATE=15.00\nEVENT_BUFFER=16\n")

	cfg, err := config.Load()

	require.NoError(t, err)
	require.Equal(t, domain.Cents(1500), cfg.HourlyRate)
	require.Equal(t, 16, cfg.EventBuffer)
	require.Empty(t, os.Getenv("HOURLY_RATE"))
	require.Empty(t, os.Getenv("EVENT_BUFFER"))
}

// TestLoad_environmentWinsOverEnvFile verifies the .env file only fills in
// what the real environment leaves unset.
func TestLoad_environmentWinsOverEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	t.Setenv("ENV_FILE", path)
	writeEnvFile(t, path, "HOURLY_RATE=15.00\nCURRENCY=EUR\n")
	t.Setenv("HOURLY_RATE", "3.00")

	cfg, err := config.Load()

	require.NoError(t, err)
	require.Equal(t, domain.Cents(300), cfg.HourlyRate)
	require.Equal(t, "EUR", cfg.Currency)
}

// TestLoad_envFileWinsOverConfigFile verifies the .env file sits above the
// YAML overlay.
func TestLoad_envFileWinsOverConfigFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "parking.yaml")
	envPath := filepath.Join(dir, ".env")
	writeEnvFile(t, yamlPath, "hourly_rate: \"7.25\"\n")
	writeEnvFile(t, envPath, "CONFIG_FILE="+yamlPath+"\nHOURLY_RATE=8.00\n")
	t.Setenv("ENV_FILE", envPath)

	cfg, err := config.Load()

	require.NoError(t, err)
	require.Equal(t, domain.Cents(800), cfg.HourlyRate)
}

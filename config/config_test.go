package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.Equal(t, time.UTC, cfg.App.Location)
	assert.Equal(t, -75, cfg.Detection.RSSIThreshold)
	assert.Equal(t, 15*time.Second, cfg.Detection.SoftDeadline)
	assert.Equal(t, 30*time.Second, cfg.Detection.HardCap)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 12*time.Hour, cfg.HTTP.TokenTTL)
	assert.Equal(t, EventsMemory, cfg.Events.Driver)
	assert.Equal(t, "attendance:events", cfg.Events.Channel)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 12*time.Hour, cfg.Scheduler.MaxSessionAge)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"APP_ENV":                   "staging",
		"APP_TIMEZONE":              "UTC",
		"DETECTION_RSSI_THRESHOLD":  "-80",
		"DETECTION_SOFT_DEADLINE":   "5s",
		"DETECTION_HARD_CAP":        "10s",
		"STORAGE_DRIVER":            " SQLite ",
		"STORAGE_SQLITE_PATH":       "/tmp/a.db",
		"LOG_LEVEL":                 "debug",
		"SCHEDULER_MAX_SESSION_AGE": "3h",
	})
	require.NoError(t, err)

	assert.Equal(t, EnvStaging, cfg.App.Environment)
	assert.Equal(t, -80, cfg.Detection.RSSIThreshold)
	assert.Equal(t, 5*time.Second, cfg.Detection.SoftDeadline)
	assert.Equal(t, StorageSQLite, cfg.Storage.Driver)
	assert.Equal(t, "/tmp/a.db", cfg.Storage.SQLitePath)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	assert.Equal(t, 3*time.Hour, cfg.Scheduler.MaxSessionAge)
}

func TestLoadFrom_CollectsValidationErrors(t *testing.T) {
	_, err := LoadFrom(map[string]string{
		"APP_ENV":                  "production",
		"DETECTION_SOFT_DEADLINE":  "20s",
		"DETECTION_HARD_CAP":       "10s",
		"STORAGE_DRIVER":           "postgres",
		"TRACING_ENABLED":          "true",
		"EVENTS_DRIVER":            "kafka",
		"SCHEDULER_SWEEP_INTERVAL": "0s",
	})
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "DETECTION_HARD_CAP")
	assert.Contains(t, msg, "STORAGE_POSTGRES_URL")
	assert.Contains(t, msg, "TRACING_ENDPOINT")
	assert.Contains(t, msg, "EVENTS_DRIVER")
	assert.Contains(t, msg, "HTTP_AUTH_SECRET must be set")
	assert.Contains(t, msg, "SCHEDULER_SWEEP_INTERVAL")
}

func TestLoadFrom_RejectsUnknownDriver(t *testing.T) {
	_, err := LoadFrom(map[string]string{"STORAGE_DRIVER": "bbolt"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")
}

func TestLoadFrom_MemoryNotAllowedInProduction(t *testing.T) {
	_, err := LoadFrom(map[string]string{"APP_ENV": "production"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory is not allowed")
}

func TestLoadFrom_BadDuration(t *testing.T) {
	_, err := LoadFrom(map[string]string{"DETECTION_SOFT_DEADLINE": "soon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "wrestlebot.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.BaseURL)
	assert.Equal(t, 60, cfg.Ollama.TimeoutSecs)
	assert.Equal(t, "ollama", cfg.AI.Backend)
	assert.Equal(t, 3, cfg.AI.FailureThreshold)
	assert.Equal(t, 300, cfg.AI.CooldownSecs)
	assert.Equal(t, 30, cfg.Sources.DefaultBudget.PerMinute)
	assert.Equal(t, 100, cfg.Sources.Budgets["cagematch"].PerHour)
	assert.Equal(t, int64(10<<20), cfg.Images.MaxBytes)
	assert.Equal(t, "@every 15m", cfg.Schedule.Enrichment)
	assert.Equal(t, "0 3 * * *", cfg.Schedule.Cleanup)
	assert.InDelta(t, 0.25, cfg.Monitoring.ErrorRateThreshold, 0.001)
	assert.Equal(t, 60, cfg.Monitoring.RealertMinutes)
	assert.NoError(t, cfg.Validate("serve"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/wrestling
log:
  level: debug
  format: console
server:
  port: 9090
sources:
  budgets:
    wikipedia:
      per_minute: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Sources.Budgets["wikipedia"].PerMinute)
	// Defaults still apply for unset values
	assert.Equal(t, "@every 30m", cfg.Schedule.Discovery)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("WRESTLEBOT_STORE_DRIVER", "postgres")
	t.Setenv("WRESTLEBOT_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("WRESTLEBOT_SERVER_PORT", "3000")
	t.Setenv("WRESTLEBOT_AI_BACKEND", "none")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "none", cfg.AI.Backend)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with the fields Validate inspects populated.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "wrestlebot.db"
	cfg.AI.Backend = "ollama"
	cfg.Server.Port = 8080
	cfg.Monitoring.ErrorRateThreshold = 0.25
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("cli"))
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""
	cfg.AI.Backend = "anthropic"

	err := cfg.Validate("cli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `store.driver "mysql"`)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "anthropic.key is required")

	cfg = validDefaults()
	cfg.AI.Backend = "gpt"
	err = cfg.Validate("cli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `ai.backend "gpt"`)
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	assert.NoError(t, cfg.Validate("cli"))
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateServe_ErrorRateBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Monitoring.ErrorRateThreshold = 1.5

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "error_rate_threshold")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

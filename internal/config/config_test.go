package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "trade-executed", cfg.Kafka.Topics.TradeExecuted)
	assert.Equal(t, "positions-recalculate-requested", cfg.Kafka.Topics.RecalculateRequested)
	assert.Equal(t, 5*time.Second, cfg.Outbox.RelayInterval)
	assert.Equal(t, FillModeCumulative, cfg.Fill.Mode)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.False(t, cfg.Production())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("FILL_MODE", "SINGLE")
	t.Setenv("ENV", "production")
	t.Setenv("AUTH_JWT_SECRET", "prod-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTP.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, FillModeSingle, cfg.Fill.Mode)
	assert.True(t, cfg.Production())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	content := []byte(`
database:
  driver: postgres
  dsn: host=db user=app
outbox:
  batch_size: 7
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "host=db user=app", cfg.Database.DSN)
	assert.Equal(t, 7, cfg.Outbox.BatchSize)
}

func TestValidate(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DATABASE_DRIVER", "mysql")

	_, err := Load()
	assert.Error(t, err)
}

func TestProductionRequiresJWTSecret(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("ENV", "production")

	_, err := Load()
	assert.ErrorContains(t, err, "jwt secret")

	t.Setenv("AUTH_JWT_SECRET", "prod-secret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "prod-secret", cfg.Auth.JWTSecret)
}

func TestPositionsDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("POSITIONS_HTTP_PORT", "9191")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9191", cfg.Positions.HTTPPort)
	assert.Equal(t, "sqlite", cfg.Positions.Database.Driver)
	assert.Equal(t, "positions.db", cfg.Positions.Database.DSN)
	assert.Equal(t, "position-ledger", cfg.Positions.GroupID)
	assert.Empty(t, cfg.Auth.InternalAPIKey)
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	for _, key := range []string{"APP_ENV", "STORE_DRIVER", "REDIS_URL", "KAFKA_BROKERS", "AUTO_MIGRATE", "CONSUMER_TOPICS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	require.Equal(t, "development", cfg.Env)
	require.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	require.True(t, cfg.AutoMigrate)
	require.Empty(t, cfg.RedisURL)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.Equal(t, []string{"activity_events"}, cfg.ConsumerTopics)
	require.Equal(t, 10*time.Minute, cfg.AggregateCacheTTL)
}

func TestLoadOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("AUTO_MIGRATE", "false")
	t.Setenv("DLQ_MAX_RETRIES", "nope")
	t.Setenv("OUTBOX_POLL_INTERVAL", "250ms")

	cfg := Load()
	require.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	require.False(t, cfg.AutoMigrate)
	require.Equal(t, 5, cfg.DLQMaxRetries)
	require.Equal(t, 250*time.Millisecond, cfg.OutboxPollInterval)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("JWT_ISSUER=from-file\nREDIS_URL=redis://cache:6379/0\n"), 0o600))
	chdir(t, dir)
	t.Setenv("JWT_ISSUER", "unset")
	require.NoError(t, os.Unsetenv("JWT_ISSUER"))
	t.Setenv("REDIS_URL", "redis://env:6379/1")

	cfg := Load()
	require.Equal(t, "from-file", cfg.JWTIssuer)
	require.Equal(t, "redis://env:6379/1", cfg.RedisURL)
}

func TestValidate(t *testing.T) {
	valid := Config{StoreDriver: StoreDriverMemory, OutboxBatchSize: 1, DLQMaxRetries: 1}
	require.NoError(t, valid.Validate())

	bad := valid
	bad.StoreDriver = "sqlite"
	bad.Env = "production"
	bad.JWTSecret = devJWTSecret
	bad.DLQMaxRetries = 0
	err := bad.Validate()
	require.ErrorContains(t, err, "STORE_DRIVER")
	require.ErrorContains(t, err, "JWT_SECRET")
	require.ErrorContains(t, err, "DLQ_MAX_RETRIES")

	pg := valid
	pg.StoreDriver = StoreDriverPostgres
	require.ErrorContains(t, pg.Validate(), "POSTGRES_URL")
}

// chdir changes the working directory for the duration of the test
// (equivalent to testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

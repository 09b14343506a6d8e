package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("RUN_ADDRESS", "")
	t.Setenv("DATABASE_URI", "")
	cfg, err := Load(nil)
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.RunAddress)
	require.Empty(t, cfg.DatabaseURI)
	require.Equal(t, 24*time.Hour, cfg.JWTTTL)
	require.Equal(t, 60, cfg.RateLimit.PerMinute)
	require.Equal(t, 5*time.Second, cfg.Payment.PollInterval)
	require.Equal(t, 1000.0, cfg.Signup.AICPoints)
	require.Equal(t, 10000.0, cfg.Signup.Balance)
	require.Empty(t, cfg.Kafka.Brokers)
}

func TestLoadPriority(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zhzb.yaml")
	yaml := []byte(`
run_address: ":9000"
database_uri: "postgres://file"
rate_limit:
  per_minute: 30
kafka:
  brokers: ["k1:9092", "k2:9092"]
`)
	require.NoError(t, os.WriteFile(path, yaml, 0o600))

	t.Setenv("CONFIG_PATH", "")
	t.Setenv("DATABASE_URI", "postgres://env")
	t.Setenv("ZHZB_RATE_LIMIT_PER_MINUTE", "45")

	cfg, err := Load([]string{"-c", path, "-a", ":7000"})
	require.NoError(t, err)

	require.Equal(t, ":7000", cfg.RunAddress, "flag wins over file")
	require.Equal(t, "postgres://env", cfg.DatabaseURI, "legacy env wins over file")
	require.Equal(t, 45, cfg.RateLimit.PerMinute, "prefixed env wins over file")
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("ZHZB_RATE_LIMIT_PER_MINUTE", "0")
	_, err := Load(nil)
	require.Error(t, err)
}

func TestLoadRequiresSecretOutsideDev(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("ZHZB_ENV", "prod")
	_, err := Load(nil)
	require.ErrorContains(t, err, "jwt_secret")

	t.Setenv("ZHZB_JWT_SECRET", "s3cret")
	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, "prod", cfg.Env)
}

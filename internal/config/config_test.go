package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Vault.Password = "pw"
	return cfg
}

func TestDefaultsValidateWithVaultPassword(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRequiresVaultPassword(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.ErrorContains(t, err, "vault: password")
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.LogLevel = "loud"
	cfg.Redis.Addr = ""
	cfg.Maker.QuoteInterval.Duration = 0

	err := cfg.Validate()
	require.Error(t, err)
	require.ErrorContains(t, err, "log_level")
	require.ErrorContains(t, err, "redis: addr")
	require.ErrorContains(t, err, "quote_interval")
}

func TestValidateFileSourceNeedsPath(t *testing.T) {
	cfg := validConfig()
	cfg.Settings.Source = "file"
	cfg.Settings.FilePath = ""
	require.ErrorContains(t, cfg.Validate(), "file_path")

	cfg.Settings.FilePath = "settings.toml"
	require.NoError(t, cfg.Validate())
}

func TestValidateS3OnlyWhenArchiveEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.S3.Bucket = ""
	require.NoError(t, cfg.Validate(), "S3 is unused while archival is off")

	cfg.Archive.Enabled = true
	require.ErrorContains(t, cfg.Validate(), "s3: bucket")
}

func TestValidateDSNSkipsHostChecks(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.DSN = "postgres://u:p@db:5432/makerbot"
	cfg.Postgres.Host = ""
	cfg.Postgres.Database = ""
	require.NoError(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level = "debug"

[maker]
quote_interval = "250ms"
order_cap_per_minute = 10

[server]
port = 9100
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 250*time.Millisecond, cfg.Maker.QuoteInterval.Duration)
	require.Equal(t, 10, cfg.Maker.OrderCapPerMinute)
	require.Equal(t, 9100, cfg.Server.Port)

	// Untouched sections keep their defaults.
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, 90, cfg.Archive.RetentionDays)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[redis]
addr = "file-redis:6379"
`), 0o644))

	t.Setenv("MAKERBOT_REDIS_ADDR", "env-redis:6379")
	t.Setenv("MAKERBOT_VAULT_PASSWORD", "pw")
	t.Setenv("MAKERBOT_MAKER_QUOTE_INTERVAL", "2s")
	t.Setenv("MAKERBOT_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("MAKERBOT_POSTGRES_RUN_MIGRATIONS", "false")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "env-redis:6379", cfg.Redis.Addr, "env outranks the file")
	require.Equal(t, "pw", cfg.Vault.Password)
	require.Equal(t, 2*time.Second, cfg.Maker.QuoteInterval.Duration)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	require.False(t, cfg.Postgres.RunMigrations)
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "pg-secret"
	cfg.Postgres.DSN = "postgres://u:pg-secret@db/x"
	cfg.Redis.Password = "redis-secret"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Server.APIKey = "api-secret"
	cfg.Notify.TelegramToken = "tg-secret"

	red := RedactedConfig(&cfg)
	require.NotContains(t, red.Postgres.Password, "pg-secret")
	require.NotContains(t, red.Postgres.DSN, "pg-secret")
	require.NotContains(t, red.Redis.Password, "redis-secret")
	require.NotContains(t, red.S3.SecretKey, "s3-secret")
	require.NotContains(t, red.Server.APIKey, "api-secret")
	require.NotContains(t, red.Notify.TelegramToken, "tg-secret")
	require.NotContains(t, red.Vault.Password, "pw")

	// Redaction must not mutate the original.
	require.Equal(t, "pg-secret", cfg.Postgres.Password)
}

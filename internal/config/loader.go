package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MAKERBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MAKERBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "MAKERBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MAKERBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MAKERBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MAKERBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MAKERBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MAKERBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MAKERBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MAKERBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MAKERBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MAKERBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "MAKERBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MAKERBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MAKERBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MAKERBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MAKERBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MAKERBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "MAKERBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MAKERBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "MAKERBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MAKERBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MAKERBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MAKERBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MAKERBOT_S3_FORCE_PATH_STYLE")

	// ── Vault ──
	setStr(&cfg.Vault.Path, "MAKERBOT_VAULT_PATH")
	setStr(&cfg.Vault.Password, "MAKERBOT_VAULT_PASSWORD")

	// ── Settings ──
	setStr(&cfg.Settings.Source, "MAKERBOT_SETTINGS_SOURCE")
	setStr(&cfg.Settings.FilePath, "MAKERBOT_SETTINGS_FILE_PATH")

	// ── Maker ──
	setDuration(&cfg.Maker.QuoteInterval, "MAKERBOT_MAKER_QUOTE_INTERVAL")
	setInt(&cfg.Maker.OrderCapPerMinute, "MAKERBOT_MAKER_ORDER_CAP_PER_MINUTE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "MAKERBOT_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "MAKERBOT_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "MAKERBOT_ARCHIVE_RETENTION_DAYS")
	setBool(&cfg.Archive.Prune, "MAKERBOT_ARCHIVE_PRUNE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "MAKERBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "MAKERBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MAKERBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "MAKERBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RequestsPerMin, "MAKERBOT_SERVER_REQUESTS_PER_MIN")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MAKERBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MAKERBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MAKERBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MAKERBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "MAKERBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

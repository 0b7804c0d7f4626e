package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/quantpulse/makerbot/internal/blob/s3"
	"github.com/quantpulse/makerbot/internal/cache/redis"
	"github.com/quantpulse/makerbot/internal/config"
	"github.com/quantpulse/makerbot/internal/crypto"
	"github.com/quantpulse/makerbot/internal/domain"
	"github.com/quantpulse/makerbot/internal/exchange"
	"github.com/quantpulse/makerbot/internal/exchange/binance"
	"github.com/quantpulse/makerbot/internal/gateway"
	"github.com/quantpulse/makerbot/internal/maker"
	"github.com/quantpulse/makerbot/internal/notify"
	"github.com/quantpulse/makerbot/internal/ratelimit"
	"github.com/quantpulse/makerbot/internal/settings"
	"github.com/quantpulse/makerbot/internal/store/postgres"
)

// Dependencies bundles everything the serving layer needs to operate. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Settings domain.SettingsStore
	ExecLog  *postgres.ExecLogStore
	Creds    domain.CredentialStore

	EventBus *redis.EventBus
	Balances domain.BalanceCache

	Pool     *exchange.Pool
	Limiter  *ratelimit.Limiter
	Gateway  *gateway.Gateway
	Sessions *maker.SessionManager

	Archiver *s3blob.Archiver
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	deps.ExecLog = postgres.NewExecLogStore(pgClient, logger)

	// --- Settings store ---
	switch strings.ToLower(cfg.Settings.Source) {
	case "file":
		fs, err := settings.NewFileStore(cfg.Settings.FilePath, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: settings file store: %w", err)
		}
		closers = append(closers, func() { _ = fs.Close() })
		deps.Settings = fs
	default:
		deps.Settings = postgres.NewSettingsStore(pgClient)
	}

	// --- Credentials vault ---
	vault, err := crypto.OpenFileVault(cfg.Vault.Path, cfg.Vault.Password)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: credentials vault: %w", err)
	}
	deps.Creds = vault

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.EventBus = redis.NewEventBus(redisClient, logger)
	deps.Balances = redis.NewBalanceCache(redisClient)

	// --- Exchange connectors ---
	factory := exchange.NewFactory()
	factory.Register("binance", binance.New)

	deps.Pool = exchange.NewPool(factory, deps.Creds, logger)
	closers = append(closers, deps.Pool.CloseAll)

	// --- Gateway and sessions ---
	deps.Limiter = ratelimit.New()
	deps.Gateway = gateway.New(deps.Pool, deps.Limiter, deps.Balances, deps.ExecLog, logger).
		WithOrderCap(cfg.Maker.OrderCapPerMinute)
	deps.Sessions = maker.NewSessionManager(
		deps.Pool, deps.Gateway, deps.Settings, deps.ExecLog, deps.EventBus, logger)

	// --- S3 archival (optional) ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.ExecLog, logger)
		deps.Archiver.Prune = cfg.Archive.Prune
	}

	// --- Notifications (optional) ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	return deps, cleanup, nil
}

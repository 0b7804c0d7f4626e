// Command makerbot is the backend entry point for the maker bot. It loads
// configuration, validates it, wires dependencies, sets up signal handling,
// and starts the application.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/quantpulse/makerbot/internal/app"
	"github.com/quantpulse/makerbot/internal/config"
	"github.com/quantpulse/makerbot/internal/crypto"
	"github.com/quantpulse/makerbot/internal/domain"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	encryptCreds := flag.String("encrypt-creds", "", "encrypt a plaintext credentials JSON file into the configured vault and exit")
	closeSpec := flag.String("close-position", "", "close a user's open position (uid:symbol) and exit")
	flag.Parse()

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// Set log level from config.
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// One-shot vault encryption, used to provision credentials.
	if *encryptCreds != "" {
		if err := encryptVault(*encryptCreds, cfg.Vault.Path, cfg.Vault.Password); err != nil {
			logger.Error("failed to encrypt credentials", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("credentials vault written", slog.String("path", cfg.Vault.Path))
		return
	}

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Create the application.
	application := app.New(cfg, logger)
	defer application.Close()

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// One-shot position close, used to flatten a user without serving.
	if *closeSpec != "" {
		if err := application.RunClosePosition(ctx, *closeSpec); err != nil {
			logger.Error("close position failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	}

	logger.Info("maker bot starting",
		slog.String("config", *configPath),
	)

	// Run the application.
	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if err == context.Canceled {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("maker bot stopped")
}

// encryptVault reads a plaintext JSON file mapping uid to credentials and
// writes the encrypted vault file. The plaintext file should be deleted by
// the operator afterwards.
func encryptVault(plainPath, vaultPath, password string) error {
	data, err := os.ReadFile(plainPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", plainPath, err)
	}

	var creds map[string]domain.Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return fmt.Errorf("parse %s: %w", plainPath, err)
	}

	blob, err := crypto.EncryptVault(creds, password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(vaultPath, blob, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", vaultPath, err)
	}
	return nil
}

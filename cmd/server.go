package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	app "visitor-access-control/internal"
	"visitor-access-control/internal/audit"
	"visitor-access-control/internal/config"
	"visitor-access-control/internal/nonce"
	"visitor-access-control/internal/notify"
	"visitor-access-control/internal/pass"
	"visitor-access-control/internal/risk"
	"visitor-access-control/internal/storage"
	"visitor-access-control/internal/token"
	"visitor-access-control/internal/visitor"

	"github.com/spf13/cobra"
)

// Janitor sweep interval for expired idempotency keys.
const KEY_JANITOR_INTERVAL = 5 * time.Minute

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the visitor access control server",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		fmt.Println("Starting visitor access control server...")
		ServerMain(ctx, provider)
	},
}

// Initialize logger
func initLogger(cfg *config.Config) *slog.Logger {
	// Determine level from config and set it on the handler options.
	var level slog.Level
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
		println("Invalid log level in config, defaulting to INFO")
	}
	handlerOpts := &slog.HandlerOptions{
		Level: level,
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, handlerOpts))
	slog.SetDefault(logger)

	slog.Debug("Logger initialized", "level", level.String())
	return logger
}

// notifierFromConfig picks the notification gateway. Email when SMTP is
// configured, plain logging otherwise.
func notifierFromConfig(cfg *config.Config) notify.Gateway {
	if cfg.Email.Host != "" && len(cfg.Email.To) > 0 {
		slog.Debug("Using email notification gateway", "host", cfg.Email.Host)
		return notify.NewEmailGateway(cfg.Email)
	}
	return notify.NewLogGateway()
}

// blacklistFromConfig combines the store-backed blacklist with the optional
// file drop from the society office.
func blacklistFromConfig(cfg *config.Config, storageProvider storage.Provider) risk.Blacklist {
	if cfg.Risk.BlacklistFile == "" {
		return storageProvider
	}

	fileList := risk.NewFileBlacklist()
	if err := fileList.Load(cfg.Risk.BlacklistFile); err != nil {
		slog.Error("Failed to load blacklist file", "file", cfg.Risk.BlacklistFile, "error", err)
		os.Exit(1)
	}
	return risk.NewCombinedBlacklist(storageProvider, fileList)
}

// BuildServices wires the full service graph once at startup. Nothing here
// is a package-level singleton; tests wire their own graph the same way.
func BuildServices(cfg *config.Config, storageProvider storage.Provider) (app.Services, nonce.KeyStore, error) {
	keys, err := nonce.NewStore(cfg.IdempotencyStore, KEY_JANITOR_INTERVAL, storageProvider)
	if err != nil {
		return app.Services{}, nil, fmt.Errorf("failed to initialize idempotency key store: %w", err)
	}

	notifier := notifierFromConfig(cfg)
	auditor := audit.NewWriter(storageProvider)
	signer := token.NewSigner(cfg.Secret)
	engine := risk.NewEngine(storageProvider, blacklistFromConfig(cfg, storageProvider), notifier)

	passes := pass.NewService(storageProvider, signer, keys, auditor, notifier,
		cfg.Secret, cfg.SocietyID, time.Duration(cfg.IdempotencyKeyTTL)*time.Second)
	visitors := visitor.NewService(storageProvider, engine, auditor, notifier)

	return app.Services{
		Store:    storageProvider,
		Passes:   passes,
		Visitors: visitors,
	}, keys, nil
}

func ServerMain(ctx context.Context, storageProvider storage.Provider) {

	if config.Cfg == nil {
		panic("Config not initialized.")
	}

	initLogger(config.Cfg)

	// Use the provider passed from cobra command (already initialized)
	if storageProvider == nil {
		slog.Error("Storage provider is nil")
		os.Exit(1)
	}

	if config.Cfg.GateKeyHash == "" {
		slog.Warn("Gate key hash is not set, redeem endpoint is unauthenticated. Do not use in production.")
	}

	services, keys, err := BuildServices(config.Cfg, storageProvider)
	if err != nil {
		slog.Error("Failed to build services", "error", err)
		os.Exit(1)
	}
	defer keys.Close()

	server := app.HTTPServer(services)

	server.Run()
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/viper"

	"visitor-access-control/internal/notify"
)

const QR_IMAGE_SIZE = 512

type RiskConfig struct {
	// Path to the YAML blacklist file. Optional; the store-backed blacklist
	// is always consulted, the file augments it.
	BlacklistFile string `mapstructure:"blacklist_file"`
}

type Config struct {
	// Secret key for signing pass tokens and verifying gate keys. Must be set in production.
	Secret string `mapstructure:"secret"`

	// Default pass validity in minutes when the issue request carries no window.
	PassTTL uint `mapstructure:"pass_ttl"`
	// TTL for redeem idempotency keys in seconds.
	IdempotencyKeyTTL uint `mapstructure:"idempotency_key_ttl"`
	// Idempotency key store backend: "memory" or "sql".
	IdempotencyStore string `mapstructure:"idempotency_store"`

	LogLevel string `mapstructure:"log_level"`

	// Comma separated list of allowed CIDR networks. Empty means allow all.
	AllowedNetworks string `mapstructure:"allowed_networks"`

	// Argon2-HMAC hash of the gate API key. Empty disables gate auth (dev only).
	GateKeyHash string `mapstructure:"gate_key_hash"`

	// Society this deployment serves. Stamped on records created via the API.
	SocietyID string `mapstructure:"society_id"`

	BaseURL    string `mapstructure:"base_url"`
	SupportURL string `mapstructure:"support_url"`

	Risk RiskConfig `mapstructure:"risk"`

	Storage Storage `mapstructure:"storage"`

	// Notification email channel configuration
	Email notify.SMTPConfig `mapstructure:"email"`
}

var Cfg *Config

// Check if running in Docker container by checking for the presence of /.dockerenv file
func runningInDocker() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}

func getConfigPath() string {
	if runningInDocker() {
		return "/app/instance"
	}
	return "./instance"
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig(configFile ...string) (*Config, error) {
	var cfg Config

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(getConfigPath())
	v.AddConfigPath(".")
	v.SetEnvPrefix("")

	if len(configFile) > 0 {
		for _, path := range configFile {
			v.SetConfigFile(path)
		}
	}

	for k, val := range Defaults() {
		v.SetDefault(k, val)
	}

	// Load configuration from environment variables
	v.AutomaticEnv()

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %v", err)
	}

	// Convert relative sqlite path to the instance folder
	if cfg.Storage.SQLite != nil {
		if cfg.Storage.SQLite.Path == ":memory:" {
			// In-memory database, do nothing
		} else if !os.IsPathSeparator(cfg.Storage.SQLite.Path[0]) {
			cfg.Storage.SQLite.Path = fmt.Sprintf("%s/%s", getConfigPath(), cfg.Storage.SQLite.Path)
		}
	}

	// Warn if secret is missing - this is a critical security setting for production
	if cfg.Secret == "" {
		if os.Getenv("GIN_MODE") == "release" {
			panic("SECRET configuration variable is required in production")
		} else {
			slog.Warn("Secret is not set. Do not use in production.")
		}
	}

	return &cfg, nil
}

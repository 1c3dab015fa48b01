package config

import (
	"context"
	"encoding/json"
	"fmt"
	"indodax-monitor-bot/internal/models"
	"os"
	"path/filepath"
	"strings"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// envOverrides 从环境变量读取的配置项, 非空时覆盖配置文件中的值
type envOverrides struct {
	TelegramToken    string `env:"TELEGRAM_BOT_TOKEN"`
	IndodaxAPIKey    string `env:"INDODAX_API_KEY"`
	IndodaxSecretKey string `env:"INDODAX_SECRET_KEY"`
	BinanceAPIKey    string `env:"BINANCE_API_KEY"`
	BinanceSecretKey string `env:"BINANCE_SECRET_KEY"`
	LogLevel         string `env:"LOG_LEVEL"`
	StorageDriver    string `env:"STORAGE_DRIVER"`
}

// LoadConfig 从指定路径加载JSON或YAML配置文件, 并叠加环境变量与默认值
func LoadConfig(path string) (*models.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &models.Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := ApplyEnv(context.Background(), cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays secrets and operational settings from the environment.
func ApplyEnv(ctx context.Context, cfg *models.Config) error {
	var env envOverrides
	if err := envconfig.Process(ctx, &env); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	if env.TelegramToken != "" {
		cfg.Notifier.TelegramToken = env.TelegramToken
	}
	switch strings.ToLower(cfg.Exchange.Name) {
	case "binance":
		setIfNotEmpty(&cfg.Exchange.APIKey, env.BinanceAPIKey)
		setIfNotEmpty(&cfg.Exchange.SecretKey, env.BinanceSecretKey)
	default:
		setIfNotEmpty(&cfg.Exchange.APIKey, env.IndodaxAPIKey)
		setIfNotEmpty(&cfg.Exchange.SecretKey, env.IndodaxSecretKey)
	}
	setIfNotEmpty(&cfg.LogConfig.Level, env.LogLevel)
	setIfNotEmpty(&cfg.Storage.Driver, env.StorageDriver)
	return nil
}

func setIfNotEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// ApplyDefaults fills every unset field with its default.
func ApplyDefaults(cfg *models.Config) {
	if cfg.Exchange.Name == "" {
		cfg.Exchange.Name = "indodax"
	}
	cfg.Exchange.Name = strings.ToLower(cfg.Exchange.Name)
	if cfg.Exchange.BaseURL == "" && cfg.Exchange.Name == "indodax" {
		cfg.Exchange.BaseURL = "https://indodax.com"
	}
	if cfg.Exchange.QuoteAsset == "" {
		if cfg.Exchange.Name == "binance" {
			cfg.Exchange.QuoteAsset = "usdt"
		} else {
			cfg.Exchange.QuoteAsset = "idr"
		}
	}
	cfg.Exchange.QuoteAsset = strings.ToLower(cfg.Exchange.QuoteAsset)
	if cfg.Exchange.TimeoutSec == 0 {
		cfg.Exchange.TimeoutSec = 10
	}
	if cfg.Exchange.RequestsPerSec == 0 {
		cfg.Exchange.RequestsPerSec = 5
	}
	if cfg.Exchange.RetryAttempts == 0 {
		cfg.Exchange.RetryAttempts = 2
	}
	if cfg.Exchange.RetryInitialMs == 0 {
		cfg.Exchange.RetryInitialMs = 200
	}
	if cfg.Exchange.PairsSourceURL == "" {
		cfg.Exchange.PairsSourceURL = "https://api.coingecko.com/api/v3/exchanges/indodax/tickers"
	}
	if cfg.Exchange.MinOrderTotal == 0 {
		cfg.Exchange.MinOrderTotal = 10000
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "file"
	}
	cfg.Storage.Driver = strings.ToLower(cfg.Storage.Driver)
	if cfg.Storage.Path == "" {
		if cfg.Storage.Driver == "sqlite" {
			cfg.Storage.Path = "data/monitor.db"
		} else {
			cfg.Storage.Path = "data"
		}
	}

	if cfg.Notifier.Kind == "" {
		cfg.Notifier.Kind = "log"
	}
	cfg.Notifier.Kind = strings.ToLower(cfg.Notifier.Kind)
	if cfg.Notifier.Workers == 0 {
		cfg.Notifier.Workers = 4
	}
	if cfg.Notifier.Capacity == 0 {
		cfg.Notifier.Capacity = 256
	}
	if cfg.Notifier.TimeoutSec == 0 {
		cfg.Notifier.TimeoutSec = 10
	}

	if cfg.Monitor.AlertIntervalSec == 0 {
		cfg.Monitor.AlertIntervalSec = 15
	}
	if cfg.Monitor.OrderFillIntervalSec == 0 {
		cfg.Monitor.OrderFillIntervalSec = 15
	}
	if cfg.Monitor.StoplossIntervalSec == 0 {
		cfg.Monitor.StoplossIntervalSec = 30
	}
	if cfg.Monitor.OrderHistoryWindow == 0 {
		cfg.Monitor.OrderHistoryWindow = 20
	}
	if cfg.Monitor.TickTimeoutSec == 0 {
		cfg.Monitor.TickTimeoutSec = 60
	}
	if cfg.Monitor.RecordTimeoutSec == 0 {
		cfg.Monitor.RecordTimeoutSec = 15
		if cfg.Monitor.TickTimeoutSec > 0 && cfg.Monitor.RecordTimeoutSec > cfg.Monitor.TickTimeoutSec {
			cfg.Monitor.RecordTimeoutSec = cfg.Monitor.TickTimeoutSec
		}
	}

	if cfg.PairsFile == "" {
		cfg.PairsFile = "pairs.json"
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.LogConfig.Output == "" {
		cfg.LogConfig.Output = "console"
	}
}

// Validate rejects configurations the bot cannot run with.
func Validate(cfg *models.Config) error {
	switch cfg.Exchange.Name {
	case "indodax", "binance":
	default:
		return fmt.Errorf("unknown exchange %q", cfg.Exchange.Name)
	}
	switch cfg.Storage.Driver {
	case "file", "badger", "sqlite":
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	switch cfg.Notifier.Kind {
	case "log":
	case "telegram":
		if cfg.Notifier.TelegramToken == "" {
			return fmt.Errorf("telegram notifier requires TELEGRAM_BOT_TOKEN")
		}
	default:
		return fmt.Errorf("unknown notifier %q", cfg.Notifier.Kind)
	}

	m := cfg.Monitor
	if m.AlertIntervalSec <= 0 || m.OrderFillIntervalSec <= 0 || m.StoplossIntervalSec <= 0 || m.TickTimeoutSec <= 0 {
		return fmt.Errorf("monitor intervals must be positive")
	}
	if m.RecordTimeoutSec <= 0 || m.RecordTimeoutSec > m.TickTimeoutSec {
		return fmt.Errorf("record_timeout_sec must be positive and at most tick_timeout_sec")
	}
	if m.OrderHistoryWindow <= 0 {
		return fmt.Errorf("order_history_window must be positive")
	}
	if cfg.Metrics.Port < 0 || cfg.Metrics.Port > 65535 {
		return fmt.Errorf("invalid metrics port %d", cfg.Metrics.Port)
	}
	return nil
}

package config

import (
	"os"
	"time"

	"github.com/nairapay/wallet-service/internal/model"
	"gopkg.in/yaml.v3"
)

// Config top-level struct
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Postgres     PostgresConfig     `yaml:"postgres"`
	Redis        RedisConfig        `yaml:"redis"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	RateLimit    RateLimitConfig    `yaml:"ratelimit"`
	Provider     ProviderConfig     `yaml:"provider"`
	Provisioning ProvisioningConfig `yaml:"provisioning"`
	Wallet       WalletConfig       `yaml:"wallet"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

// ProviderConfig controls the virtual-account issuer client.
type ProviderConfig struct {
	BaseURL        string `yaml:"base_url"`
	SecretKey      string `yaml:"secret_key"`
	BVN            string `yaml:"bvn"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
	BackoffBaseMs  int    `yaml:"backoff_base_ms"`
}

func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

func (p ProviderConfig) BackoffBase() time.Duration {
	return time.Duration(p.BackoffBaseMs) * time.Millisecond
}

// ProvisioningConfig bounds the signup transaction.
type ProvisioningConfig struct {
	TxTimeoutSeconds int `yaml:"tx_timeout_seconds"`
	SlotWaitSeconds  int `yaml:"slot_wait_seconds"`
	Slots            int `yaml:"slots"`
}

func (p ProvisioningConfig) TxTimeout() time.Duration {
	return time.Duration(p.TxTimeoutSeconds) * time.Second
}
func (p ProvisioningConfig) SlotWait() time.Duration {
	return time.Duration(p.SlotWaitSeconds) * time.Second
}

// WalletConfig selects the seeded balance currencies.
type WalletConfig struct {
	Currencies      []string `yaml:"currencies"`
	PrimaryCurrency string   `yaml:"primary_currency"`
}

func (w WalletConfig) CurrencyList() []model.Currency {
	out := make([]model.Currency, 0, len(w.Currencies))
	for _, c := range w.Currencies {
		out = append(out, model.Currency(c))
	}
	return out
}

func (w WalletConfig) Primary() model.Currency { return model.Currency(w.PrimaryCurrency) }

// Load reads yaml file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	// override secrets from env if present
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	if key := os.Getenv("FLW_SECRET_KEY"); key != "" {
		cfg.Provider.SecretKey = key
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Provider.TimeoutSeconds == 0 {
		cfg.Provider.TimeoutSeconds = 15
	}
	if cfg.Provider.MaxRetries == 0 {
		cfg.Provider.MaxRetries = 3
	}
	if cfg.Provider.BackoffBaseMs == 0 {
		cfg.Provider.BackoffBaseMs = 1000
	}
	if cfg.Provisioning.TxTimeoutSeconds == 0 {
		cfg.Provisioning.TxTimeoutSeconds = 30
	}
	if cfg.Provisioning.SlotWaitSeconds == 0 {
		cfg.Provisioning.SlotWaitSeconds = 10
	}
	if cfg.Provisioning.Slots == 0 {
		cfg.Provisioning.Slots = 16
	}
	if len(cfg.Wallet.Currencies) == 0 {
		for _, c := range model.DefaultCurrencies {
			cfg.Wallet.Currencies = append(cfg.Wallet.Currencies, string(c))
		}
	}
	if cfg.Wallet.PrimaryCurrency == "" {
		cfg.Wallet.PrimaryCurrency = string(model.CurrencyNGN)
	}
}

// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"telegram-generation-billing/internal/domain/model"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token    string  `yaml:"token"`
	Username string  `yaml:"username"`
	Workers  int     `yaml:"workers"` // polling workers
	AdminIDs []int64 `yaml:"admin_ids"`
	Language string  `yaml:"language"` // en|ru
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

// RedisConfig is optional; without a URL rate limiting is disabled.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type RobokassaConfig struct {
	MerchantLogin string `yaml:"merchant_login"`
	Password1     string `yaml:"password1"`
	Password2     string `yaml:"password2"`
	TestMode      bool   `yaml:"test_mode"`
	PayURL        string `yaml:"pay_url"`
	StatusURL     string `yaml:"status_url"`
}

type PaymentConfig struct {
	Driver       string          `yaml:"driver"` // robokassa|noop
	Robokassa    RobokassaConfig `yaml:"robokassa"`
	PollInterval time.Duration   `yaml:"poll_interval"`
	PendingTTL   time.Duration   `yaml:"pending_ttl"`
	PollBatch    int             `yaml:"poll_batch"`
	PollWorkers  int             `yaml:"poll_workers"`
}

type GenerationsConfig struct {
	InitialCount  int64 `yaml:"initial_count"`
	ReferralBonus int64 `yaml:"referral_bonus"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type EventsConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

type LimitConfig struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

type RateLimitConfig struct {
	ManualCheck LimitConfig `yaml:"manual_check"`
	Promo       LimitConfig `yaml:"promo"`
}

type Config struct {
	Bot         BotConfig           `yaml:"bot"`
	Log         LogConfig           `yaml:"log"`
	HTTP        HTTPConfig          `yaml:"http"`
	Database    DatabaseConfig      `yaml:"database"`
	Redis       RedisConfig         `yaml:"redis"`
	Payment     PaymentConfig       `yaml:"payment"`
	Generations GenerationsConfig   `yaml:"generations"`
	Pricing     []model.PricingTier `yaml:"pricing"`
	Auth        AuthConfig          `yaml:"auth"`
	Events      EventsConfig        `yaml:"events"`
	RateLimit   RateLimitConfig     `yaml:"rate_limit"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(configPath string, dev bool) (*Config, error) {
	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse decodes YAML, applies env overrides and defaults, then validates.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev

	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&cfg.Database.URL, "DATABASE_URL")
	override(&cfg.Bot.Token, "BOT_TOKEN")
	override(&cfg.Bot.Language, "BOT_LANGUAGE")
	override(&cfg.Payment.Robokassa.Password1, "ROBOKASSA_PASSWORD1")
	override(&cfg.Payment.Robokassa.Password2, "ROBOKASSA_PASSWORD2")
	override(&cfg.Auth.JWTSecret, "JWT_SECRET")
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.Language == "" {
		cfg.Bot.Language = "en"
	}
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Payment.Driver == "" {
		cfg.Payment.Driver = "robokassa"
	}
	if cfg.Payment.PollInterval <= 0 {
		cfg.Payment.PollInterval = 40 * time.Second
	}
	if cfg.Payment.PendingTTL <= 0 {
		cfg.Payment.PendingTTL = time.Hour
	}
	if cfg.Payment.PollBatch <= 0 {
		cfg.Payment.PollBatch = 200
	}
	if cfg.Payment.PollWorkers <= 0 {
		cfg.Payment.PollWorkers = 4
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "generation-billing"
	}
	if cfg.Events.Kafka.Topic == "" {
		cfg.Events.Kafka.Topic = "generation-billing.events"
	}
	cfg.RateLimit.ManualCheck = normalizeLimit(cfg.RateLimit.ManualCheck, 5, 10*time.Second)
	cfg.RateLimit.Promo = normalizeLimit(cfg.RateLimit.Promo, 10, time.Minute)
}

func normalizeLimit(l LimitConfig, limit int, window time.Duration) LimitConfig {
	if l.Limit <= 0 {
		l.Limit = limit
	}
	if l.Window <= 0 {
		l.Window = window
	}
	return l
}

func (cfg *Config) validate() error {
	if cfg.Database.URL == "" && !cfg.Runtime.Dev {
		return errors.New("database.url is required")
	}
	if len(cfg.Pricing) == 0 {
		return errors.New("pricing must list at least one tier")
	}
	for i, t := range cfg.Pricing {
		if t.Generations <= 0 || t.Price <= 0 {
			return fmt.Errorf("pricing[%d]: generations and price must be positive", i)
		}
	}
	if cfg.Generations.InitialCount < 0 || cfg.Generations.ReferralBonus < 0 {
		return errors.New("generations counts must not be negative")
	}
	switch cfg.Payment.Driver {
	case "robokassa":
		rk := cfg.Payment.Robokassa
		if rk.MerchantLogin == "" || rk.Password1 == "" || rk.Password2 == "" {
			return errors.New("payment.robokassa merchant_login, password1 and password2 are required")
		}
	case "noop":
		if !cfg.Runtime.Dev {
			return errors.New("payment.driver=noop is only allowed with -dev")
		}
	default:
		return fmt.Errorf("unknown payment.driver %q", cfg.Payment.Driver)
	}
	return nil
}

// Tier returns the pricing tier selling the given number of generations.
func (cfg *Config) Tier(generations int64) (model.PricingTier, bool) {
	for _, t := range cfg.Pricing {
		if t.Generations == generations {
			return t, true
		}
	}
	return model.PricingTier{}, false
}

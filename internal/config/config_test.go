//go:build !integration

package config

import (
	"strings"
	"testing"
	"time"
)

const baseYAML = `
database:
  url: postgres://u:p@localhost:5432/db
payment:
  robokassa:
    merchant_login: shop
    password1: p1
    password2: p2
pricing:
  - generations: 10
    price: 15000
    currency: RUB
  - generations: 50
    price: 59000
    currency: RUB
`

func TestParse(t *testing.T) {
	t.Run("should apply defaults", func(t *testing.T) {
		cfg, err := Parse([]byte(baseYAML), false)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.Payment.PollInterval != 40*time.Second {
			t.Errorf("expected 40s poll interval, got %s", cfg.Payment.PollInterval)
		}
		if cfg.Payment.PendingTTL != time.Hour {
			t.Errorf("expected 1h pending ttl, got %s", cfg.Payment.PendingTTL)
		}
		if cfg.Payment.Driver != "robokassa" {
			t.Errorf("expected robokassa driver, got %s", cfg.Payment.Driver)
		}
		if cfg.HTTP.Port != 8080 {
			t.Errorf("expected port 8080, got %d", cfg.HTTP.Port)
		}
		if cfg.RateLimit.ManualCheck.Limit != 5 || cfg.RateLimit.ManualCheck.Window != 10*time.Second {
			t.Errorf("unexpected manual check limit: %+v", cfg.RateLimit.ManualCheck)
		}
		if cfg.Payment.PollWorkers != 4 {
			t.Errorf("expected 4 poll workers, got %d", cfg.Payment.PollWorkers)
		}
		if cfg.Bot.Language != "en" {
			t.Errorf("expected en bot language, got %q", cfg.Bot.Language)
		}
	})

	t.Run("should parse durations", func(t *testing.T) {
		y := strings.Replace(baseYAML, "payment:\n", "payment:\n  pending_ttl: 30m\n  poll_interval: 15s\n", 1)
		cfg, err := Parse([]byte(y), false)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.Payment.PendingTTL != 30*time.Minute {
			t.Errorf("expected 30m, got %s", cfg.Payment.PendingTTL)
		}
		if cfg.Payment.PollInterval != 15*time.Second {
			t.Errorf("expected 15s, got %s", cfg.Payment.PollInterval)
		}
	})

	t.Run("should let env override secrets", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://env")
		t.Setenv("JWT_SECRET", "from-env")
		t.Setenv("BOT_LANGUAGE", "ru")
		cfg, err := Parse([]byte(baseYAML), false)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.Database.URL != "postgres://env" {
			t.Errorf("expected env database url, got %s", cfg.Database.URL)
		}
		if cfg.Auth.JWTSecret != "from-env" {
			t.Errorf("expected env jwt secret, got %s", cfg.Auth.JWTSecret)
		}
		if cfg.Bot.Language != "ru" {
			t.Errorf("expected env bot language, got %s", cfg.Bot.Language)
		}
	})

	t.Run("should reject missing pricing", func(t *testing.T) {
		_, err := Parse([]byte("database:\n  url: x\npayment:\n  driver: noop\n"), true)
		if err == nil {
			t.Fatal("expected an error for empty pricing")
		}
	})

	t.Run("should reject noop driver outside dev", func(t *testing.T) {
		y := strings.Replace(baseYAML, "payment:\n", "payment:\n  driver: noop\n", 1)
		if _, err := Parse([]byte(y), false); err == nil {
			t.Fatal("expected an error for noop driver without dev")
		}
		if _, err := Parse([]byte(y), true); err != nil {
			t.Fatalf("expected noop driver to be accepted in dev, got %v", err)
		}
	})

	t.Run("should find tiers", func(t *testing.T) {
		cfg, _ := Parse([]byte(baseYAML), false)
		tier, ok := cfg.Tier(50)
		if !ok || tier.Price != 59000 {
			t.Errorf("expected 50-generation tier, got %+v ok=%v", tier, ok)
		}
		if _, ok := cfg.Tier(7); ok {
			t.Error("expected no tier for 7 generations")
		}
	})
}

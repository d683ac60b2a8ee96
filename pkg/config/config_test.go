package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !cfg.MinSpread.Equal(decimal.RequireFromString("0.015")) {
		t.Errorf("expected MinSpread 0.015, got %s", cfg.MinSpread)
	}
	if cfg.MinTimeRemaining != 60*time.Second {
		t.Errorf("expected MinTimeRemaining 60s, got %v", cfg.MinTimeRemaining)
	}
	if !cfg.SlippageBuffer.Equal(decimal.RequireFromString("0.02")) {
		t.Errorf("expected SlippageBuffer 0.02, got %s", cfg.SlippageBuffer)
	}
	if !cfg.MinHedgeRatio.Equal(decimal.RequireFromString("0.8")) ||
		!cfg.CriticalHedgeRatio.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("unexpected hedge ratios %s/%s", cfg.MinHedgeRatio, cfg.CriticalHedgeRatio)
	}
	if cfg.StorageMode != "memory" {
		t.Errorf("expected StorageMode memory, got %q", cfg.StorageMode)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("STRATEGY_MIN_SPREAD", "0.02")
	t.Setenv("STRATEGY_GRADUAL_ENTRY_ENABLED", "true")
	t.Setenv("MARKET_SLUGS", "btc-up, eth-up ,,")
	t.Setenv("RISK_COOLDOWN", "5m")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !cfg.MinSpread.Equal(decimal.RequireFromString("0.02")) {
		t.Errorf("expected MinSpread 0.02, got %s", cfg.MinSpread)
	}
	if !cfg.GradualEntryEnabled {
		t.Error("expected GradualEntryEnabled")
	}
	if len(cfg.MarketSlugs) != 2 || cfg.MarketSlugs[1] != "eth-up" {
		t.Errorf("unexpected MarketSlugs %v", cfg.MarketSlugs)
	}
	if cfg.CircuitBreakerCooldown != 5*time.Minute {
		t.Errorf("expected cooldown 5m, got %v", cfg.CircuitBreakerCooldown)
	}
}

func TestLoadFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("STRATEGY_MAX_TRADE_SIZE_USD", "not-a-number")
	t.Setenv("EXECUTION_SUBMIT_RETRIES", "x")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !cfg.MaxTradeSizeUSD.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected default 50, got %s", cfg.MaxTradeSizeUSD)
	}
	if cfg.SubmitRetries != 3 {
		t.Errorf("expected default 3, got %d", cfg.SubmitRetries)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{name: "valid-defaults", env: nil, wantErr: false},
		{name: "spread-zero", env: map[string]string{"STRATEGY_MIN_SPREAD": "0"}, wantErr: true},
		{name: "spread-one", env: map[string]string{"STRATEGY_MIN_SPREAD": "1"}, wantErr: true},
		{name: "critical-above-min", env: map[string]string{"STRATEGY_CRITICAL_HEDGE_RATIO": "0.9"}, wantErr: true},
		{name: "warning-above-critical", env: map[string]string{"RISK_WARNING_THRESHOLD": "0.95"}, wantErr: true},
		{name: "bad-mode", env: map[string]string{"EXECUTION_MODE": "yolo"}, wantErr: true},
		{name: "bad-tif", env: map[string]string{"EXECUTION_TIME_IN_FORCE": "GTC"}, wantErr: true},
		{name: "live-without-keys", env: map[string]string{"EXECUTION_MODE": "live"}, wantErr: true},
		{name: "bad-storage", env: map[string]string{"STORAGE_MODE": "console"}, wantErr: true},
		{name: "dry-run", env: map[string]string{"EXECUTION_MODE": "dry-run"}, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadFromEnv()
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadFromEnv() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")

	if _, err := NewLogger(); err == nil {
		t.Error("expected error for invalid log level")
	}
}

func TestLoggerConfig(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		format   string
		wantErr  bool
		encoding string
	}{
		{name: "defaults", encoding: "json"},
		{name: "console", level: "debug", format: "console", encoding: "console"},
		{name: "upper-case format", format: "JSON", encoding: "json"},
		{name: "bad format", format: "xml", wantErr: true},
		{name: "bad level", level: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := loggerConfig(tt.level, tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("loggerConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			if cfg.Encoding != tt.encoding {
				t.Errorf("expected encoding %s, got %s", tt.encoding, cfg.Encoding)
			}
		})
	}
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string

	// Polymarket API
	PolymarketWSURL      string
	PolymarketGammaURL   string
	PolymarketCLOBURL    string
	PolymarketAPIKey     string
	PolymarketSecret     string
	PolymarketPassphrase string
	PolymarketPrivateKey string
	PolymarketAddress    string // funder/proxy address, empty for EOA
	SignatureType        int
	PolygonRPCURL        string
	CLOBRequestsPerSec   float64

	// Markets
	MarketSlugs        []string
	MarketPollInterval time.Duration

	// WebSocket
	WSDialTimeout           time.Duration
	WSPongTimeout           time.Duration
	WSPingInterval          time.Duration
	WSReconnectInitialDelay time.Duration
	WSReconnectMaxDelay     time.Duration
	WSReconnectBackoffMult  float64
	WSMessageBufferSize     int

	// Strategy
	MinSpread             decimal.Decimal
	MaxTradeSizeUSD       decimal.Decimal
	MaxPerWindowUSD       decimal.Decimal
	MinTimeRemaining      time.Duration
	BalanceSizingPct      decimal.Decimal
	GradualEntryEnabled   bool
	GradualEntryTranches  int
	GradualEntryMinSpread decimal.Decimal
	MinHedgeRatio         decimal.Decimal
	CriticalHedgeRatio    decimal.Decimal
	SlippageBuffer        decimal.Decimal
	MaxBookAge            time.Duration

	// Execution
	ExecutionMode        string // paper, live, dry-run
	LegTimeout           time.Duration
	SubmitRetries        int
	RetryBackoff         time.Duration
	TimeInForce          string
	MaxRebalanceAttempts int
	MaxRebalanceCostUSD  decimal.Decimal
	ShutdownGrace        time.Duration
	PaperBalanceUSD      decimal.Decimal

	// Risk
	MaxDailyLossUSD        decimal.Decimal
	MaxDailyExposureUSD    decimal.Decimal
	MaxPositionSizeUSD     decimal.Decimal
	MaxConcurrentPositions int
	CircuitBreakerCooldown time.Duration
	WarningThreshold       decimal.Decimal
	CriticalThreshold      decimal.Decimal
	CautionSizeFactor      decimal.Decimal
	CautionReject          bool
	MaxConsecutiveFailures int
	RiskTickInterval       time.Duration
	BalanceRefreshInterval time.Duration

	// Settlement
	SettlementSweepInterval  time.Duration
	SettlementMaxAttempts    int
	SettlementInitialBackoff time.Duration
	SettlementMaxBackoff     time.Duration
	SettlementConcurrency    int
	SettlementStaleAfter     time.Duration

	// Storage
	StorageMode  string // "postgres" or "memory"
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		// Application defaults
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),

		// Polymarket API defaults
		PolymarketWSURL:      getEnvOrDefault("POLYMARKET_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/market"),
		PolymarketGammaURL:   getEnvOrDefault("POLYMARKET_GAMMA_API_URL", "https://gamma-api.polymarket.com"),
		PolymarketCLOBURL:    getEnvOrDefault("POLYMARKET_CLOB_API_URL", "https://clob.polymarket.com"),
		PolymarketAPIKey:     os.Getenv("POLYMARKET_API_KEY"),
		PolymarketSecret:     os.Getenv("POLYMARKET_SECRET"),
		PolymarketPassphrase: os.Getenv("POLYMARKET_PASSPHRASE"),
		PolymarketPrivateKey: os.Getenv("POLYMARKET_PRIVATE_KEY"),
		PolymarketAddress:    os.Getenv("POLYMARKET_ADDRESS"),
		SignatureType:        getIntOrDefault("POLYMARKET_SIGNATURE_TYPE", 0),
		PolygonRPCURL:        getEnvOrDefault("POLYGON_RPC_URL", "https://polygon-rpc.com"),
		CLOBRequestsPerSec:   getFloat64OrDefault("CLOB_REQUESTS_PER_SECOND", 10),

		// Markets
		MarketSlugs:        getListOrDefault("MARKET_SLUGS", nil),
		MarketPollInterval: getDurationOrDefault("MARKET_POLL_INTERVAL", time.Minute),

		// WebSocket defaults
		WSDialTimeout:           getDurationOrDefault("WS_DIAL_TIMEOUT", 10*time.Second),
		WSPongTimeout:           getDurationOrDefault("WS_PONG_TIMEOUT", 15*time.Second),
		WSPingInterval:          getDurationOrDefault("WS_PING_INTERVAL", 10*time.Second),
		WSReconnectInitialDelay: getDurationOrDefault("WS_RECONNECT_INITIAL_DELAY", 1*time.Second),
		WSReconnectMaxDelay:     getDurationOrDefault("WS_RECONNECT_MAX_DELAY", 30*time.Second),
		WSReconnectBackoffMult:  getFloat64OrDefault("WS_RECONNECT_BACKOFF_MULTIPLIER", 2.0),
		WSMessageBufferSize:     getIntOrDefault("WS_MESSAGE_BUFFER_SIZE", 1000),

		// Strategy defaults
		MinSpread:             getDecimalOrDefault("STRATEGY_MIN_SPREAD", "0.015"),
		MaxTradeSizeUSD:       getDecimalOrDefault("STRATEGY_MAX_TRADE_SIZE_USD", "50"),
		MaxPerWindowUSD:       getDecimalOrDefault("STRATEGY_MAX_PER_WINDOW_USD", "100"),
		MinTimeRemaining:      getDurationOrDefault("STRATEGY_MIN_TIME_REMAINING", 60*time.Second),
		BalanceSizingPct:      getDecimalOrDefault("STRATEGY_BALANCE_SIZING_PCT", "0.10"),
		GradualEntryEnabled:   getBoolOrDefault("STRATEGY_GRADUAL_ENTRY_ENABLED", false),
		GradualEntryTranches:  getIntOrDefault("STRATEGY_GRADUAL_ENTRY_TRANCHES", 3),
		GradualEntryMinSpread: getDecimalOrDefault("STRATEGY_GRADUAL_ENTRY_MIN_SPREAD", "0.03"),
		MinHedgeRatio:         getDecimalOrDefault("STRATEGY_MIN_HEDGE_RATIO", "0.8"),
		CriticalHedgeRatio:    getDecimalOrDefault("STRATEGY_CRITICAL_HEDGE_RATIO", "0.5"),
		SlippageBuffer:        getDecimalOrDefault("STRATEGY_SLIPPAGE_BUFFER", "0.02"),
		MaxBookAge:            getDurationOrDefault("STRATEGY_MAX_BOOK_AGE", 5*time.Second),

		// Execution defaults
		ExecutionMode:        getEnvOrDefault("EXECUTION_MODE", "paper"),
		LegTimeout:           getDurationOrDefault("EXECUTION_LEG_TIMEOUT", 5*time.Second),
		SubmitRetries:        getIntOrDefault("EXECUTION_SUBMIT_RETRIES", 3),
		RetryBackoff:         getDurationOrDefault("EXECUTION_RETRY_BACKOFF", 200*time.Millisecond),
		TimeInForce:          getEnvOrDefault("EXECUTION_TIME_IN_FORCE", "FAK"),
		MaxRebalanceAttempts: getIntOrDefault("EXECUTION_MAX_REBALANCE_ATTEMPTS", 3),
		MaxRebalanceCostUSD:  getDecimalOrDefault("EXECUTION_MAX_REBALANCE_COST_USD", "10"),
		ShutdownGrace:        getDurationOrDefault("EXECUTION_SHUTDOWN_GRACE", 15*time.Second),
		PaperBalanceUSD:      getDecimalOrDefault("EXECUTION_PAPER_BALANCE_USD", "1000"),

		// Risk defaults
		MaxDailyLossUSD:        getDecimalOrDefault("RISK_MAX_DAILY_LOSS_USD", "100"),
		MaxDailyExposureUSD:    getDecimalOrDefault("RISK_MAX_DAILY_EXPOSURE_USD", "1000"),
		MaxPositionSizeUSD:     getDecimalOrDefault("RISK_MAX_POSITION_SIZE_USD", "200"),
		MaxConcurrentPositions: getIntOrDefault("RISK_MAX_CONCURRENT_POSITIONS", 10),
		CircuitBreakerCooldown: getDurationOrDefault("RISK_COOLDOWN", 30*time.Minute),
		WarningThreshold:       getDecimalOrDefault("RISK_WARNING_THRESHOLD", "0.7"),
		CriticalThreshold:      getDecimalOrDefault("RISK_CRITICAL_THRESHOLD", "0.9"),
		CautionSizeFactor:      getDecimalOrDefault("RISK_CAUTION_SIZE_FACTOR", "0.5"),
		CautionReject:          getBoolOrDefault("RISK_CAUTION_REJECT", false),
		MaxConsecutiveFailures: getIntOrDefault("RISK_MAX_CONSECUTIVE_FAILURES", 5),
		RiskTickInterval:       getDurationOrDefault("RISK_TICK_INTERVAL", 30*time.Second),
		BalanceRefreshInterval: getDurationOrDefault("RISK_BALANCE_REFRESH_INTERVAL", 30*time.Second),

		// Settlement defaults
		SettlementSweepInterval:  getDurationOrDefault("SETTLEMENT_SWEEP_INTERVAL", time.Minute),
		SettlementMaxAttempts:    getIntOrDefault("SETTLEMENT_MAX_ATTEMPTS", 6),
		SettlementInitialBackoff: getDurationOrDefault("SETTLEMENT_INITIAL_BACKOFF", time.Minute),
		SettlementMaxBackoff:     getDurationOrDefault("SETTLEMENT_MAX_BACKOFF", time.Hour),
		SettlementConcurrency:    getIntOrDefault("SETTLEMENT_CONCURRENCY", 4),
		SettlementStaleAfter:     getDurationOrDefault("SETTLEMENT_STALE_AFTER", 72*time.Hour),

		// Storage defaults
		StorageMode:  getEnvOrDefault("STORAGE_MODE", "memory"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "arb"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "arb"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "dualleg_arb"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if c.PolymarketWSURL == "" {
		return fmt.Errorf("POLYMARKET_WS_URL cannot be empty")
	}

	if c.PolymarketGammaURL == "" {
		return fmt.Errorf("POLYMARKET_GAMMA_API_URL cannot be empty")
	}

	one := decimal.NewFromInt(1)
	if !c.MinSpread.IsPositive() || c.MinSpread.GreaterThanOrEqual(one) {
		return fmt.Errorf("STRATEGY_MIN_SPREAD must be between 0 and 1.0, got %s", c.MinSpread)
	}

	if !c.CriticalHedgeRatio.IsPositive() || c.CriticalHedgeRatio.GreaterThan(c.MinHedgeRatio) || c.MinHedgeRatio.GreaterThan(one) {
		return fmt.Errorf("hedge ratios must satisfy 0 < critical (%s) <= min (%s) <= 1", c.CriticalHedgeRatio, c.MinHedgeRatio)
	}

	if c.SlippageBuffer.IsNegative() {
		return fmt.Errorf("STRATEGY_SLIPPAGE_BUFFER cannot be negative, got %s", c.SlippageBuffer)
	}

	if !c.BalanceSizingPct.IsPositive() || c.BalanceSizingPct.GreaterThan(one) {
		return fmt.Errorf("STRATEGY_BALANCE_SIZING_PCT must be in (0, 1], got %s", c.BalanceSizingPct)
	}

	if c.GradualEntryEnabled && c.GradualEntryTranches < 1 {
		return fmt.Errorf("STRATEGY_GRADUAL_ENTRY_TRANCHES must be >= 1, got %d", c.GradualEntryTranches)
	}

	if c.WarningThreshold.GreaterThan(c.CriticalThreshold) {
		return fmt.Errorf("RISK_WARNING_THRESHOLD (%s) must not exceed RISK_CRITICAL_THRESHOLD (%s)",
			c.WarningThreshold, c.CriticalThreshold)
	}

	if !c.MaxDailyLossUSD.IsPositive() || !c.MaxDailyExposureUSD.IsPositive() {
		return fmt.Errorf("RISK_MAX_DAILY_LOSS_USD and RISK_MAX_DAILY_EXPOSURE_USD must be positive")
	}

	if c.ExecutionMode != "paper" && c.ExecutionMode != "live" && c.ExecutionMode != "dry-run" {
		return fmt.Errorf("EXECUTION_MODE must be 'paper', 'live' or 'dry-run', got %q", c.ExecutionMode)
	}

	if c.TimeInForce != "FOK" && c.TimeInForce != "FAK" {
		return fmt.Errorf("EXECUTION_TIME_IN_FORCE must be 'FOK' or 'FAK', got %q", c.TimeInForce)
	}

	if c.ExecutionMode == "live" && (c.PolymarketPrivateKey == "" || c.PolymarketAPIKey == "") {
		return fmt.Errorf("live mode requires POLYMARKET_PRIVATE_KEY and POLYMARKET_API_KEY")
	}

	if c.StorageMode != "memory" && c.StorageMode != "postgres" {
		return fmt.Errorf("STORAGE_MODE must be 'memory' or 'postgres', got %q", c.StorageMode)
	}

	if c.SettlementMaxAttempts < 1 || c.SettlementConcurrency < 1 {
		return fmt.Errorf("SETTLEMENT_MAX_ATTEMPTS and SETTLEMENT_CONCURRENCY must be >= 1")
	}

	return nil
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getDecimalOrDefault(key string, defaultValue string) decimal.Decimal {
	value := os.Getenv(key)
	if value != "" {
		if dec, err := decimal.NewFromString(value); err == nil {
			return dec
		}
	}

	return decimal.RequireFromString(defaultValue)
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}

	return out
}

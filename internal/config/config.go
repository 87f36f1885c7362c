package config

import (
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/engine"
	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/finance"
)

// Config holds the application configuration.
type Config struct {
	// Logging configuration
	LogLevel string

	// Application configuration
	Environment string

	// Protocol parameters
	MaxLeverage             int
	MaxPositionsPerOwner    int
	MaxMarginPerPosition    int64 // whole USDC
	MinMarginRatioBps       int64
	LiquidationThresholdBps int64
	LiquidationCooldownSec  int64
	MaxCommitmentWindowSec  int64
	LiquidatorRewardBps     int64
	ProtocolPenaltyBps      int64
	EurRateBps              int64
	UsdRateBps              int64
	MaxRewardPeriodDays     int64
	VaultAccount            string
	TreasuryAccount         string
}

// Load loads the configuration from environment variables.
func Load() *Config {
	defaults := engine.DefaultConfig()

	return &Config{
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Environment: getEnv("ENVIRONMENT", "development"),

		MaxLeverage:             getEnvAsInt("MAX_LEVERAGE", int(defaults.MaxLeverage)),
		MaxPositionsPerOwner:    getEnvAsInt("MAX_POSITIONS_PER_OWNER", defaults.MaxPositionsPerOwner),
		MaxMarginPerPosition:    getEnvAsInt64("MAX_MARGIN_PER_POSITION", 1_000_000),
		MinMarginRatioBps:       getEnvAsInt64("MIN_MARGIN_RATIO_BPS", defaults.MinMarginRatioBps),
		LiquidationThresholdBps: getEnvAsInt64("LIQUIDATION_THRESHOLD_BPS", defaults.LiquidationThresholdBps),
		LiquidationCooldownSec:  getEnvAsInt64("LIQUIDATION_COOLDOWN_SECONDS", int64(defaults.CooldownPeriod.Seconds())),
		MaxCommitmentWindowSec:  getEnvAsInt64("MAX_COMMITMENT_WINDOW_SECONDS", int64(defaults.MaxCommitmentWindow.Seconds())),
		LiquidatorRewardBps:     getEnvAsInt64("LIQUIDATOR_REWARD_BPS", defaults.LiquidatorRewardBps),
		ProtocolPenaltyBps:      getEnvAsInt64("PROTOCOL_PENALTY_BPS", defaults.ProtocolPenaltyBps),
		EurRateBps:              getEnvAsInt64("EUR_RATE_BPS", defaults.SourceRateBps),
		UsdRateBps:              getEnvAsInt64("USD_RATE_BPS", defaults.SinkRateBps),
		MaxRewardPeriodDays:     getEnvAsInt64("MAX_REWARD_PERIOD_DAYS", 365),
		VaultAccount:            getEnv("VAULT_ACCOUNT", defaults.VaultAccount),
		TreasuryAccount:         getEnv("TREASURY_ACCOUNT", defaults.TreasuryAccount),
	}
}

// EngineConfig converts the loaded values into the engine's parameter set.
func (c *Config) EngineConfig() *engine.Config {
	return &engine.Config{
		MaxLeverage:          int16(c.MaxLeverage),
		MaxPositionsPerOwner: c.MaxPositionsPerOwner,
		MaxMarginPerPosition: new(big.Int).Mul(big.NewInt(c.MaxMarginPerPosition), finance.CollateralScale),
		MinMarginRatioBps:    c.MinMarginRatioBps,

		LiquidationThresholdBps: c.LiquidationThresholdBps,
		CooldownPeriod:          time.Duration(c.LiquidationCooldownSec) * time.Second,
		MaxCommitmentWindow:     time.Duration(c.MaxCommitmentWindowSec) * time.Second,
		LiquidatorRewardBps:     c.LiquidatorRewardBps,
		ProtocolPenaltyBps:      c.ProtocolPenaltyBps,

		SourceRateBps:   c.EurRateBps,
		SinkRateBps:     c.UsdRateBps,
		MaxRewardPeriod: time.Duration(c.MaxRewardPeriodDays) * 24 * time.Hour,
		VaultAccount:    c.VaultAccount,
		TreasuryAccount: c.TreasuryAccount,
	}
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

// getEnvAsInt gets an environment variable as integer with a default value.
func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

// getEnvAsInt64 gets an environment variable as int64 with a default value.
func getEnvAsInt64(key string, defaultVal int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

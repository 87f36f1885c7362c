package engine

import (
	"math/big"
	"time"

	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/finance"
)

// Config collects every protocol parameter the engine enforces. All fields
// are governance-settable in the surrounding protocol; here they are fixed at
// construction.
type Config struct {
	MaxLeverage          int16
	MaxPositionsPerOwner int
	MaxMarginPerPosition *big.Int // collateral base units
	MinMarginRatioBps    int64

	LiquidationThresholdBps int64
	CooldownPeriod          time.Duration
	MaxCommitmentWindow     time.Duration
	LiquidatorRewardBps     int64
	ProtocolPenaltyBps      int64

	SourceRateBps   int64         // EUR reference rate
	SinkRateBps     int64         // USD reference rate
	MaxRewardPeriod time.Duration
	VaultAccount    string        // holds posted collateral
	TreasuryAccount string        // receives liquidation penalties
}

// DefaultConfig returns the protocol defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxLeverage:          10,
		MaxPositionsPerOwner: 50,
		MaxMarginPerPosition: new(big.Int).Mul(big.NewInt(1_000_000), finance.CollateralScale),
		MinMarginRatioBps:    1000,

		LiquidationThresholdBps: 500,
		CooldownPeriod:          5 * time.Minute,
		MaxCommitmentWindow:     time.Hour,
		LiquidatorRewardBps:     200,
		ProtocolPenaltyBps:      100,

		SourceRateBps:   350,
		SinkRateBps:     450,
		MaxRewardPeriod: 365 * 24 * time.Hour,
		VaultAccount:    "vault",
		TreasuryAccount: "treasury",
	}
}

package position

import (
	"math/big"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/finance"
)

// HedgePosition is one open leveraged EUR/USD exposure backing the protocol's
// collateral. Monetary fields are fixed-point base units: Margin, FilledVolume
// and RealizedPnL in 6-decimal collateral units, QeuroBacked and EntryPrice in
// 18-decimal units.
type HedgePosition struct {
	Owner string
	ID    uint64 // per-owner, monotonically assigned; 0 is the "not found" sentinel

	Margin       *big.Int // collateral currently posted
	FilledVolume *big.Int // collateral exchanged at open, the entry cost basis
	QeuroBacked  *big.Int // EUR notional exposure
	EntryPrice   *big.Int // EUR/USD at open, informational
	RealizedPnL  *big.Int // signed, accumulated from partial closes

	Leverage int16
	// LastRewardBlock records the block of the position's latest margin
	// mutation, surfaced through DisplayInfo. Accrual bookkeeping itself is
	// owner-level and lives in the reward tracker.
	LastRewardBlock uint64
	Status          Status

	OpenedAt  time.Time
	UpdatedAt time.Time

	mu sync.RWMutex
}

// Snapshot returns a detached copy safe to hand to readers. The copy shares
// no big.Int values with the live record.
func (p *HedgePosition) Snapshot() *HedgePosition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshotLocked()
}

func (p *HedgePosition) snapshotLocked() *HedgePosition {
	return &HedgePosition{
		Owner:           p.Owner,
		ID:              p.ID,
		Margin:          new(big.Int).Set(p.Margin),
		FilledVolume:    new(big.Int).Set(p.FilledVolume),
		QeuroBacked:     new(big.Int).Set(p.QeuroBacked),
		EntryPrice:      new(big.Int).Set(p.EntryPrice),
		RealizedPnL:     new(big.Int).Set(p.RealizedPnL),
		Leverage:        p.Leverage,
		LastRewardBlock: p.LastRewardBlock,
		Status:          p.Status,
		OpenedAt:        p.OpenedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

// MarginRatioBps returns the position's margin ratio at the given price.
func (p *HedgePosition) MarginRatioBps(currentPrice *big.Int) *big.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return finance.MarginRatioBps(p.Margin, p.FilledVolume, p.QeuroBacked, currentPrice, p.RealizedPnL)
}

// IsLiquidatable reports whether the position is below the threshold at the
// given price.
func (p *HedgePosition) IsLiquidatable(currentPrice *big.Int, thresholdBps int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return finance.IsLiquidatable(p.Margin, p.FilledVolume, currentPrice, thresholdBps, p.QeuroBacked, p.RealizedPnL)
}

// DisplayInfo renders the position with human-readable decimal amounts.
func (p *HedgePosition) DisplayInfo() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return map[string]interface{}{
		"owner":             p.Owner,
		"position_id":       p.ID,
		"margin":            decimal.NewFromBigInt(p.Margin, -finance.CollateralDecimals).String(),
		"filled_volume":     decimal.NewFromBigInt(p.FilledVolume, -finance.CollateralDecimals).String(),
		"qeuro_backed":      decimal.NewFromBigInt(p.QeuroBacked, -finance.NotionalDecimals).String(),
		"entry_price":       decimal.NewFromBigInt(p.EntryPrice, -finance.PriceDecimals).String(),
		"realized_pnl":      decimal.NewFromBigInt(p.RealizedPnL, -finance.CollateralDecimals).String(),
		"leverage":          p.Leverage,
		"last_reward_block": p.LastRewardBlock,
		"status":            p.Status.String(),
		"opened_at":         p.OpenedAt,
		"updated_at":        p.UpdatedAt,
	}
}

package finance

import "math/big"

// Pure fixed-point financial math for hedge positions. No state, no side
// effects; every function returns fresh big.Int values and never mutates its
// inputs, so concurrent callers need no synchronization.
//
// All division truncates toward zero (big.Int Quo), matching on-chain integer
// semantics.

// QeuroValue converts an 18-decimal EUR notional at an 18-decimal EUR/USD
// price into 6-decimal collateral units.
func QeuroValue(qeuroBacked, price *big.Int) *big.Int {
	v := new(big.Int).Mul(qeuroBacked, price)
	return v.Quo(v, crossScale)
}

// CollateralToQeuro converts a collateral value into the 18-decimal EUR
// notional it buys at the given price. Inverse of QeuroValue, zero on a zero
// price.
func CollateralToQeuro(value, price *big.Int) *big.Int {
	if price.Sign() == 0 {
		return new(big.Int)
	}
	q := new(big.Int).Mul(value, crossScale)
	return q.Quo(q, price)
}

// UnrealizedPnL returns the hedger's unrealized profit or loss in collateral
// units.
//
// formula: pnl = filledVolume - qeuroBacked * currentPrice / crossScale
//
// Positive when the notional value has fallen below the entry cost basis,
// negative when it has risen above it. A position with no cost basis or no
// usable price has no PnL; a position whose notional was fully unwound has
// lost its entire cost basis.
func UnrealizedPnL(filledVolume, qeuroBacked, currentPrice *big.Int) *big.Int {
	if filledVolume.Sign() == 0 || currentPrice.Sign() == 0 {
		return new(big.Int)
	}
	if qeuroBacked.Sign() == 0 {
		return new(big.Int).Neg(filledVolume)
	}
	return new(big.Int).Sub(filledVolume, QeuroValue(qeuroBacked, currentPrice))
}

// EffectiveMargin is the true solvency measure of a position:
// posted margin + unrealized PnL + realized PnL. The result is signed.
func EffectiveMargin(margin, filledVolume, qeuroBacked, currentPrice, realizedPnL *big.Int) *big.Int {
	eff := new(big.Int).Add(margin, UnrealizedPnL(filledVolume, qeuroBacked, currentPrice))
	return eff.Add(eff, realizedPnL)
}

// MarginRatioBps returns the effective margin as basis points of the current
// notional value. Returns 0 when the position has no priceable exposure or
// its effective margin is non-positive.
func MarginRatioBps(margin, filledVolume, qeuroBacked, currentPrice, realizedPnL *big.Int) *big.Int {
	if qeuroBacked.Sign() == 0 || currentPrice.Sign() == 0 {
		return new(big.Int)
	}
	eff := EffectiveMargin(margin, filledVolume, qeuroBacked, currentPrice, realizedPnL)
	if eff.Sign() <= 0 {
		return new(big.Int)
	}
	qeuroValue := QeuroValue(qeuroBacked, currentPrice)
	if qeuroValue.Sign() == 0 {
		return new(big.Int)
	}
	ratio := eff.Mul(eff, bpsDivisor)
	return ratio.Quo(ratio, qeuroValue)
}

// IsLiquidatable reports whether a position's margin ratio has fallen below
// the liquidation threshold. A position with zero notional or an unusable
// price is never liquidatable; a position whose effective margin is exhausted
// always is.
func IsLiquidatable(margin, filledVolume, currentPrice *big.Int, thresholdBps int64, qeuroBacked, realizedPnL *big.Int) bool {
	if qeuroBacked.Sign() == 0 || currentPrice.Sign() == 0 {
		return false
	}
	eff := EffectiveMargin(margin, filledVolume, qeuroBacked, currentPrice, realizedPnL)
	if eff.Sign() <= 0 {
		return true
	}
	qeuroValue := QeuroValue(qeuroBacked, currentPrice)
	if qeuroValue.Sign() == 0 {
		// dust notional, ratio is effectively infinite
		return false
	}
	ratio := eff.Mul(eff, bpsDivisor)
	ratio.Quo(ratio, qeuroValue)
	return ratio.Cmp(big.NewInt(thresholdBps)) < 0
}

// CollateralCapacity returns the maximum additional notional value, in
// collateral units, the position could take on while keeping its margin ratio
// at or above minMarginRatioBps. Clamped at zero, never underflows.
//
// formula: capacity = effectiveMargin * 10000 / minMarginRatioBps - qeuroValue
func CollateralCapacity(margin, filledVolume, currentPrice *big.Int, minMarginRatioBps int64, realizedPnL, qeuroBacked *big.Int) *big.Int {
	if currentPrice.Sign() == 0 || minMarginRatioBps == 0 {
		return new(big.Int)
	}
	eff := EffectiveMargin(margin, filledVolume, qeuroBacked, currentPrice, realizedPnL)
	if eff.Sign() <= 0 {
		return new(big.Int)
	}
	maxValue := eff.Mul(eff, bpsDivisor)
	maxValue.Quo(maxValue, big.NewInt(minMarginRatioBps))
	capacity := maxValue.Sub(maxValue, QeuroValue(qeuroBacked, currentPrice))
	if capacity.Sign() < 0 {
		return new(big.Int)
	}
	return capacity
}

// BlocksToSeconds converts a block delta to elapsed seconds using the fixed
// 12 second block assumption.
func BlocksToSeconds(blocks uint64) int64 {
	return int64(blocks) * SecondsPerBlock
}

// RewardAccrual advances the interest-differential reward checkpoint.
//
// Nothing accrues when there is no exposure or no prior checkpoint, but the
// checkpoint block still advances so a first call seeds the baseline. Accrual
// is proportional to the positive spread between the sink (USD) and source
// (EUR) rates over elapsed time, capped at maxPeriodSeconds:
//
//	accrued = exposure * (sinkRateBps - sourceRateBps) * elapsed / (10000 * secondsPerYear)
func RewardAccrual(totalExposure *big.Int, sourceRateBps, sinkRateBps int64, lastRewardBlock, currentBlock uint64, maxPeriodSeconds int64, currentPending *big.Int) (*big.Int, uint64) {
	if totalExposure.Sign() == 0 || lastRewardBlock == 0 {
		return new(big.Int).Set(currentPending), currentBlock
	}

	diffBps := sinkRateBps - sourceRateBps
	if diffBps <= 0 {
		return new(big.Int).Set(currentPending), currentBlock
	}

	var elapsed int64
	if currentBlock > lastRewardBlock {
		elapsed = BlocksToSeconds(currentBlock - lastRewardBlock)
	}
	if elapsed > maxPeriodSeconds {
		elapsed = maxPeriodSeconds
	}
	if elapsed <= 0 {
		return new(big.Int).Set(currentPending), currentBlock
	}

	accrued := new(big.Int).Mul(totalExposure, big.NewInt(diffBps))
	accrued.Mul(accrued, big.NewInt(elapsed))
	accrued.Quo(accrued, new(big.Int).Mul(bpsDivisor, big.NewInt(SecondsPerYear)))

	return accrued.Add(accrued, currentPending), currentBlock
}

package finance

import "math/big"

// Decimal conventions of the protocol. Collateral (USDC) carries 6 decimals,
// the EUR notional and the EUR/USD price both carry 18 decimals.
const (
	CollateralDecimals = 6
	NotionalDecimals   = 18
	PriceDecimals      = 18

	// BpsDivisor converts basis points to a ratio (10000 bps = 100%).
	BpsDivisor = 10_000

	// SecondsPerBlock converts block deltas to elapsed seconds.
	SecondsPerBlock = 12

	SecondsPerYear = 365 * 24 * 60 * 60
)

var (
	CollateralScale = exp10(CollateralDecimals)
	NotionalScale   = exp10(NotionalDecimals)
	PriceScale      = exp10(PriceDecimals)

	// crossScale reconciles notional*price (36 decimals) down to collateral
	// units: 18 + 18 - 6 = 30.
	crossScale = exp10(NotionalDecimals + PriceDecimals - CollateralDecimals)

	bpsDivisor = big.NewInt(BpsDivisor)
)

func exp10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

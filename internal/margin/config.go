package margin

import "math/big"

// Config bounds margin adjustments.
type Config struct {
	MaxMarginPerPosition *big.Int // collateral base units
	MinMarginRatioBps    int64    // floor for the post-removal margin ratio
}

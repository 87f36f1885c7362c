package engine

import "math/big"

// Role gates the engine's mutating entry points.
type Role int

const (
	RoleHedger Role = iota
	RoleLiquidator
	RoleGovernance
	RoleEmergency
)

func (r Role) String() string {
	switch r {
	case RoleHedger:
		return "hedger"
	case RoleLiquidator:
		return "liquidator"
	case RoleGovernance:
		return "governance"
	case RoleEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// PriceSource supplies the resolved EUR/USD exchange rate in 18-decimal fixed
// point. valid=false means no margin or liquidation decision may be made.
type PriceSource interface {
	ExchangeRate() (price *big.Int, valid bool)
}

// AccessController answers capability checks for the protocol roles.
type AccessController interface {
	HasCapability(identity string, role Role) bool
}

// CollateralMover abstracts the collateral-asset transfer mechanics. Amounts
// are 6-decimal collateral base units.
type CollateralMover interface {
	MoveCollateral(from, to string, amount *big.Int) error
}

package engine

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/common"
	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/finance"
	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/liquidation"
	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/logger"
	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/margin"
	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/position"
	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/reward"
)

var (
	ErrNotAuthorized      = errors.New("not authorized")
	ErrInvalidOraclePrice = errors.New("invalid oracle price")
	ErrTransferFailed     = errors.New("transfer failed")
	ErrInvalidLeverage    = errors.New("invalid leverage")
)

// ErrInvalidAmount is shared with the margin layer so callers match one
// sentinel for all amount validation.
var ErrInvalidAmount = margin.ErrInvalidAmount

// Deps are the external collaborators the engine consumes. Price and access
// control are resolved-value, synchronous contracts; the engine never blocks
// on I/O internally.
type Deps struct {
	Price      PriceSource
	Access     AccessController
	Collateral CollateralMover
	Yield      reward.YieldSink
	Clock      common.Clock
	Log        *logger.Logger
}

// HedgeEngine is the risk-management core: it owns the position store and
// exposes the margin and liquidation operations to the access-control layer.
type HedgeEngine struct {
	store        *position.Store
	margins      *margin.Controller
	liquidations *liquidation.Coordinator
	rewards      *reward.Tracker

	price      PriceSource
	access     AccessController
	collateral CollateralMover
	clock      common.Clock
	log        *logger.Logger
	config     *Config
}

// New wires the full engine from its config and collaborators. Clock and Log
// fall back to the system clock and default logger.
func New(config *Config, deps Deps) *HedgeEngine {
	if deps.Clock == nil {
		deps.Clock = common.SystemClock{}
	}
	if deps.Log == nil {
		deps.Log = logger.Default()
	}

	store := position.NewStore(config.MaxPositionsPerOwner)
	rewards := reward.NewTracker(store, deps.Clock, deps.Yield, &reward.Config{
		SourceRateBps:    config.SourceRateBps,
		SinkRateBps:      config.SinkRateBps,
		MaxPeriodSeconds: int64(config.MaxRewardPeriod.Seconds()),
	})
	margins := margin.NewController(store, rewards, deps.Clock, &margin.Config{
		MaxMarginPerPosition: config.MaxMarginPerPosition,
		MinMarginRatioBps:    config.MinMarginRatioBps,
	})
	liquidations := liquidation.NewCoordinator(store, rewards, deps.Clock, &liquidation.Config{
		CooldownPeriod:          config.CooldownPeriod,
		MaxCommitmentWindow:     config.MaxCommitmentWindow,
		LiquidationThresholdBps: config.LiquidationThresholdBps,
		LiquidatorRewardBps:     config.LiquidatorRewardBps,
		ProtocolPenaltyBps:      config.ProtocolPenaltyBps,
	})

	return &HedgeEngine{
		store:        store,
		margins:      margins,
		liquidations: liquidations,
		rewards:      rewards,
		price:        deps.Price,
		access:       deps.Access,
		collateral:   deps.Collateral,
		clock:        deps.Clock,
		log:          deps.Log,
		config:       config,
	}
}

// OpenPosition pulls marginAmount of collateral from the hedger and opens a
// leveraged EUR/USD exposure at the current oracle price. Returns the new
// position id.
func (e *HedgeEngine) OpenPosition(hedger string, marginAmount *big.Int, leverage int16) (uint64, error) {
	if !e.access.HasCapability(hedger, RoleHedger) {
		return 0, fmt.Errorf("%w: %s lacks the hedger capability", ErrNotAuthorized, hedger)
	}
	if marginAmount == nil || marginAmount.Sign() <= 0 {
		return 0, fmt.Errorf("%w: margin must be positive", ErrInvalidAmount)
	}
	if marginAmount.Cmp(e.config.MaxMarginPerPosition) > 0 {
		return 0, fmt.Errorf("%w: margin %s exceeds cap %s", margin.ErrMaxMarginExceeded, marginAmount, e.config.MaxMarginPerPosition)
	}
	if leverage < 1 || leverage > e.config.MaxLeverage {
		return 0, fmt.Errorf("%w: leverage %d outside [1, %d]", ErrInvalidLeverage, leverage, e.config.MaxLeverage)
	}

	entryPrice, err := e.currentPrice()
	if err != nil {
		return 0, err
	}

	// cost basis is the notional's collateral value at entry, so the
	// position opens with zero unrealized PnL
	filledVolume := new(big.Int).Mul(marginAmount, big.NewInt(int64(leverage)))
	qeuroBacked := finance.CollateralToQeuro(filledVolume, entryPrice)

	id, err := e.store.Create(hedger, marginAmount, qeuroBacked, entryPrice, filledVolume, leverage)
	if err != nil {
		return 0, err
	}

	if err := e.collateral.MoveCollateral(hedger, e.config.VaultAccount, marginAmount); err != nil {
		// roll the untouched position back before reporting
		_ = e.store.Close(hedger, id)
		return 0, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	block := e.clock.BlockNumber()
	_ = e.store.Update(hedger, id, func(p *position.HedgePosition) error {
		p.LastRewardBlock = block
		return nil
	})
	e.rewards.Update(hedger)

	e.log.Info("position opened",
		"owner", hedger,
		"position_id", id,
		"margin", marginAmount.String(),
		"qeuro_backed", qeuroBacked.String(),
		"entry_price", entryPrice.String(),
		"leverage", leverage,
	)
	return id, nil
}

// AddMargin posts additional collateral to an open position and returns the
// new margin ratio in bps.
func (e *HedgeEngine) AddMargin(hedger string, id uint64, amount *big.Int) (*big.Int, error) {
	if !e.access.HasCapability(hedger, RoleHedger) {
		return nil, fmt.Errorf("%w: %s lacks the hedger capability", ErrNotAuthorized, hedger)
	}
	currentPrice, err := e.currentPrice()
	if err != nil {
		return nil, err
	}

	ratio, err := e.margins.AddMargin(hedger, id, amount, currentPrice)
	if err != nil {
		return nil, err
	}
	if err := e.collateral.MoveCollateral(hedger, e.config.VaultAccount, amount); err != nil {
		// restore the prior margin directly, bypassing the controller's
		// ratio and cap checks: an underwater position must not keep
		// margin that was never deposited
		if rollback := e.store.Update(hedger, id, func(p *position.HedgePosition) error {
			p.Margin.Sub(p.Margin, amount)
			return nil
		}); rollback != nil {
			e.log.Error("margin rollback failed", "owner", hedger, "position_id", id, "error", rollback)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	e.log.Info("margin added", "owner", hedger, "position_id", id, "amount", amount.String(), "ratio_bps", ratio.String())
	return ratio, nil
}

// RemoveMargin withdraws collateral from an open position, enforcing the
// minimum margin ratio at the current price. Returns the new ratio in bps.
func (e *HedgeEngine) RemoveMargin(hedger string, id uint64, amount *big.Int) (*big.Int, error) {
	if !e.access.HasCapability(hedger, RoleHedger) {
		return nil, fmt.Errorf("%w: %s lacks the hedger capability", ErrNotAuthorized, hedger)
	}
	currentPrice, err := e.currentPrice()
	if err != nil {
		return nil, err
	}

	ratio, err := e.margins.RemoveMargin(hedger, id, amount, currentPrice)
	if err != nil {
		return nil, err
	}
	if err := e.collateral.MoveCollateral(e.config.VaultAccount, hedger, amount); err != nil {
		if rollback := e.store.Update(hedger, id, func(p *position.HedgePosition) error {
			p.Margin.Add(p.Margin, amount)
			return nil
		}); rollback != nil {
			e.log.Error("margin rollback failed", "owner", hedger, "position_id", id, "error", rollback)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	e.log.Info("margin removed", "owner", hedger, "position_id", id, "amount", amount.String(), "ratio_bps", ratio.String())
	return ratio, nil
}

// ClosePosition settles an open position at the current price and pays out
// the remaining margin plus PnL, clamped at zero. Returns the payout.
func (e *HedgeEngine) ClosePosition(hedger string, id uint64) (*big.Int, error) {
	if !e.access.HasCapability(hedger, RoleHedger) {
		return nil, fmt.Errorf("%w: %s lacks the hedger capability", ErrNotAuthorized, hedger)
	}
	currentPrice, err := e.currentPrice()
	if err != nil {
		return nil, err
	}

	payout := new(big.Int)
	err = e.store.CloseWith(hedger, id, func(p *position.HedgePosition) error {
		pnl := finance.UnrealizedPnL(p.FilledVolume, p.QeuroBacked, currentPrice)
		settled := new(big.Int).Add(p.RealizedPnL, pnl)

		payout.Add(p.Margin, settled)
		if payout.Sign() < 0 {
			payout.SetInt64(0)
		}

		// pay out before committing any mutation: a transfer failure
		// aborts the close with the position still open and untouched
		if payout.Sign() > 0 {
			if err := e.collateral.MoveCollateral(e.config.VaultAccount, hedger, payout); err != nil {
				return fmt.Errorf("%w: %v", ErrTransferFailed, err)
			}
		}

		p.RealizedPnL.Set(settled)
		p.Margin.SetInt64(0)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.rewards.Update(hedger)

	e.log.Info("position closed", "owner", hedger, "position_id", id, "payout", payout.String())
	return payout, nil
}

// CommitLiquidation registers a liquidation intent. Eligibility is not
// checked here; it is re-verified at execution against the price then.
func (e *HedgeEngine) CommitLiquidation(liquidator, owner string, id uint64, salt []byte) (*liquidation.Commitment, error) {
	if !e.access.HasCapability(liquidator, RoleLiquidator) {
		return nil, fmt.Errorf("%w: %s lacks the liquidator capability", ErrNotAuthorized, liquidator)
	}

	commitment, err := e.liquidations.Commit(liquidator, owner, id, salt)
	if err != nil {
		return nil, err
	}

	e.log.Info("liquidation committed",
		"commitment_id", commitment.ID,
		"liquidator", liquidator,
		"owner", owner,
		"position_id", id,
	)
	return commitment, nil
}

// ExecuteLiquidation settles a committed liquidation at the current price and
// routes the seized margin: reward to the liquidator, penalty to the
// treasury, remainder back to the hedger.
func (e *HedgeEngine) ExecuteLiquidation(liquidator, owner string, id uint64) (*liquidation.Result, error) {
	if !e.access.HasCapability(liquidator, RoleLiquidator) {
		return nil, fmt.Errorf("%w: %s lacks the liquidator capability", ErrNotAuthorized, liquidator)
	}
	currentPrice, err := e.currentPrice()
	if err != nil {
		return nil, err
	}

	// the payout legs run inside the coordinator's settlement step, before
	// the position is closed; a failed leg unwinds the completed ones and
	// aborts the execution with the commitment still live
	result, err := e.liquidations.Execute(liquidator, owner, id, currentPrice, func(result *liquidation.Result) error {
		legs := []struct {
			to     string
			amount *big.Int
		}{
			{liquidator, result.LiquidatorReward},
			{e.config.TreasuryAccount, result.ProtocolPenalty},
			{owner, result.HedgerRefund},
		}
		for i, leg := range legs {
			if leg.amount.Sign() == 0 {
				continue
			}
			if err := e.collateral.MoveCollateral(e.config.VaultAccount, leg.to, leg.amount); err != nil {
				for _, paid := range legs[:i] {
					if paid.amount.Sign() == 0 {
						continue
					}
					if rollback := e.collateral.MoveCollateral(paid.to, e.config.VaultAccount, paid.amount); rollback != nil {
						e.log.Error("liquidation payout rollback failed", "account", paid.to, "error", rollback)
					}
				}
				return fmt.Errorf("%w: paying %s: %v", ErrTransferFailed, leg.to, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("liquidation executed",
		"commitment_id", result.CommitmentID,
		"liquidator", liquidator,
		"owner", owner,
		"position_id", id,
		"seized", result.SeizedMargin.String(),
		"reward", result.LiquidatorReward.String(),
		"penalty", result.ProtocolPenalty.String(),
	)
	return result, nil
}

// GetPosition returns a snapshot of an active position.
func (e *HedgeEngine) GetPosition(owner string, id uint64) (*position.HedgePosition, error) {
	return e.store.Get(owner, id)
}

// IsLiquidatable reports whether a position is below the liquidation
// threshold at the current oracle price.
func (e *HedgeEngine) IsLiquidatable(owner string, id uint64) (bool, error) {
	currentPrice, err := e.currentPrice()
	if err != nil {
		return false, err
	}
	pos, err := e.store.Get(owner, id)
	if err != nil {
		return false, err
	}
	return pos.IsLiquidatable(currentPrice, e.config.LiquidationThresholdBps), nil
}

// GetMarginRatio returns a position's margin ratio in bps at the current
// oracle price.
func (e *HedgeEngine) GetMarginRatio(owner string, id uint64) (*big.Int, error) {
	currentPrice, err := e.currentPrice()
	if err != nil {
		return nil, err
	}
	pos, err := e.store.Get(owner, id)
	if err != nil {
		return nil, err
	}
	return pos.MarginRatioBps(currentPrice), nil
}

// CollateralCapacity returns the additional notional value, in collateral
// units, a position can take on while staying at the minimum margin ratio.
func (e *HedgeEngine) CollateralCapacity(owner string, id uint64) (*big.Int, error) {
	currentPrice, err := e.currentPrice()
	if err != nil {
		return nil, err
	}
	pos, err := e.store.Get(owner, id)
	if err != nil {
		return nil, err
	}
	return finance.CollateralCapacity(pos.Margin, pos.FilledVolume, currentPrice, e.config.MinMarginRatioBps, pos.RealizedPnL, pos.QeuroBacked), nil
}

// PendingRewards returns an owner's accrued interest-differential rewards.
func (e *HedgeEngine) PendingRewards(owner string) *big.Int {
	return e.rewards.Pending(owner)
}

func (e *HedgeEngine) currentPrice() (*big.Int, error) {
	price, valid := e.price.ExchangeRate()
	if !valid || price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: oracle reported an unusable EUR/USD rate", ErrInvalidOraclePrice)
	}
	return price, nil
}

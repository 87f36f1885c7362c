package margin

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/common"
	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/finance"
	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/position"
	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/reward"
)

var (
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrMaxMarginExceeded       = errors.New("max margin exceeded")
	ErrInsufficientMargin      = errors.New("insufficient margin")
	ErrInsufficientMarginRatio = errors.New("insufficient margin ratio")
)

// Controller validates and applies margin adjustments against the position
// store. Every successful adjustment checkpoints the owner's reward accrual,
// so interest-differential rewards are settled at each state transition.
type Controller struct {
	store   *position.Store
	rewards *reward.Tracker
	clock   common.Clock
	config  *Config
}

// NewController wires the controller to its store and reward tracker.
func NewController(store *position.Store, rewards *reward.Tracker, clock common.Clock, config *Config) *Controller {
	return &Controller{
		store:   store,
		rewards: rewards,
		clock:   clock,
		config:  config,
	}
}

// AddMargin posts additional collateral to a position and returns the
// resulting margin ratio in bps at the given price. Fails with
// ErrMaxMarginExceeded when the position would exceed the per-position cap.
func (c *Controller) AddMargin(owner string, id uint64, amount, currentPrice *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: margin amount must be positive", ErrInvalidAmount)
	}

	newRatio := new(big.Int)
	err := c.store.Update(owner, id, func(p *position.HedgePosition) error {
		newMargin := new(big.Int).Add(p.Margin, amount)
		if newMargin.Cmp(c.config.MaxMarginPerPosition) > 0 {
			return fmt.Errorf("%w: %s exceeds cap %s", ErrMaxMarginExceeded, newMargin, c.config.MaxMarginPerPosition)
		}

		newRatio.Set(finance.MarginRatioBps(newMargin, p.FilledVolume, p.QeuroBacked, currentPrice, p.RealizedPnL))
		p.Margin.Set(newMargin)
		p.LastRewardBlock = c.clock.BlockNumber()
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.rewards.Update(owner)
	return newRatio, nil
}

// RemoveMargin withdraws collateral from a position. Fails with
// ErrInsufficientMargin when more than the posted margin is requested and
// with ErrInsufficientMarginRatio when the remaining margin would put the
// position below the protocol minimum at the given price.
func (c *Controller) RemoveMargin(owner string, id uint64, amount, currentPrice *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: margin amount must be positive", ErrInvalidAmount)
	}

	newRatio := new(big.Int)
	err := c.store.Update(owner, id, func(p *position.HedgePosition) error {
		if amount.Cmp(p.Margin) > 0 {
			return fmt.Errorf("%w: requested %s, posted %s", ErrInsufficientMargin, amount, p.Margin)
		}

		newMargin := new(big.Int).Sub(p.Margin, amount)
		ratio := finance.MarginRatioBps(newMargin, p.FilledVolume, p.QeuroBacked, currentPrice, p.RealizedPnL)
		if ratio.Cmp(big.NewInt(c.config.MinMarginRatioBps)) < 0 {
			return fmt.Errorf("%w: ratio %s bps below minimum %d bps", ErrInsufficientMarginRatio, ratio, c.config.MinMarginRatioBps)
		}

		newRatio.Set(ratio)
		p.Margin.Set(newMargin)
		p.LastRewardBlock = c.clock.BlockNumber()
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.rewards.Update(owner)
	return newRatio, nil
}

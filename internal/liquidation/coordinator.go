package liquidation

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/common"
	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/finance"
	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/position"
	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/reward"
)

var (
	ErrCommitmentAlreadyExists   = errors.New("commitment already exists")
	ErrNoCommitment              = errors.New("no commitment")
	ErrNotCommitmentOwner        = errors.New("commitment belongs to another liquidator")
	ErrLiquidationCooldownActive = errors.New("liquidation cooldown active")
	ErrCommitmentExpired         = errors.New("commitment expired")
	ErrPositionNotLiquidatable   = errors.New("position not liquidatable")
)

// Config holds the commit-reveal timing windows and the payout split applied
// to seized margin. RewardBps + PenaltyBps must stay below 10000; the
// remainder is refunded to the hedger.
type Config struct {
	CooldownPeriod          time.Duration
	MaxCommitmentWindow     time.Duration
	LiquidationThresholdBps int64
	LiquidatorRewardBps     int64
	ProtocolPenaltyBps      int64
}

// Result is the outcome of an executed liquidation, all amounts in collateral
// base units.
type Result struct {
	CommitmentID     string
	SeizedMargin     *big.Int
	LiquidatorReward *big.Int
	ProtocolPenalty  *big.Int
	HedgerRefund     *big.Int
}

// Coordinator runs the commit-reveal liquidation state machine:
//
//	NoCommitment -> Committed -> {Executed | Expired -> NoCommitment}
//
// The exclusive committed window blocks competing liquidators from stealing
// an in-flight liquidation, while the cooldown blocks a commit-then-execute
// in a single block. Eligibility is only checked at execution time, against
// the price supplied then, so stale commitments on recovered positions fail.
type Coordinator struct {
	store   *position.Store
	rewards *reward.Tracker
	clock   common.Clock
	config  *Config

	commitments map[positionKey]*Commitment
	executing   map[positionKey]struct{}
	mu          sync.Mutex
}

type positionKey struct {
	owner string
	id    uint64
}

// NewCoordinator wires the coordinator to its store, reward tracker and clock.
func NewCoordinator(store *position.Store, rewards *reward.Tracker, clock common.Clock, config *Config) *Coordinator {
	return &Coordinator{
		store:       store,
		rewards:     rewards,
		clock:       clock,
		config:      config,
		commitments: make(map[positionKey]*Commitment),
		executing:   make(map[positionKey]struct{}),
	}
}

// Commit registers a liquidation intent on an active position. The slot must
// be free: an unexpired commitment by any liquidator rejects the call with
// ErrCommitmentAlreadyExists. No eligibility check happens here.
func (c *Coordinator) Commit(liquidator, owner string, id uint64, salt []byte) (*Commitment, error) {
	if _, err := c.store.Get(owner, id); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	key := positionKey{owner: owner, id: id}

	if existing, exists := c.commitments[key]; exists && existing.Status == StatusCommitted {
		if !c.isExpired(existing, now) {
			return nil, fmt.Errorf("%w: position %d of %s committed by %s", ErrCommitmentAlreadyExists, id, owner, existing.Liquidator)
		}
		existing.Status = StatusExpired
	}

	commitment := &Commitment{
		ID:          common.GenerateCommitmentID(),
		Owner:       owner,
		PositionID:  id,
		Liquidator:  liquidator,
		Salt:        append([]byte(nil), salt...),
		CommittedAt: now,
		Status:      StatusCommitted,
	}
	c.commitments[key] = commitment

	return commitment.clone(), nil
}

// Execute settles a committed liquidation. The caller must be the committed
// liquidator, the cooldown must have elapsed, the commitment must not have
// expired, and the position must still be liquidatable at currentPrice. On
// a terminal rejection the slot resets so another liquidator may try.
//
// A non-nil settle runs with the computed payout split before the close
// commits: a settle error aborts the execution with the position still open
// and the commitment intact, so the liquidator may retry within the window.
func (c *Coordinator) Execute(liquidator, owner string, id uint64, currentPrice *big.Int, settle func(*Result) error) (*Result, error) {
	key := positionKey{owner: owner, id: id}
	commitment, err := c.takeExecutable(liquidator, key)
	if err != nil {
		return nil, err
	}

	result := &Result{CommitmentID: commitment.ID}
	var settleErr error
	err = c.store.CloseWith(owner, id, func(p *position.HedgePosition) error {
		if !finance.IsLiquidatable(p.Margin, p.FilledVolume, currentPrice, c.config.LiquidationThresholdBps, p.QeuroBacked, p.RealizedPnL) {
			return fmt.Errorf("%w: position %d of %s at price %s", ErrPositionNotLiquidatable, id, owner, currentPrice)
		}

		result.SeizedMargin = new(big.Int).Set(p.Margin)
		result.LiquidatorReward = bpsShare(result.SeizedMargin, c.config.LiquidatorRewardBps)
		result.ProtocolPenalty = bpsShare(result.SeizedMargin, c.config.ProtocolPenaltyBps)
		result.HedgerRefund = new(big.Int).Sub(result.SeizedMargin, result.LiquidatorReward)
		result.HedgerRefund.Sub(result.HedgerRefund, result.ProtocolPenalty)
		if result.HedgerRefund.Sign() < 0 {
			result.HedgerRefund.SetInt64(0)
		}

		if settle != nil {
			if err := settle(result); err != nil {
				settleErr = err
				return err
			}
		}

		p.Margin.SetInt64(0)
		return nil
	})

	c.mu.Lock()
	delete(c.executing, key)
	if err != nil {
		// a recovered or vanished position voids the commitment entirely;
		// a failed settlement leaves it live for a retry
		if settleErr == nil {
			delete(c.commitments, key)
		}
		c.mu.Unlock()
		return nil, err
	}
	commitment.Status = StatusExecuted
	c.mu.Unlock()

	c.rewards.Update(owner)
	return result, nil
}

// Commitment returns a copy of the current commitment for a position, or nil
// when the slot is in the NoCommitment state.
func (c *Coordinator) Commitment(owner string, id uint64) *Commitment {
	c.mu.Lock()
	defer c.mu.Unlock()

	if commitment, exists := c.commitments[positionKey{owner: owner, id: id}]; exists {
		return commitment.clone()
	}
	return nil
}

// takeExecutable validates caller and timing under the coordinator lock and
// returns the live commitment, marking the slot in-flight so a concurrent
// duplicate Execute is turned away instead of racing the close.
func (c *Coordinator) takeExecutable(liquidator string, key positionKey) (*Commitment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.executing[key]; busy {
		return nil, fmt.Errorf("%w: position %d of %s", ErrNoCommitment, key.id, key.owner)
	}
	commitment, exists := c.commitments[key]
	if !exists || commitment.Status != StatusCommitted {
		return nil, fmt.Errorf("%w: position %d of %s", ErrNoCommitment, key.id, key.owner)
	}
	if commitment.Liquidator != liquidator {
		return nil, fmt.Errorf("%w: committed by %s", ErrNotCommitmentOwner, commitment.Liquidator)
	}

	now := c.clock.Now()
	if c.isExpired(commitment, now) {
		commitment.Status = StatusExpired
		delete(c.commitments, key)
		return nil, fmt.Errorf("%w: committed at %s, window %s", ErrCommitmentExpired, commitment.CommittedAt.Format(time.RFC3339), c.config.MaxCommitmentWindow)
	}
	if now.Before(commitment.CommittedAt.Add(c.config.CooldownPeriod)) {
		return nil, fmt.Errorf("%w: executable at %s", ErrLiquidationCooldownActive, commitment.CommittedAt.Add(c.config.CooldownPeriod).Format(time.RFC3339))
	}

	c.executing[key] = struct{}{}
	return commitment, nil
}

func (c *Coordinator) isExpired(commitment *Commitment, now time.Time) bool {
	return now.After(commitment.CommittedAt.Add(c.config.MaxCommitmentWindow))
}

func bpsShare(amount *big.Int, bps int64) *big.Int {
	share := new(big.Int).Mul(amount, big.NewInt(bps))
	return share.Quo(share, big.NewInt(finance.BpsDivisor))
}

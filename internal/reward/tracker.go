package reward

import (
	"math/big"
	"sync"

	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/common"
	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/finance"
	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/position"
)

// YieldSink is the external yield-distribution subsystem, notified whenever
// new rewards accrue. Amounts are in 18-decimal notional units.
type YieldSink interface {
	RecordPendingYield(owner string, amount *big.Int)
}

// NopSink discards yield notifications.
type NopSink struct{}

func (NopSink) RecordPendingYield(string, *big.Int) {}

// Config holds the interest-differential parameters: rewards accrue on the
// positive spread of the sink (USD) rate over the source (EUR) rate.
type Config struct {
	SourceRateBps    int64
	SinkRateBps      int64
	MaxPeriodSeconds int64
}

// Tracker keeps per-owner interest-differential reward bookkeeping. It is a
// thin stateful wrapper over finance.RewardAccrual, invoked opportunistically
// whenever exposure-affecting operations occur.
type Tracker struct {
	store  *position.Store
	clock  common.Clock
	sink   YieldSink
	config *Config

	owners map[string]*ownerRewards
	mu     sync.Mutex
}

type ownerRewards struct {
	pending   *big.Int
	lastBlock uint64
}

// NewTracker wires the tracker. A nil sink discards notifications.
func NewTracker(store *position.Store, clock common.Clock, sink YieldSink, config *Config) *Tracker {
	if sink == nil {
		sink = NopSink{}
	}
	return &Tracker{
		store:  store,
		clock:  clock,
		sink:   sink,
		config: config,
		owners: make(map[string]*ownerRewards),
	}
}

// Update settles reward accrual for the owner's aggregate exposure up to the
// current block. The first call for an owner only seeds the checkpoint.
func (t *Tracker) Update(owner string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	book, exists := t.owners[owner]
	if !exists {
		book = &ownerRewards{pending: new(big.Int)}
		t.owners[owner] = book
	}

	exposure := t.store.ActiveExposure(owner)
	newPending, newBlock := finance.RewardAccrual(
		exposure,
		t.config.SourceRateBps,
		t.config.SinkRateBps,
		book.lastBlock,
		t.clock.BlockNumber(),
		t.config.MaxPeriodSeconds,
		book.pending,
	)

	accrued := new(big.Int).Sub(newPending, book.pending)
	book.pending = newPending
	book.lastBlock = newBlock

	if accrued.Sign() > 0 {
		t.sink.RecordPendingYield(owner, accrued)
	}
}

// Pending returns the owner's accrued, unsettled rewards.
func (t *Tracker) Pending(owner string) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if book, exists := t.owners[owner]; exists {
		return new(big.Int).Set(book.pending)
	}
	return new(big.Int)
}

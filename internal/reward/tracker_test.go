package reward

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/finance"
	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/position"
)

type fakeClock struct {
	now   time.Time
	block uint64
}

func (c *fakeClock) Now() time.Time      { return c.now }
func (c *fakeClock) BlockNumber() uint64 { return c.block }

type recordingSink struct {
	owners  []string
	amounts []*big.Int
}

func (s *recordingSink) RecordPendingYield(owner string, amount *big.Int) {
	s.owners = append(s.owners, owner)
	s.amounts = append(s.amounts, new(big.Int).Set(amount))
}

func qeuro(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func usdc(n int64) *big.Int {
	return big.NewInt(n * 1_000_000)
}

func par() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
}

func newTestTracker(sourceBps, sinkBps int64) (*Tracker, *position.Store, *fakeClock, *recordingSink) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0), block: 1000}
	store := position.NewStore(50)
	sink := &recordingSink{}
	tracker := NewTracker(store, clock, sink, &Config{
		SourceRateBps:    sourceBps,
		SinkRateBps:      sinkBps,
		MaxPeriodSeconds: finance.SecondsPerYear,
	})
	return tracker, store, clock, sink
}

func TestTrackerUpdate(t *testing.T) {
	t.Run("FirstUpdateOnlySeedsCheckpoint", func(t *testing.T) {
		tracker, store, clock, sink := newTestTracker(300, 500)
		_, err := store.Create("hedger1", usdc(100), qeuro(1000), par(), usdc(1000), 10)
		require.NoError(t, err)

		tracker.Update("hedger1")
		assert.Equal(t, 0, tracker.Pending("hedger1").Sign())
		assert.Empty(t, sink.owners)

		// one day later rewards have accrued
		clock.block += 7200
		tracker.Update("hedger1")

		want := new(big.Int).Mul(qeuro(1000), big.NewInt(200*86400))
		want.Quo(want, big.NewInt(finance.BpsDivisor*int64(finance.SecondsPerYear)))
		assert.Equal(t, want, tracker.Pending("hedger1"))

		require.Len(t, sink.owners, 1)
		assert.Equal(t, "hedger1", sink.owners[0])
		assert.Equal(t, want, sink.amounts[0])
	})

	t.Run("SwappedRatesAccrueNothing", func(t *testing.T) {
		tracker, store, clock, sink := newTestTracker(500, 300)
		_, err := store.Create("hedger1", usdc(100), qeuro(1000), par(), usdc(1000), 10)
		require.NoError(t, err)

		tracker.Update("hedger1")
		clock.block += 7200
		tracker.Update("hedger1")

		assert.Equal(t, 0, tracker.Pending("hedger1").Sign())
		assert.Empty(t, sink.owners)
	})

	t.Run("NoExposureNoAccrual", func(t *testing.T) {
		tracker, _, clock, sink := newTestTracker(300, 500)

		tracker.Update("hedger1")
		clock.block += 7200
		tracker.Update("hedger1")

		assert.Equal(t, 0, tracker.Pending("hedger1").Sign())
		assert.Empty(t, sink.owners)
	})

	t.Run("PendingAccumulatesAcrossUpdates", func(t *testing.T) {
		tracker, store, clock, sink := newTestTracker(300, 500)
		_, err := store.Create("hedger1", usdc(100), qeuro(1000), par(), usdc(1000), 10)
		require.NoError(t, err)

		tracker.Update("hedger1")
		clock.block += 7200
		tracker.Update("hedger1")
		first := tracker.Pending("hedger1")

		clock.block += 7200
		tracker.Update("hedger1")
		second := tracker.Pending("hedger1")

		assert.Equal(t, 1, second.Cmp(first))
		assert.Len(t, sink.owners, 2) // one notification per accruing update
	})
}

func TestTrackerPending(t *testing.T) {
	t.Run("UnknownOwnerIsZero", func(t *testing.T) {
		tracker, _, _, _ := newTestTracker(300, 500)
		assert.Equal(t, 0, tracker.Pending("nobody").Sign())
	})

	t.Run("ReturnsDetachedCopy", func(t *testing.T) {
		tracker, store, clock, _ := newTestTracker(300, 500)
		_, err := store.Create("hedger1", usdc(100), qeuro(1000), par(), usdc(1000), 10)
		require.NoError(t, err)

		tracker.Update("hedger1")
		clock.block += 7200
		tracker.Update("hedger1")

		pending := tracker.Pending("hedger1")
		pending.SetInt64(0)
		assert.Equal(t, 1, tracker.Pending("hedger1").Sign())
	})
}

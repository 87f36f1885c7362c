package liquidation

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/finance"
	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/position"
	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/reward"
)

// fakeClock advances only when told to, one block per 12 seconds.
type fakeClock struct {
	now   time.Time
	block uint64
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0), block: 1000}
}

func (c *fakeClock) Now() time.Time      { return c.now }
func (c *fakeClock) BlockNumber() uint64 { return c.block }

func (c *fakeClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
	c.block += uint64(d / (finance.SecondsPerBlock * time.Second))
}

func usdc(n int64) *big.Int {
	return big.NewInt(n * 1_000_000)
}

func qeuro(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func par() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
}

func testConfig() *Config {
	return &Config{
		CooldownPeriod:          5 * time.Minute,
		MaxCommitmentWindow:     time.Hour,
		LiquidationThresholdBps: 300,
		LiquidatorRewardBps:     200,
		ProtocolPenaltyBps:      100,
	}
}

func newTestCoordinator(t *testing.T) (*Coordinator, *position.Store, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	store := position.NewStore(50)
	rewards := reward.NewTracker(store, clock, nil, &reward.Config{
		SourceRateBps:    350,
		SinkRateBps:      450,
		MaxPeriodSeconds: finance.SecondsPerYear,
	})
	return NewCoordinator(store, rewards, clock, testConfig()), store, clock
}

// underwater creates a position at 200 bps margin ratio, below the 300 bps
// test threshold.
func underwater(t *testing.T, store *position.Store) uint64 {
	t.Helper()
	id, err := store.Create("hedger1", usdc(20), qeuro(1000), par(), usdc(1000), 10)
	require.NoError(t, err)
	return id
}

// healthy creates a position at 1000 bps margin ratio.
func healthy(t *testing.T, store *position.Store) uint64 {
	t.Helper()
	id, err := store.Create("hedger1", usdc(100), qeuro(1000), par(), usdc(1000), 10)
	require.NoError(t, err)
	return id
}

func TestCommit(t *testing.T) {
	t.Run("RegistersCommitment", func(t *testing.T) {
		c, store, clock := newTestCoordinator(t)
		id := underwater(t, store)

		commitment, err := c.Commit("liqA", "hedger1", id, []byte("salt-1"))
		require.NoError(t, err)

		assert.Equal(t, StatusCommitted, commitment.Status)
		assert.Equal(t, "liqA", commitment.Liquidator)
		assert.Equal(t, clock.Now(), commitment.CommittedAt)
		assert.Equal(t, []byte("salt-1"), commitment.Salt)
		assert.NotEmpty(t, commitment.ID)
	})

	t.Run("UnknownPosition", func(t *testing.T) {
		c, _, _ := newTestCoordinator(t)
		_, err := c.Commit("liqA", "hedger1", 7, nil)
		assert.ErrorIs(t, err, position.ErrInvalidPosition)
	})

	t.Run("ZeroIdSentinel", func(t *testing.T) {
		c, store, _ := newTestCoordinator(t)
		underwater(t, store)
		_, err := c.Commit("liqA", "hedger1", 0, nil)
		assert.ErrorIs(t, err, position.ErrInvalidPosition)
	})

	t.Run("SlotIsExclusive", func(t *testing.T) {
		c, store, _ := newTestCoordinator(t)
		id := underwater(t, store)

		_, err := c.Commit("liqA", "hedger1", id, nil)
		require.NoError(t, err)

		_, err = c.Commit("liqB", "hedger1", id, nil)
		assert.ErrorIs(t, err, ErrCommitmentAlreadyExists)

		// the committed liquidator cannot stack a fresh window either
		_, err = c.Commit("liqA", "hedger1", id, nil)
		assert.ErrorIs(t, err, ErrCommitmentAlreadyExists)
	})

	t.Run("ExpiredSlotIsReusable", func(t *testing.T) {
		c, store, clock := newTestCoordinator(t)
		id := underwater(t, store)

		_, err := c.Commit("liqA", "hedger1", id, nil)
		require.NoError(t, err)

		clock.advance(time.Hour + time.Second)

		commitment, err := c.Commit("liqB", "hedger1", id, nil)
		require.NoError(t, err)
		assert.Equal(t, "liqB", commitment.Liquidator)
	})
}

func TestExecuteTiming(t *testing.T) {
	t.Run("CooldownActive", func(t *testing.T) {
		c, store, clock := newTestCoordinator(t)
		id := underwater(t, store)

		_, err := c.Commit("liqA", "hedger1", id, nil)
		require.NoError(t, err)

		_, err = c.Execute("liqA", "hedger1", id, par(), nil)
		assert.ErrorIs(t, err, ErrLiquidationCooldownActive)

		clock.advance(5*time.Minute - time.Second)
		_, err = c.Execute("liqA", "hedger1", id, par(), nil)
		assert.ErrorIs(t, err, ErrLiquidationCooldownActive)

		// the commitment survives a premature attempt
		assert.Equal(t, StatusCommitted, c.Commitment("hedger1", id).Status)
	})

	t.Run("ExecutableExactlyAtCooldown", func(t *testing.T) {
		c, store, clock := newTestCoordinator(t)
		id := underwater(t, store)

		_, err := c.Commit("liqA", "hedger1", id, nil)
		require.NoError(t, err)

		clock.advance(5 * time.Minute)
		_, err = c.Execute("liqA", "hedger1", id, par(), nil)
		assert.NoError(t, err)
	})

	t.Run("Expired", func(t *testing.T) {
		c, store, clock := newTestCoordinator(t)
		id := underwater(t, store)

		_, err := c.Commit("liqA", "hedger1", id, nil)
		require.NoError(t, err)

		clock.advance(time.Hour + time.Second)
		_, err = c.Execute("liqA", "hedger1", id, par(), nil)
		assert.ErrorIs(t, err, ErrCommitmentExpired)

		// slot reset to NoCommitment
		assert.Nil(t, c.Commitment("hedger1", id))

		// position is still open for the next liquidator
		_, err = c.Commit("liqB", "hedger1", id, nil)
		assert.NoError(t, err)
	})

	t.Run("ExecutableExactlyAtWindowEnd", func(t *testing.T) {
		c, store, clock := newTestCoordinator(t)
		id := underwater(t, store)

		_, err := c.Commit("liqA", "hedger1", id, nil)
		require.NoError(t, err)

		clock.advance(time.Hour)
		_, err = c.Execute("liqA", "hedger1", id, par(), nil)
		assert.NoError(t, err)
	})
}

func TestExecute(t *testing.T) {
	t.Run("NoCommitment", func(t *testing.T) {
		c, store, _ := newTestCoordinator(t)
		id := underwater(t, store)

		_, err := c.Execute("liqA", "hedger1", id, par(), nil)
		assert.ErrorIs(t, err, ErrNoCommitment)
	})

	t.Run("WrongLiquidator", func(t *testing.T) {
		c, store, clock := newTestCoordinator(t)
		id := underwater(t, store)

		_, err := c.Commit("liqA", "hedger1", id, nil)
		require.NoError(t, err)

		clock.advance(5 * time.Minute)
		_, err = c.Execute("liqB", "hedger1", id, par(), nil)
		assert.ErrorIs(t, err, ErrNotCommitmentOwner)

		// the rightful liquidator still holds the window
		_, err = c.Execute("liqA", "hedger1", id, par(), nil)
		assert.NoError(t, err)
	})

	t.Run("RecoveredPositionClearsSlot", func(t *testing.T) {
		c, store, clock := newTestCoordinator(t)
		id := healthy(t, store)

		_, err := c.Commit("liqA", "hedger1", id, nil)
		require.NoError(t, err)

		clock.advance(5 * time.Minute)
		_, err = c.Execute("liqA", "hedger1", id, par(), nil)
		assert.ErrorIs(t, err, ErrPositionNotLiquidatable)

		// position untouched, slot free for a later attempt
		pos, err := store.Get("hedger1", id)
		require.NoError(t, err)
		assert.Equal(t, usdc(100), pos.Margin)
		assert.Nil(t, c.Commitment("hedger1", id))

		_, err = c.Commit("liqB", "hedger1", id, nil)
		assert.NoError(t, err)
	})

	t.Run("SeizureSplit", func(t *testing.T) {
		c, store, clock := newTestCoordinator(t)
		id := underwater(t, store)

		_, err := c.Commit("liqA", "hedger1", id, []byte("s"))
		require.NoError(t, err)

		clock.advance(5 * time.Minute)
		result, err := c.Execute("liqA", "hedger1", id, par(), nil)
		require.NoError(t, err)

		// 20 USDC seized: 2% reward, 1% penalty, remainder refunded
		assert.Equal(t, usdc(20), result.SeizedMargin)
		assert.Equal(t, big.NewInt(400_000), result.LiquidatorReward)
		assert.Equal(t, big.NewInt(200_000), result.ProtocolPenalty)
		assert.Equal(t, big.NewInt(19_400_000), result.HedgerRefund)
		assert.NotEmpty(t, result.CommitmentID)

		// reward + penalty + refund == seized, nothing minted or burned
		total := new(big.Int).Add(result.LiquidatorReward, result.ProtocolPenalty)
		total.Add(total, result.HedgerRefund)
		assert.Equal(t, result.SeizedMargin, total)

		// position closed, commitment executed
		_, err = store.Get("hedger1", id)
		assert.ErrorIs(t, err, position.ErrInvalidPosition)
		assert.Equal(t, StatusExecuted, c.Commitment("hedger1", id).Status)

		// no second execution
		_, err = c.Execute("liqA", "hedger1", id, par(), nil)
		assert.ErrorIs(t, err, ErrNoCommitment)
	})
}

func TestExecuteSettlement(t *testing.T) {
	t.Run("SettleSeesTheSplitBeforeTheClose", func(t *testing.T) {
		c, store, clock := newTestCoordinator(t)
		id := underwater(t, store)

		_, err := c.Commit("liqA", "hedger1", id, nil)
		require.NoError(t, err)

		clock.advance(5 * time.Minute)
		var seen *Result
		result, err := c.Execute("liqA", "hedger1", id, par(), func(r *Result) error {
			seen = r
			return nil
		})
		require.NoError(t, err)
		require.NotNil(t, seen)
		assert.Equal(t, usdc(20), seen.SeizedMargin)
		assert.Equal(t, result.CommitmentID, seen.CommitmentID)
	})

	t.Run("SettleFailureKeepsCommitmentAndPosition", func(t *testing.T) {
		c, store, clock := newTestCoordinator(t)
		id := underwater(t, store)

		_, err := c.Commit("liqA", "hedger1", id, nil)
		require.NoError(t, err)

		clock.advance(5 * time.Minute)
		wantErr := assert.AnError
		_, err = c.Execute("liqA", "hedger1", id, par(), func(*Result) error {
			return wantErr
		})
		assert.ErrorIs(t, err, wantErr)

		// position untouched, commitment live for a retry
		pos, err := store.Get("hedger1", id)
		require.NoError(t, err)
		assert.Equal(t, usdc(20), pos.Margin)
		assert.Equal(t, StatusCommitted, c.Commitment("hedger1", id).Status)

		// the retry settles normally
		_, err = c.Execute("liqA", "hedger1", id, par(), nil)
		assert.NoError(t, err)
	})
}

func TestExecuteDuplicateTurnedAway(t *testing.T) {
	c, store, clock := newTestCoordinator(t)
	id := underwater(t, store)

	_, err := c.Commit("liqA", "hedger1", id, nil)
	require.NoError(t, err)
	clock.advance(5 * time.Minute)

	// first caller holds the in-flight slot
	_, err = c.takeExecutable("liqA", positionKey{owner: "hedger1", id: id})
	require.NoError(t, err)

	// a duplicate attempt is rejected without disturbing the slot
	_, err = c.Execute("liqA", "hedger1", id, par(), nil)
	assert.ErrorIs(t, err, ErrNoCommitment)
	assert.Equal(t, StatusCommitted, c.Commitment("hedger1", id).Status)
}

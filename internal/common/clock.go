package common

import (
	"time"

	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/finance"
)

// Clock abstracts wall time and the monotonic logical block counter the
// engine keys its timing rules to. Commitment cooldown/expiry windows use
// Now; reward accrual checkpoints use BlockNumber.
type Clock interface {
	Now() time.Time
	BlockNumber() uint64
}

// SystemClock derives block numbers from wall time at the protocol's fixed
// 12 second cadence.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

func (SystemClock) BlockNumber() uint64 {
	return uint64(time.Now().Unix() / finance.SecondsPerBlock)
}

package liquidation

import (
	"time"
)

// CommitmentStatus Committed, Expired or Executed. The absence of a
// commitment for a position is the NoCommitment state.
type CommitmentStatus int

const (
	StatusCommitted CommitmentStatus = iota
	StatusExpired
	StatusExecuted
)

func (s CommitmentStatus) String() string {
	switch s {
	case StatusCommitted:
		return "committed"
	case StatusExpired:
		return "expired"
	case StatusExecuted:
		return "executed"
	default:
		return "unknown"
	}
}

// Commitment is a liquidator's registered intent on one position. At most one
// may be outstanding per position: a committed liquidator holds an exclusive,
// time-bounded execution window.
type Commitment struct {
	ID          string // uuid, "liq" prefixed
	Owner       string
	PositionID  uint64
	Liquidator  string
	Salt        []byte // caller-supplied, opaque; not a cryptographic secret
	CommittedAt time.Time
	Status      CommitmentStatus
}

func (c *Commitment) clone() *Commitment {
	cp := *c
	cp.Salt = append([]byte(nil), c.Salt...)
	return &cp
}

package position

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"
)

var (
	// ErrInvalidPosition covers id 0, unknown ids and closed positions.
	ErrInvalidPosition = errors.New("invalid position")
	// ErrPositionLimitExceeded rejects opening beyond the per-owner cap.
	ErrPositionLimitExceeded = errors.New("position limit exceeded")
)

// Store owns the arena of hedge positions, addressed by (owner, positionId).
// It enforces per-owner count limits and existence checks; all other position
// semantics live in the margin and liquidation layers.
type Store struct {
	owners       map[string]*ownerBook
	maxPositions int
	mu           sync.RWMutex
}

// ownerBook is one owner's slice of the arena: the id counter, every record
// ever created (closed ones stay, terminal and immutable) and the active set.
type ownerBook struct {
	lastID    uint64
	positions map[uint64]*HedgePosition
	active    map[uint64]struct{}
}

// NewStore creates an empty store capped at maxPositions concurrent active
// positions per owner.
func NewStore(maxPositions int) *Store {
	return &Store{
		owners:       make(map[string]*ownerBook),
		maxPositions: maxPositions,
	}
}

// Create opens a new active position and returns its id. Ids start at 1 per
// owner and are never reused; 0 stays reserved as the not-found sentinel.
func (s *Store) Create(owner string, margin, qeuroBacked, entryPrice, filledVolume *big.Int, leverage int16) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, exists := s.owners[owner]
	if !exists {
		book = &ownerBook{
			positions: make(map[uint64]*HedgePosition),
			active:    make(map[uint64]struct{}),
		}
		s.owners[owner] = book
	}

	if len(book.active) >= s.maxPositions {
		return 0, fmt.Errorf("%w: owner %s already holds %d positions", ErrPositionLimitExceeded, owner, len(book.active))
	}

	book.lastID++
	now := time.Now()
	book.positions[book.lastID] = &HedgePosition{
		Owner:        owner,
		ID:           book.lastID,
		Margin:       new(big.Int).Set(margin),
		FilledVolume: new(big.Int).Set(filledVolume),
		QeuroBacked:  new(big.Int).Set(qeuroBacked),
		EntryPrice:   new(big.Int).Set(entryPrice),
		RealizedPnL:  new(big.Int),
		Leverage:     leverage,
		Status:       StatusActive,
		OpenedAt:     now,
		UpdatedAt:    now,
	}
	book.active[book.lastID] = struct{}{}

	return book.lastID, nil
}

// Get returns a detached snapshot of an active position.
func (s *Store) Get(owner string, id uint64) (*HedgePosition, error) {
	pos, err := s.lookup(owner, id)
	if err != nil {
		return nil, err
	}

	pos.mu.RLock()
	defer pos.mu.RUnlock()
	if pos.Status == StatusClosed {
		return nil, fmt.Errorf("%w: position %d for owner %s is closed", ErrInvalidPosition, id, owner)
	}
	return pos.snapshotLocked(), nil
}

// Update runs fn against the live record under the position's write lock, so
// validate-and-commit sequences are atomic with respect to other writers on
// the same position. An error from fn aborts the update with state untouched.
func (s *Store) Update(owner string, id uint64, fn func(*HedgePosition) error) error {
	pos, err := s.lookup(owner, id)
	if err != nil {
		return err
	}

	pos.mu.Lock()
	defer pos.mu.Unlock()
	if pos.Status == StatusClosed {
		return fmt.Errorf("%w: position %d for owner %s is closed", ErrInvalidPosition, id, owner)
	}
	if err := fn(pos); err != nil {
		return err
	}
	pos.UpdatedAt = time.Now()
	return nil
}

// Close marks a position terminal. Closing an already closed (or unknown)
// position fails with ErrInvalidPosition.
func (s *Store) Close(owner string, id uint64) error {
	return s.CloseWith(owner, id, nil)
}

// CloseWith atomically runs fn against the live record and closes it, all
// under the position's write lock. An error from fn aborts the close with the
// position left active and untouched.
func (s *Store) CloseWith(owner string, id uint64, fn func(*HedgePosition) error) error {
	pos, err := s.lookup(owner, id)
	if err != nil {
		return err
	}

	pos.mu.Lock()
	if pos.Status == StatusClosed {
		pos.mu.Unlock()
		return fmt.Errorf("%w: position %d for owner %s is closed", ErrInvalidPosition, id, owner)
	}
	if fn != nil {
		if err := fn(pos); err != nil {
			pos.mu.Unlock()
			return err
		}
	}
	pos.Status = StatusClosed
	pos.UpdatedAt = time.Now()
	pos.mu.Unlock()

	// position lock released first: readers iterate store-then-position
	s.mu.Lock()
	delete(s.owners[owner].active, id)
	s.mu.Unlock()

	return nil
}

// ActiveIDs returns the owner's open position ids, unordered.
func (s *Store) ActiveIDs(owner string) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	book, exists := s.owners[owner]
	if !exists {
		return nil
	}
	ids := make([]uint64, 0, len(book.active))
	for id := range book.active {
		ids = append(ids, id)
	}
	return ids
}

// ActiveExposure aggregates the owner's open EUR notional, used as the base
// for interest-differential reward accrual.
func (s *Store) ActiveExposure(owner string) *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := new(big.Int)
	book, exists := s.owners[owner]
	if !exists {
		return total
	}
	for id := range book.active {
		pos := book.positions[id]
		pos.mu.RLock()
		total.Add(total, pos.QeuroBacked)
		pos.mu.RUnlock()
	}
	return total
}

func (s *Store) lookup(owner string, id uint64) (*HedgePosition, error) {
	if id == 0 {
		return nil, fmt.Errorf("%w: position id 0 is reserved", ErrInvalidPosition)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	book, exists := s.owners[owner]
	if !exists {
		return nil, fmt.Errorf("%w: owner %s has no positions", ErrInvalidPosition, owner)
	}
	pos, exists := book.positions[id]
	if !exists {
		return nil, fmt.Errorf("%w: position %d not found for owner %s", ErrInvalidPosition, id, owner)
	}
	return pos, nil
}

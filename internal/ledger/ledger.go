// Package ledger owns the authoritative set of parking stays.
//
// A Ledger enforces at most one open stay per plate and performs the
// open→closed transition in one step: the closed stay, with its exit time and
// fare, replaces the open record as a single value write. Readers get copies
// and can never observe one field set without the other.
//
// The ledger does no I/O. Each transition is handed to an optional Publisher
// while the plate is still locked, so events for one plate reach the
// publisher in the order the transitions happened.
package ledger

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/parking-ledger/internal/domain"
	"github.com/pkordes/parking-ledger/internal/fare"
)

// Publisher receives every successful transition. Publish is called with the
// plate lock held and must not block or call back into the ledger.
type Publisher interface {
	Publish(ev domain.StayEvent)
}

// Ledger is the in-memory owner of every Stay. Construct it with New and
// share a single instance per process; it is safe for concurrent use.
type Ledger struct {
	rates  fare.RateSource
	locks  *plateLocks
	events Publisher
	now    func() time.Time

	mu       sync.RWMutex
	stays    []domain.Stay
	byID     map[uuid.UUID]int
	open     map[domain.Plate]int
	lastExit map[domain.Plate]time.Time
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithPublisher announces every transition to p.
func WithPublisher(p Publisher) Option {
	return func(l *Ledger) { l.events = p }
}

// WithClock replaces time.Now as the source of event timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New returns an empty Ledger that bills closes at the rate reported by rates.
func New(rates fare.RateSource, opts ...Option) *Ledger {
	l := &Ledger{
		rates:    rates,
		locks:    newPlateLocks(),
		now:      time.Now,
		byID:     make(map[uuid.UUID]int),
		open:     make(map[domain.Plate]int),
		lastExit: make(map[domain.Plate]time.Time),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Open records that the vehicle identified by plate entered at now.
// The plate is normalized before use.
// Returns domain.ErrInvalidPlate for an empty plate, domain.ErrAlreadyParked
// when the plate already has an open stay (the existing stay is not touched)
// and domain.ErrValidation when now precedes the plate's previous exit.
func (l *Ledger) Open(plate string, now time.Time) (domain.Stay, error) {
	p, err := domain.NormalizePlate(plate)
	if err != nil {
		return domain.Stay{}, fmt.Errorf("ledger.Ledger.Open: %w", err)
	}
	unlock := l.locks.lock(p)
	defer unlock()

	l.mu.Lock()
	if i, ok := l.open[p]; ok {
		entry := l.stays[i].EntryTime
		l.mu.Unlock()
		return domain.Stay{}, fmt.Errorf("ledger.Ledger.Open: %w: %s since %s",
			domain.ErrAlreadyParked, p, entry.Format(time.RFC3339))
	}
	if last, ok := l.lastExit[p]; ok && now.Before(last) {
		l.mu.Unlock()
		return domain.Stay{}, fmt.Errorf("ledger.Ledger.Open: %w: entry %s precedes previous exit of %s at %s",
			domain.ErrValidation, now.Format(time.RFC3339), p, last.Format(time.RFC3339))
	}

	stay := domain.Stay{
		ID:        uuid.New(),
		Plate:     p,
		EntryTime: now,
	}
	l.stays = append(l.stays, stay)
	idx := len(l.stays) - 1
	l.byID[stay.ID] = idx
	l.open[p] = idx
	l.mu.Unlock()

	l.publish(domain.EventVehicleEntered, stay)
	return stay, nil
}

// Close records that the vehicle identified by plate left at now, computes its
// fare at the current rate and returns the closed stay, which carries the
// rate it was billed at.
// Returns domain.ErrNotParked when there is no open stay for the plate and
// domain.ErrInvalidInterval when now precedes the entry time. Nothing is
// modified on error.
func (l *Ledger) Close(plate string, now time.Time) (domain.Stay, error) {
	p, err := domain.NormalizePlate(plate)
	if err != nil {
		return domain.Stay{}, fmt.Errorf("ledger.Ledger.Close: %w", err)
	}
	unlock := l.locks.lock(p)
	defer unlock()

	// The plate lock keeps the open record stable between this read and the
	// write below, so the collection lock is only held for the swap.
	l.mu.RLock()
	idx, ok := l.open[p]
	var current domain.Stay
	if ok {
		current = l.stays[idx]
	}
	l.mu.RUnlock()
	if !ok {
		return domain.Stay{}, fmt.Errorf("ledger.Ledger.Close: %w: %s", domain.ErrNotParked, p)
	}

	rate := l.rates.HourlyRate()
	amount, err := fare.Compute(current.EntryTime, now, rate)
	if err != nil {
		return domain.Stay{}, fmt.Errorf("ledger.Ledger.Close: %w", err)
	}
	closed := current.Closed(now, rate, amount)

	l.mu.Lock()
	l.stays[idx] = closed
	delete(l.open, p)
	l.lastExit[p] = now
	l.mu.Unlock()

	l.publish(domain.EventVehicleExited, closed)
	return closed, nil
}

func (l *Ledger) publish(kind domain.StayEventKind, stay domain.Stay) {
	if l.events == nil {
		return
	}
	l.events.Publish(domain.StayEvent{Kind: kind, Stay: stay, OccurredAt: l.now()})
}

// ListOpen returns a snapshot of every open stay, oldest entry first.
func (l *Ledger) ListOpen() []domain.Stay {
	l.mu.RLock()
	idx := make([]int, 0, len(l.open))
	for _, i := range l.open {
		idx = append(idx, i)
	}
	// Insertion order first so ties on entry time come out the same every call.
	slices.Sort(idx)
	out := make([]domain.Stay, len(idx))
	for n, i := range idx {
		out[n] = l.stays[i]
	}
	l.mu.RUnlock()
	sortByEntry(out)
	return out
}

// ListAll returns a snapshot of the full history, open and closed, oldest
// entry first.
func (l *Ledger) ListAll() []domain.Stay {
	l.mu.RLock()
	out := slices.Clone(l.stays)
	l.mu.RUnlock()
	if out == nil {
		out = []domain.Stay{}
	}
	sortByEntry(out)
	return out
}

// Get returns the stay with the given ID.
// Returns domain.ErrNotFound if the ledger has no such stay.
func (l *Ledger) Get(id uuid.UUID) (domain.Stay, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.byID[id]
	if !ok {
		return domain.Stay{}, fmt.Errorf("ledger.Ledger.Get: %w", domain.ErrNotFound)
	}
	return l.stays[i], nil
}

// OpenCount returns the number of vehicles currently parked.
func (l *Ledger) OpenCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.open)
}

// Restore replaces the ledger contents with stays loaded from an archive.
// It is meant to run once at startup, before the ledger is shared, and
// publishes nothing.
// The whole set is rejected with domain.ErrValidation if any stay breaks the
// ledger invariants.
func (l *Ledger) Restore(stays []domain.Stay) error {
	byID := make(map[uuid.UUID]int, len(stays))
	open := make(map[domain.Plate]int)
	lastExit := make(map[domain.Plate]time.Time)
	restored := make([]domain.Stay, 0, len(stays))

	for _, s := range stays {
		p, err := domain.NormalizePlate(string(s.Plate))
		if err != nil {
			return fmt.Errorf("ledger.Ledger.Restore: stay %s: %w", s.ID, err)
		}
		s.Plate = p
		if err := checkRestored(s); err != nil {
			return fmt.Errorf("ledger.Ledger.Restore: stay %s: %w", s.ID, err)
		}
		if _, dup := byID[s.ID]; dup {
			return fmt.Errorf("ledger.Ledger.Restore: %w: duplicate stay %s", domain.ErrValidation, s.ID)
		}
		restored = append(restored, s)
		idx := len(restored) - 1
		byID[s.ID] = idx
		if s.IsOpen() {
			if _, dup := open[p]; dup {
				return fmt.Errorf("ledger.Ledger.Restore: %w: %s has more than one open stay", domain.ErrValidation, p)
			}
			open[p] = idx
		} else if last, ok := lastExit[p]; !ok || s.ExitTime.After(last) {
			lastExit[p] = *s.ExitTime
		}
	}

	l.mu.Lock()
	l.stays, l.byID, l.open, l.lastExit = restored, byID, open, lastExit
	l.mu.Unlock()
	return nil
}

func checkRestored(s domain.Stay) error {
	if s.ID == uuid.Nil {
		return fmt.Errorf("%w: missing id", domain.ErrValidation)
	}
	if (s.ExitTime == nil) != (s.Fare == nil) {
		return fmt.Errorf("%w: exit time and fare must be set together", domain.ErrValidation)
	}
	if s.ExitTime != nil && s.ExitTime.Before(s.EntryTime) {
		return fmt.Errorf("%w: exit before entry", domain.ErrInvalidInterval)
	}
	return nil
}

func sortByEntry(stays []domain.Stay) {
	slices.SortStableFunc(stays, func(a, b domain.Stay) int {
		return a.EntryTime.Compare(b.EntryTime)
	})
}

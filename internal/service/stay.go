// Package service contains the business logic for the parking API.
// Services validate inputs, read the clock, and drive the ledger, which
// announces transitions itself. No SQL and no HTTP live here.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/parking-ledger/internal/domain"
	"github.com/pkordes/parking-ledger/internal/fare"
	"github.com/pkordes/parking-ledger/internal/metrics"
)

// futureEntryTolerance is how far ahead of the server clock a client-supplied
// entry time may be before it is rejected.
const futureEntryTolerance = time.Minute

// Ledger is the subset of *ledger.Ledger the service drives.
type Ledger interface {
	Open(plate string, now time.Time) (domain.Stay, error)
	Close(plate string, now time.Time) (domain.Stay, error)
	ListOpen() []domain.Stay
	ListAll() []domain.Stay
	Get(id uuid.UUID) (domain.Stay, error)
}

// RatePolicy reports the hourly rate and its currency.
type RatePolicy interface {
	fare.RateSource
	Currency() string
}

// StayService implements vehicle entry, exit and the occupancy views.
type StayService struct {
	ledger  Ledger
	rates   RatePolicy
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
	loc     *time.Location
}

// Option customizes a StayService.
type Option func(*StayService)

// WithClock replaces time.Now; used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *StayService) { s.now = now }
}

// WithLocation sets the facility time zone used for day filters.
func WithLocation(loc *time.Location) Option {
	return func(s *StayService) { s.loc = loc }
}

// WithMetrics records transitions in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *StayService) { s.metrics = m }
}

// WithLogger replaces slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *StayService) { s.log = l }
}

// NewStayService constructs a StayService.
func NewStayService(l Ledger, rates RatePolicy, opts ...Option) *StayService {
	s := &StayService{
		ledger: l,
		rates:  rates,
		log:    slog.Default(),
		now:    time.Now,
		loc:    time.UTC,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Enter opens a stay for the vehicle. entryTime defaults to the server clock.
// Returns domain.ErrInvalidPlate for a malformed plate, domain.ErrValidation
// for an entry time in the future or before the plate's previous exit,
// domain.ErrAlreadyParked if the vehicle is already inside.
func (s *StayService) Enter(ctx context.Context, rawPlate string, entryTime *time.Time) (domain.Stay, error) {
	now := s.now()
	plate, err := domain.ParsePlate(rawPlate)
	if err != nil {
		s.metrics.Rejected("open", reason(err))
		return domain.Stay{}, fmt.Errorf("service.StayService.Enter: %w", err)
	}

	at := now
	if entryTime != nil {
		if entryTime.After(now.Add(futureEntryTolerance)) {
			s.metrics.Rejected("open", "validation")
			return domain.Stay{}, fmt.Errorf("service.StayService.Enter: %w: entry_time must not be in the future", domain.ErrValidation)
		}
		at = *entryTime
	}

	stay, err := s.ledger.Open(string(plate), at)
	if err != nil {
		s.metrics.Rejected("open", reason(err))
		return domain.Stay{}, fmt.Errorf("service.StayService.Enter: %w", err)
	}

	s.metrics.StayOpened()
	s.log.InfoContext(ctx, "vehicle entered",
		"stay_id", stay.ID,
		"plate", stay.Plate,
		"entry_time", stay.EntryTime,
	)
	return stay, nil
}

// Exit closes the vehicle's open stay at the server clock and returns it with
// its final fare.
// Returns domain.ErrInvalidPlate, domain.ErrNotParked, or
// domain.ErrInvalidInterval when the clock is behind the recorded entry.
func (s *StayService) Exit(ctx context.Context, rawPlate string) (domain.Stay, error) {
	now := s.now()
	plate, err := domain.ParsePlate(rawPlate)
	if err != nil {
		s.metrics.Rejected("close", reason(err))
		return domain.Stay{}, fmt.Errorf("service.StayService.Exit: %w", err)
	}

	stay, err := s.ledger.Close(string(plate), now)
	if err != nil {
		s.metrics.Rejected("close", reason(err))
		return domain.Stay{}, fmt.Errorf("service.StayService.Exit: %w", err)
	}

	s.metrics.StayClosed(*stay.Fare, fare.BilledHours(stay.ExitTime.Sub(stay.EntryTime)))
	s.log.InfoContext(ctx, "vehicle exited",
		"stay_id", stay.ID,
		"plate", stay.Plate,
		"exit_time", *stay.ExitTime,
		"fare", stay.Fare.String(),
		"hourly_rate", stay.HourlyRate.String(),
	)
	return stay, nil
}

// Parked returns every open stay with its elapsed time and a running fare
// estimate as of now. It never modifies the ledger.
func (s *StayService) Parked(_ context.Context) []domain.ParkedStay {
	now := s.now()
	rate := s.rates.HourlyRate()
	open := s.ledger.ListOpen()

	out := make([]domain.ParkedStay, len(open))
	for i, st := range open {
		out[i] = domain.ParkedStay{
			Stay:     st,
			Elapsed:  now.Sub(st.EntryTime),
			Estimate: fare.Estimate(st.EntryTime, now, rate),
		}
	}
	return out
}

// History returns one page of the full stay history (open and closed, oldest
// entry first) and the total number of matching stays. If day is set, only
// stays that entered on that calendar date in the facility time zone are
// kept; only its year, month and day are used.
func (s *StayService) History(_ context.Context, day *time.Time, p domain.PaginationParams) ([]domain.Stay, int, error) {
	all := s.ledger.ListAll()
	if day != nil {
		all = s.onDay(all, *day)
	}
	return domain.Paginate(all, p), len(all), nil
}

// All returns the full history for export.
func (s *StayService) All(_ context.Context) []domain.Stay {
	return s.ledger.ListAll()
}

// Get returns a single stay.
// Returns domain.ErrNotFound if the ledger has no such stay.
func (s *StayService) Get(_ context.Context, id uuid.UUID) (domain.Stay, error) {
	stay, err := s.ledger.Get(id)
	if err != nil {
		return domain.Stay{}, fmt.Errorf("service.StayService.Get: %w", err)
	}
	return stay, nil
}

// Rate returns the hourly rate currently in force and its currency.
func (s *StayService) Rate(_ context.Context) (domain.Money, string) {
	return s.rates.HourlyRate(), s.rates.Currency()
}

// Location returns the facility time zone.
func (s *StayService) Location() *time.Location {
	return s.loc
}

func (s *StayService) onDay(stays []domain.Stay, day time.Time) []domain.Stay {
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	end := start.AddDate(0, 0, 1)

	out := make([]domain.Stay, 0, len(stays))
	for _, st := range stays {
		if !st.EntryTime.Before(start) && st.EntryTime.Before(end) {
			out = append(out, st)
		}
	}
	return out
}

// reason maps a domain error to a metrics label.
func reason(err error) string {
	switch {
	case errors.Is(err, domain.ErrAlreadyParked):
		return "already_parked"
	case errors.Is(err, domain.ErrNotParked):
		return "not_parked"
	case errors.Is(err, domain.ErrInvalidInterval):
		return "invalid_interval"
	case errors.Is(err, domain.ErrInvalidPlate):
		return "invalid_plate"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	default:
		return "internal"
	}
}

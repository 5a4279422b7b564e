// Package fare converts elapsed parking time into a charge.
//
// Billing policy: every started hour is billed as a full hour, so the charge
// is ceil(elapsed / 1h) * hourly rate. A zero-length stay bills zero hours.
// All arithmetic is done on integer nanoseconds and integer cents.
package fare

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/pkordes/parking-ledger/internal/domain"
)

// MaxHourlyRate is the largest rate CheckRate accepts: 1,000,000.00 per
// hour. At that rate the longest representable time.Duration still bills
// well inside int64 cents.
const MaxHourlyRate = domain.Money(100_000_000)

// CheckRate reports whether rate can be used for billing.
func CheckRate(rate domain.Money) error {
	if rate < 0 {
		return fmt.Errorf("%w: rate must not be negative", domain.ErrValidation)
	}
	if rate > MaxHourlyRate {
		return fmt.Errorf("%w: rate must not exceed %s", domain.ErrValidation, MaxHourlyRate)
	}
	return nil
}

// RateSource supplies the hourly rate in force at the moment of billing.
type RateSource interface {
	HourlyRate() domain.Money
}

// BilledHours returns the number of hours charged for d: ceil(d / 1h).
// Callers must pass a non-negative duration.
func BilledHours(d time.Duration) int64 {
	h := int64(d / time.Hour)
	if d%time.Hour != 0 {
		h++
	}
	return h
}

// Compute returns the final fare for a stay that entered at entry and left at
// exit. It is the only mode used when closing a stay.
// Returns domain.ErrInvalidInterval when exit is before entry and
// domain.ErrValidation when the rate is negative or the fare would overflow.
func Compute(entry, exit time.Time, rate domain.Money) (domain.Money, error) {
	d := exit.Sub(entry)
	if d < 0 {
		return 0, fmt.Errorf("fare.Compute: %w: entry %s, exit %s",
			domain.ErrInvalidInterval, entry.Format(time.RFC3339), exit.Format(time.RFC3339))
	}
	amount, ok := rate.TimesChecked(BilledHours(d))
	if !ok {
		return 0, fmt.Errorf("fare.Compute: %w: %d hours at %s does not fit a fare",
			domain.ErrValidation, BilledHours(d), rate)
	}
	return amount, nil
}

// Estimate returns the running charge of an open stay as of now.
// A negative interval (clock skew between writer and reader) is treated as
// zero hours and an amount too large for int64 saturates. Never use it for
// final billing.
func Estimate(entry, now time.Time, rate domain.Money) domain.Money {
	d := now.Sub(entry)
	if d < 0 {
		d = 0
	}
	if rate < 0 {
		return 0
	}
	amount, ok := rate.TimesChecked(BilledHours(d))
	if !ok {
		return domain.Money(math.MaxInt64)
	}
	return amount
}

// Policy holds the single facility-wide hourly rate. It is safe for
// concurrent use; SetHourlyRate affects every later Compute/Estimate call
// made through it, never stays that are already closed.
type Policy struct {
	rate     atomic.Int64
	currency string
}

// NewPolicy constructs a Policy with the given rate and ISO currency code.
func NewPolicy(rate domain.Money, currency string) *Policy {
	p := &Policy{currency: currency}
	p.rate.Store(int64(rate))
	return p
}

// HourlyRate returns the rate currently in force.
func (p *Policy) HourlyRate() domain.Money {
	return domain.Money(p.rate.Load())
}

// SetHourlyRate replaces the rate. Rates rejected by CheckRate leave the
// current rate in force.
func (p *Policy) SetHourlyRate(rate domain.Money) error {
	if err := CheckRate(rate); err != nil {
		return fmt.Errorf("fare.Policy.SetHourlyRate: %w", err)
	}
	p.rate.Store(int64(rate))
	return nil
}

// Currency returns the ISO currency code fares are expressed in.
func (p *Policy) Currency() string {
	return p.currency
}

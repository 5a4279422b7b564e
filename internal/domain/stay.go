// Package domain contains the core data types for the parking ledger.
// It is imported by every other internal package (fare, ledger, repo,
// service, handler) and holds no business logic beyond value helpers.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StayStatus is the lifecycle state of a Stay.
type StayStatus string

const (
	StayOpen   StayStatus = "open"
	StayClosed StayStatus = "closed"
)

// Stay is one vehicle's occupancy record from entry to exit.
//
// ExitTime and Fare are nil while the vehicle is still parked and are set
// together, exactly once, when the stay is closed. HourlyRate is the rate the
// fare was computed at; it may be nil on stays archived before it was kept.
type Stay struct {
	ID         uuid.UUID
	Plate      Plate
	EntryTime  time.Time
	ExitTime   *time.Time
	Fare       *Money
	HourlyRate *Money
}

// IsOpen reports whether the vehicle is still parked.
func (s Stay) IsOpen() bool {
	return s.ExitTime == nil
}

// Status returns StayOpen or StayClosed.
func (s Stay) Status() StayStatus {
	if s.IsOpen() {
		return StayOpen
	}
	return StayClosed
}

// Closed returns a copy of s with exit time, billed rate and fare set.
// The receiver is not modified.
func (s Stay) Closed(exit time.Time, rate, fare Money) Stay {
	s.ExitTime = &exit
	s.Fare = &fare
	s.HourlyRate = &rate
	return s
}

// ParkedStay is an open stay together with its live figures as of the moment
// the view was built. Estimate is informational; the final fare is only fixed
// when the stay is closed.
type ParkedStay struct {
	Stay     Stay
	Elapsed  time.Duration
	Estimate Money
}

// FormatElapsed renders a duration as "Xh Ym" for occupancy views.
// Negative durations (clock skew) render as "0h 0m".
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int64(d / time.Hour)
	m := int64((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%dh %dm", h, m)
}

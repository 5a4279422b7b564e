package handler

import (
	"time"

	"github.com/google/uuid"
	"gopkg.in/guregu/null.v4"

	"github.com/pkordes/parking-ledger/internal/domain"
)

// Stay is the JSON representation of a domain.Stay.
// exit_time, fare and hourly_rate are null while the vehicle is parked;
// hourly_rate is also null on stays archived before it was recorded.
type Stay struct {
	ID         uuid.UUID   `json:"id"`
	Plate      string      `json:"plate"`
	EntryTime  time.Time   `json:"entry_time"`
	ExitTime   null.Time   `json:"exit_time"`
	Fare       null.String `json:"fare"`
	HourlyRate null.String `json:"hourly_rate"`
	Status     string      `json:"status"`
}

// ParkedStay is an open stay plus its live figures.
type ParkedStay struct {
	Stay
	Elapsed        string `json:"elapsed"`
	ElapsedSeconds int64  `json:"elapsed_seconds"`
	Estimate       string `json:"estimate"`
}

// StayEnvelope wraps a single stay, as returned by PATCH /vehicles/{plate}/exit.
type StayEnvelope struct {
	Stay Stay `json:"stay"`
}

// Pagination describes the page returned by a list endpoint.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// StayList is the body of GET /stays.
type StayList struct {
	Data       []Stay     `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// ParkedList is the body of GET /vehicles/parked.
type ParkedList struct {
	Data  []ParkedStay `json:"data"`
	Count int          `json:"count"`
}

// RateResponse is the body of GET /rate.
type RateResponse struct {
	HourlyRate string `json:"hourly_rate"`
	Currency   string `json:"currency"`
}

// StayEvent is one message on the GET /events stream.
type StayEvent struct {
	Kind       string    `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
	Stay       Stay      `json:"stay"`
}

// stayToResponse maps a domain.Stay to its JSON shape.
func stayToResponse(s domain.Stay) Stay {
	out := Stay{
		ID:        s.ID,
		Plate:     s.Plate.String(),
		EntryTime: s.EntryTime,
		ExitTime:  null.TimeFromPtr(s.ExitTime),
		Status:    string(s.Status()),
	}
	if s.Fare != nil {
		out.Fare = null.StringFrom(s.Fare.String())
	}
	if s.HourlyRate != nil {
		out.HourlyRate = null.StringFrom(s.HourlyRate.String())
	}
	return out
}

func staysToResponse(stays []domain.Stay) []Stay {
	out := make([]Stay, len(stays))
	for i, s := range stays {
		out[i] = stayToResponse(s)
	}
	return out
}

func parkedToResponse(p domain.ParkedStay) ParkedStay {
	elapsed := p.Elapsed
	if elapsed < 0 {
		elapsed = 0
	}
	return ParkedStay{
		Stay:           stayToResponse(p.Stay),
		Elapsed:        domain.FormatElapsed(p.Elapsed),
		ElapsedSeconds: int64(elapsed / time.Second),
		Estimate:       p.Estimate.String(),
	}
}

func eventToResponse(ev domain.StayEvent) StayEvent {
	return StayEvent{
		Kind:       string(ev.Kind),
		OccurredAt: ev.OccurredAt,
		Stay:       stayToResponse(ev.Stay),
	}
}

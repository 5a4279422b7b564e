package domain

import "time"

// StayEventKind names the transition that produced a StayEvent.
type StayEventKind string

const (
	EventVehicleEntered StayEventKind = "vehicle_entered"
	EventVehicleExited  StayEventKind = "vehicle_exited"
)

// StayEvent is published after a successful ledger transition. It carries the
// affected Stay as returned by the ledger so subscribers never re-read state.
type StayEvent struct {
	Kind       StayEventKind
	Stay       Stay
	OccurredAt time.Time
}

package appointment

import (
	"time"

	"github.com/hackgods/telehealth-scheduling/internal/schederr"
)

// Policy carries the per-doctor parameters the transition guards need.
type Policy struct {
	Location     *time.Location
	CancelCutoff time.Duration
}

type transition struct {
	from, to AppointmentStatus
}

type guard func(a *Appointment, now time.Time, p Policy) error

var transitions = map[transition]guard{
	{StatusPending, StatusConfirmed}:   nil,
	{StatusPending, StatusCancelled}:   nil,
	{StatusConfirmed, StatusCompleted}: afterEnd,
	{StatusConfirmed, StatusNoShow}:    afterEnd,
	{StatusConfirmed, StatusCancelled}: beforeCutoff,
}

func afterEnd(a *Appointment, now time.Time, p Policy) error {
	if now.Before(a.EndsAt(p.Location)) {
		return schederr.New(schederr.KindIllegalTransition, "lifecycle",
			"appointment %s has not ended yet", a.ID)
	}
	return nil
}

func beforeCutoff(a *Appointment, now time.Time, p Policy) error {
	if !now.Before(a.StartsAt(p.Location).Add(-p.CancelCutoff)) {
		return schederr.New(schederr.KindIllegalTransition, "lifecycle",
			"confirmed appointments cannot be cancelled within %s of start", p.CancelCutoff)
	}
	return nil
}

// CanTransition reports whether from -> to is in the transition table, ignoring guards.
func CanTransition(from, to AppointmentStatus) bool {
	_, ok := transitions[transition{from, to}]
	return ok
}

// checkTransition validates moving a to status to at now.
func checkTransition(a *Appointment, to AppointmentStatus, now time.Time, p Policy) error {
	if a.Status == StatusCancelled && to == StatusCancelled {
		return schederr.New(schederr.KindAlreadyCancelled, "lifecycle", "appointment %s is already cancelled", a.ID)
	}
	if a.Status.Terminal() {
		return schederr.New(schederr.KindIllegalTransition, "lifecycle",
			"appointment %s is %s and cannot change", a.ID, a.Status)
	}
	g, ok := transitions[transition{a.Status, to}]
	if !ok {
		return schederr.New(schederr.KindIllegalTransition, "lifecycle",
			"cannot move appointment %s from %s to %s", a.ID, a.Status, to)
	}
	if g == nil {
		return nil
	}
	return g(a, now, p)
}

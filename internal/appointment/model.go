package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/clinictime"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusNoShow    AppointmentStatus = "no_show"
	StatusCancelled AppointmentStatus = "cancelled"
)

// ActiveStatuses occupy the doctor's calendar.
var ActiveStatuses = []AppointmentStatus{StatusPending, StatusConfirmed}

func (s AppointmentStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusNoShow || s == StatusCancelled
}

func (s AppointmentStatus) Valid() bool {
	return s.Active() || s.Terminal()
}

type Mode string

const (
	ModeInPerson Mode = "in_person"
	ModeVideo    Mode = "video"
	ModePhone    Mode = "phone"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeInPerson, ModeVideo, ModePhone:
		return true
	}
	return false
}

// ReasonPendingExpired is the cancellation reason written by the pending-timeout sweeper.
const ReasonPendingExpired = "pending_expired"

type Appointment struct {
	ID                 uuid.UUID
	DoctorID           uuid.UUID
	PatientID          uuid.UUID
	Date               clinictime.LocalDate
	Interval           clinictime.Interval
	Mode               Mode
	Reason             string
	DoctorNotes        string
	Status             AppointmentStatus
	CancellationReason string
	CancelledAt        *time.Time
	ExpiresAt          *time.Time
	Metadata           map[string]string
	Version            int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Clone returns a deep copy so callers can mutate it without touching stored state.
func (a *Appointment) Clone() *Appointment {
	c := *a
	if a.CancelledAt != nil {
		t := *a.CancelledAt
		c.CancelledAt = &t
	}
	if a.ExpiresAt != nil {
		t := *a.ExpiresAt
		c.ExpiresAt = &t
	}
	if a.Metadata != nil {
		c.Metadata = make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// StartsAt and EndsAt place the wall-clock interval on the timeline of loc.
func (a *Appointment) StartsAt(loc *time.Location) time.Time {
	return a.Date.At(a.Interval.Start, loc)
}

func (a *Appointment) EndsAt(loc *time.Location) time.Time {
	return a.Date.At(a.Interval.End, loc)
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/telehealth-scheduling/internal/clinictime"
)

type EventType string

const (
	EventAppointmentCreated     EventType = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed   EventType = "APPOINTMENT_CONFIRMED"
	EventAppointmentRescheduled EventType = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCancelled   EventType = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted   EventType = "APPOINTMENT_COMPLETED"
	EventAppointmentNoShow      EventType = "APPOINTMENT_NO_SHOW"
)

// Event is the payload of every lifecycle hook.
type Event struct {
	Type          EventType            `json:"type"`
	AppointmentID uuid.UUID            `json:"appointmentId"`
	DoctorID      uuid.UUID            `json:"doctorId"`
	PatientID     uuid.UUID            `json:"patientId"`
	Date          clinictime.LocalDate `json:"date"`
	Interval      clinictime.Interval  `json:"interval"`
	Status        AppointmentStatus    `json:"status"`
	OccurredAt    time.Time            `json:"occurredAt"`

	Mode             Mode                  `json:"mode,omitempty"`
	Timezone         string                `json:"timezone,omitempty"`
	Reason           string                `json:"reason,omitempty"`
	PreviousDate     *clinictime.LocalDate `json:"previousDate,omitempty"`
	PreviousInterval *clinictime.Interval  `json:"previousInterval,omitempty"`
	Fee              *decimal.Decimal      `json:"fee,omitempty"`
}

// Publisher delivers lifecycle events. Publish must not block on delivery and its
// failures never affect the appointment write that produced the event.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

type PublisherFunc func(ctx context.Context, ev Event)

func (f PublisherFunc) Publish(ctx context.Context, ev Event) { f(ctx, ev) }

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) {}

func newEvent(t EventType, a *Appointment, at time.Time) Event {
	return Event{
		Type:          t,
		AppointmentID: a.ID,
		DoctorID:      a.DoctorID,
		PatientID:     a.PatientID,
		Date:          a.Date,
		Interval:      a.Interval,
		Status:        a.Status,
		OccurredAt:    at,
		Mode:          a.Mode,
	}
}

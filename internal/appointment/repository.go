package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/clinictime"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrOverlap             = errors.New("interval overlaps an active appointment")
	ErrVersionConflict     = errors.New("appointment was modified concurrently")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ListForDoctor returns the doctor's appointments on [from, to] with one of statuses
	// (all statuses when empty), ordered by date and start.
	ListForDoctor(ctx context.Context, doctorID uuid.UUID, from, to clinictime.LocalDate, statuses []AppointmentStatus) ([]Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	// Create inserts a in one transaction, failing with ErrOverlap if an active
	// appointment of the same doctor overlaps it.
	Create(ctx context.Context, a *Appointment) (*Appointment, error)

	// Update writes a if the stored version still equals a.Version, bumping it.
	// Active appointments are re-checked for overlap excluding themselves.
	Update(ctx context.Context, a *Appointment) (*Appointment, error)

	// Expiry worker: pending appointments whose ExpiresAt is at or before now
	FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

// BookingSource adapts a Repository to the resolver's view of live bookings.
type BookingSource struct {
	repo Repository
}

func NewBookingSource(repo Repository) BookingSource {
	return BookingSource{repo: repo}
}

func (b BookingSource) ActiveBookings(ctx context.Context, doctorID uuid.UUID, from, to clinictime.LocalDate) ([]availability.Booking, error) {
	appts, err := b.repo.ListForDoctor(ctx, doctorID, from, to, ActiveStatuses)
	if err != nil {
		return nil, err
	}
	out := make([]availability.Booking, 0, len(appts))
	for _, a := range appts {
		out = append(out, availability.Booking{
			AppointmentID: a.ID,
			Date:          a.Date,
			Interval:      a.Interval,
		})
	}
	return out, nil
}

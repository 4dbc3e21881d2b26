package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/telehealth-scheduling/internal/clinictime"
	"github.com/hackgods/telehealth-scheduling/internal/schederr"
)

const (
	DefaultSlotGrainMinutes       = 30
	DefaultHorizonDays            = 90
	DefaultAppointmentDuration    = 30
	DefaultCancelCutoff           = 2 * time.Hour
	DefaultPendingTimeout         = 30 * time.Minute
	defaultTimezoneWhenUnassigned = "UTC"
)

var ErrProfileNotFound = errors.New("schedule profile not found")

// Profile carries a doctor's scheduling parameters.
type Profile struct {
	DoctorID               uuid.UUID
	Timezone               string
	SlotGrainMinutes       int
	LeadTime               time.Duration
	HorizonDays            int
	DefaultDurationMinutes int
	// Zero CancelCutoff or PendingTimeout inherits the service-wide default.
	CancelCutoff           time.Duration
	PendingTimeout         time.Duration
	ConsultationFee        decimal.Decimal
	Active                 bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// DefaultProfile returns an active profile with the documented defaults.
func DefaultProfile(doctorID uuid.UUID, timezone string) Profile {
	if timezone == "" {
		timezone = defaultTimezoneWhenUnassigned
	}
	return Profile{
		DoctorID:               doctorID,
		Timezone:               timezone,
		SlotGrainMinutes:       DefaultSlotGrainMinutes,
		HorizonDays:            DefaultHorizonDays,
		DefaultDurationMinutes: DefaultAppointmentDuration,
		CancelCutoff:           DefaultCancelCutoff,
		PendingTimeout:         DefaultPendingTimeout,
		ConsultationFee:        decimal.Zero,
		Active:                 true,
	}
}

func (p Profile) Location() (*time.Location, error) {
	return clinictime.LoadLocation(p.Timezone)
}

func (p Profile) Validate() error {
	const op = "profile.validate"
	if p.DoctorID == uuid.Nil {
		return schederr.Validation(op, "doctor id is required")
	}
	if _, err := p.Location(); err != nil {
		return schederr.Validation(op, "unknown timezone %q", p.Timezone)
	}
	if p.SlotGrainMinutes <= 0 || clinictime.MinutesPerDay%p.SlotGrainMinutes != 0 {
		return schederr.Validation(op, "slot grain %d must divide the %d minutes of a day", p.SlotGrainMinutes, clinictime.MinutesPerDay)
	}
	if p.DefaultDurationMinutes <= 0 || p.DefaultDurationMinutes%p.SlotGrainMinutes != 0 {
		return schederr.Validation(op, "default duration %d must be a positive multiple of grain %d",
			p.DefaultDurationMinutes, p.SlotGrainMinutes)
	}
	if p.HorizonDays < 1 {
		return schederr.Validation(op, "horizon must be at least one day")
	}
	if p.LeadTime < 0 || p.CancelCutoff < 0 {
		return schederr.Validation(op, "lead time and cancel cutoff must not be negative")
	}
	if p.PendingTimeout < 0 {
		return schederr.Validation(op, "pending timeout must not be negative")
	}
	// stored as whole minutes
	for name, d := range map[string]time.Duration{
		"lead time":       p.LeadTime,
		"cancel cutoff":   p.CancelCutoff,
		"pending timeout": p.PendingTimeout,
	} {
		if d%time.Minute != 0 {
			return schederr.Validation(op, "%s %s must be a whole number of minutes", name, d)
		}
	}
	if p.ConsultationFee.IsNegative() {
		return schederr.Validation(op, "consultation fee must not be negative")
	}
	if !p.ConsultationFee.Equal(p.ConsultationFee.Truncate(2)) {
		return schederr.Validation(op, "consultation fee %s has more than two decimal places", p.ConsultationFee)
	}
	return nil
}

// Weekly is the recurring template: each weekday maps to increasing, disjoint intervals.
type Weekly map[time.Weekday][]clinictime.Interval

func (w Weekly) Validate() error {
	for wd, ivs := range w {
		if wd < time.Sunday || wd > time.Saturday {
			return schederr.Validation("weekly.validate", "invalid weekday %d", int(wd))
		}
		if err := clinictime.ValidateDisjoint(ivs); err != nil {
			return schederr.Validation("weekly.validate", "%s: %v", wd, err)
		}
	}
	return nil
}

// Override blocks parts of a single date.
type Override struct {
	DoctorID  uuid.UUID
	Date      clinictime.LocalDate
	Blocked   []clinictime.Interval
	Reason    string
	UpdatedAt time.Time
}

func (o Override) Validate() error {
	if o.Date.IsZero() {
		return schederr.Validation("override.validate", "date is required")
	}
	if err := clinictime.ValidateDisjoint(o.Blocked); err != nil {
		return schederr.Validation("override.validate", "%v", err)
	}
	return nil
}

// Booking is an active appointment's footprint on a doctor's day.
type Booking struct {
	AppointmentID uuid.UUID
	Date          clinictime.LocalDate
	Interval      clinictime.Interval
}

type ScheduleStore interface {
	GetProfile(ctx context.Context, doctorID uuid.UUID) (Profile, error)
	GetWeekly(ctx context.Context, doctorID uuid.UUID) (Weekly, error)
	GetOverrides(ctx context.Context, doctorID uuid.UUID, from, to clinictime.LocalDate) ([]Override, error)
}

// BookingSource lists pending and confirmed appointments for a doctor over an inclusive date range.
type BookingSource interface {
	ActiveBookings(ctx context.Context, doctorID uuid.UUID, from, to clinictime.LocalDate) ([]Booking, error)
}

// Day is the effective free set of one date.
type Day struct {
	Date clinictime.LocalDate
	Free []clinictime.Interval
}

type Result struct {
	Profile  Profile
	Location *time.Location
	Now      time.Time
	Days     []Day
}

func (r *Result) Day(date clinictime.LocalDate) (Day, bool) {
	for _, d := range r.Days {
		if d.Date == date {
			return d, true
		}
	}
	return Day{}, false
}

// Today is the clinic-local date of the instant the result was computed at.
func (r *Result) Today() clinictime.LocalDate {
	return clinictime.DateOf(r.Now, r.Location)
}

func (d Day) String() string {
	return fmt.Sprintf("%s %v", d.Date, d.Free)
}

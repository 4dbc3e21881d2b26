package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/appointment"
	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/clinictime"
	"github.com/hackgods/telehealth-scheduling/internal/slots"
)

type CreateAppointmentRequest struct {
	DoctorID  string            `json:"doctor_id" validate:"required,uuid"`
	PatientID string            `json:"patient_id" validate:"required,uuid"`
	Date      string            `json:"date" validate:"required"`
	Start     string            `json:"start" validate:"required"`
	End       string            `json:"end" validate:"required"`
	Mode      string            `json:"mode" validate:"omitempty,oneof=in_person video phone"`
	Reason    string            `json:"reason" validate:"max=2000"`
	Metadata  map[string]string `json:"metadata"`
}

type RescheduleAppointmentRequest struct {
	Date  string `json:"date" validate:"required"`
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=confirmed completed no_show"`
	Notes  string `json:"notes" validate:"max=2000"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID         `json:"id"`
	DoctorID           uuid.UUID         `json:"doctor_id"`
	PatientID          uuid.UUID         `json:"patient_id"`
	Date               string            `json:"date"`
	Start              string            `json:"start"`
	End                string            `json:"end"`
	Mode               string            `json:"mode"`
	Reason             string            `json:"reason,omitempty"`
	DoctorNotes        string            `json:"doctor_notes,omitempty"`
	Status             string            `json:"status"`
	CancellationReason string            `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time        `json:"cancelled_at,omitempty"`
	ExpiresAt          *time.Time        `json:"expires_at,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	Version            int               `json:"version"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		DoctorID:           a.DoctorID,
		PatientID:          a.PatientID,
		Date:               a.Date.String(),
		Start:              a.Interval.Start.String(),
		End:                a.Interval.End.String(),
		Mode:               string(a.Mode),
		Reason:             a.Reason,
		DoctorNotes:        a.DoctorNotes,
		Status:             string(a.Status),
		CancellationReason: a.CancellationReason,
		CancelledAt:        a.CancelledAt,
		ExpiresAt:          a.ExpiresAt,
		Metadata:           a.Metadata,
		Version:            a.Version,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func toAppointmentList(list []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, len(list))
	for i := range list {
		out[i] = toAppointmentResponse(&list[i])
	}
	return out
}

type DaySlotsResponse struct {
	Date  string   `json:"date"`
	Free  []string `json:"free"`
	Slots []string `json:"slots"`
}

type SlotsResponse struct {
	DoctorID        uuid.UUID          `json:"doctor_id"`
	Timezone        string             `json:"timezone"`
	GrainMinutes    int                `json:"grain_minutes"`
	DurationMinutes int                `json:"duration_minutes"`
	Days            []DaySlotsResponse `json:"days"`
}

func toSlotsResponse(l *appointment.SlotListing) SlotsResponse {
	days := make([]DaySlotsResponse, len(l.Days))
	for i, d := range l.Days {
		days[i] = DaySlotsResponse{
			Date:  d.Date.String(),
			Free:  slots.Format(d.Free),
			Slots: slots.Format(d.Slots),
		}
	}
	return SlotsResponse{
		DoctorID:        l.DoctorID,
		Timezone:        l.Timezone,
		GrainMinutes:    l.GrainMinutes,
		DurationMinutes: l.DurationMinutes,
		Days:            days,
	}
}

type ProfileRequest struct {
	Timezone               string `json:"timezone"`
	SlotGrainMinutes       int    `json:"slot_grain_minutes" validate:"gte=0,lte=1440"`
	LeadTimeMinutes        int    `json:"lead_time_minutes" validate:"gte=0"`
	HorizonDays            int    `json:"horizon_days" validate:"gte=0,lte=730"`
	DefaultDurationMinutes int    `json:"default_duration_minutes" validate:"gte=0,lte=1440"`
	CancelCutoffMinutes    int    `json:"cancel_cutoff_minutes" validate:"gte=0"`
	PendingTimeoutMinutes  int    `json:"pending_timeout_minutes" validate:"gte=0"`
	ConsultationFee        string `json:"consultation_fee" validate:"omitempty,numeric"`
	Active                 *bool  `json:"active"`
}

type ProfileResponse struct {
	DoctorID               uuid.UUID `json:"doctor_id"`
	Timezone               string    `json:"timezone"`
	SlotGrainMinutes       int       `json:"slot_grain_minutes"`
	LeadTimeMinutes        int       `json:"lead_time_minutes"`
	HorizonDays            int       `json:"horizon_days"`
	DefaultDurationMinutes int       `json:"default_duration_minutes"`
	CancelCutoffMinutes    int       `json:"cancel_cutoff_minutes"`
	PendingTimeoutMinutes  int       `json:"pending_timeout_minutes"`
	ConsultationFee        string    `json:"consultation_fee"`
	Active                 bool      `json:"active"`
	UpdatedAt              time.Time `json:"updated_at"`
}

func toProfileResponse(p availability.Profile) ProfileResponse {
	return ProfileResponse{
		DoctorID:               p.DoctorID,
		Timezone:               p.Timezone,
		SlotGrainMinutes:       p.SlotGrainMinutes,
		LeadTimeMinutes:        int(p.LeadTime / time.Minute),
		HorizonDays:            p.HorizonDays,
		DefaultDurationMinutes: p.DefaultDurationMinutes,
		CancelCutoffMinutes:    int(p.CancelCutoff / time.Minute),
		PendingTimeoutMinutes:  int(p.PendingTimeout / time.Minute),
		ConsultationFee:        p.ConsultationFee.StringFixed(2),
		Active:                 p.Active,
		UpdatedAt:              p.UpdatedAt,
	}
}

// WeeklyAvailability maps lower-case weekday names to "HH:MM-HH:MM" intervals.
type WeeklyAvailability struct {
	Days map[string][]string `json:"days" validate:"required"`
}

func toWeeklyResponse(w availability.Weekly) WeeklyAvailability {
	out := WeeklyAvailability{Days: make(map[string][]string, len(w))}
	for day, ivs := range w {
		out.Days[weekdayName(day)] = slots.Format(ivs)
	}
	return out
}

type OverrideRequest struct {
	Blocked []string `json:"blocked"`
	Reason  string   `json:"reason" validate:"max=500"`
}

type OverrideResponse struct {
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"date"`
	Blocked   []string  `json:"blocked"`
	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toOverrideResponse(o availability.Override) OverrideResponse {
	return OverrideResponse{
		DoctorID:  o.DoctorID,
		Date:      o.Date.String(),
		Blocked:   slots.Format(o.Blocked),
		Reason:    o.Reason,
		UpdatedAt: o.UpdatedAt,
	}
}

func parseIntervals(raw []string) ([]clinictime.Interval, error) {
	out := make([]clinictime.Interval, 0, len(raw))
	for _, s := range raw {
		iv, err := clinictime.ParseInterval(s)
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, nil
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

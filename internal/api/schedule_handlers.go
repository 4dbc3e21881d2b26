package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/clinictime"
	"github.com/hackgods/telehealth-scheduling/internal/schedule"
	"github.com/hackgods/telehealth-scheduling/internal/schederr"
)

type scheduleHandler struct {
	svc      *schedule.Service
	validate *requestValidator
}

func (h *scheduleHandler) getProfile(w http.ResponseWriter, r *http.Request) {
	doctorID, err := pathUUID(r, "doctorID")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	p, err := h.svc.GetProfile(r.Context(), doctorID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

// putProfile creates or replaces the profile. Omitted numeric fields take the
// documented defaults.
func (h *scheduleHandler) putProfile(w http.ResponseWriter, r *http.Request) {
	doctorID, err := pathUUID(r, "doctorID")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req ProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	if err := h.validate.check(&req); err != nil {
		writeServiceError(w, err)
		return
	}

	p := availability.DefaultProfile(doctorID, "")
	// empty falls through to the service-wide default zone
	p.Timezone = req.Timezone
	if req.SlotGrainMinutes > 0 {
		p.SlotGrainMinutes = req.SlotGrainMinutes
	}
	if req.HorizonDays > 0 {
		p.HorizonDays = req.HorizonDays
	}
	if req.DefaultDurationMinutes > 0 {
		p.DefaultDurationMinutes = req.DefaultDurationMinutes
	}
	p.LeadTime = time.Duration(req.LeadTimeMinutes) * time.Minute
	p.CancelCutoff = time.Duration(req.CancelCutoffMinutes) * time.Minute
	p.PendingTimeout = time.Duration(req.PendingTimeoutMinutes) * time.Minute
	if req.ConsultationFee != "" {
		fee, err := decimal.NewFromString(req.ConsultationFee)
		if err != nil || fee.IsNegative() {
			writeServiceError(w, schederr.Validation("request", "consultation_fee must be a non-negative amount"))
			return
		}
		p.ConsultationFee = fee
	}
	if req.Active != nil {
		p.Active = *req.Active
	}

	saved, err := h.svc.SaveProfile(r.Context(), p)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(saved))
}

func (h *scheduleHandler) getWeekly(w http.ResponseWriter, r *http.Request) {
	doctorID, err := pathUUID(r, "doctorID")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	weekly, err := h.svc.GetWeekly(r.Context(), doctorID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWeeklyResponse(weekly))
}

func (h *scheduleHandler) putWeekly(w http.ResponseWriter, r *http.Request) {
	doctorID, err := pathUUID(r, "doctorID")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req WeeklyAvailability
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	if err := h.validate.check(&req); err != nil {
		writeServiceError(w, err)
		return
	}

	weekly := make(availability.Weekly, len(req.Days))
	for name, raw := range req.Days {
		day, err := clinictime.ParseWeekday(name)
		if err != nil {
			writeServiceError(w, schederr.Validation("request", "%v", err))
			return
		}
		ivs, err := parseIntervals(raw)
		if err != nil {
			writeServiceError(w, schederr.Validation("request", "%s: %v", name, err))
			return
		}
		weekly[day] = append(weekly[day], ivs...)
	}

	if err := h.svc.ReplaceWeekly(r.Context(), doctorID, weekly); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWeeklyResponse(weekly))
}

func (h *scheduleHandler) listOverrides(w http.ResponseWriter, r *http.Request) {
	doctorID, err := pathUUID(r, "doctorID")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	from, to, err := parseRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	list, err := h.svc.ListOverrides(r.Context(), doctorID, from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]OverrideResponse, len(list))
	for i, o := range list {
		out[i] = toOverrideResponse(o)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *scheduleHandler) putOverride(w http.ResponseWriter, r *http.Request) {
	doctorID, err := pathUUID(r, "doctorID")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	date, err := clinictime.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeServiceError(w, schederr.Validation("request", "%v", err))
		return
	}
	var req OverrideRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	if err := h.validate.check(&req); err != nil {
		writeServiceError(w, err)
		return
	}
	blocked, err := parseIntervals(req.Blocked)
	if err != nil {
		writeServiceError(w, schederr.Validation("request", "%v", err))
		return
	}

	saved, err := h.svc.PutOverride(r.Context(), availability.Override{
		DoctorID: doctorID,
		Date:     date,
		Blocked:  clinictime.Normalize(blocked),
		Reason:   strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOverrideResponse(saved))
}

func (h *scheduleHandler) deleteOverride(w http.ResponseWriter, r *http.Request) {
	doctorID, err := pathUUID(r, "doctorID")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	date, err := clinictime.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeServiceError(w, schederr.Validation("request", "%v", err))
		return
	}
	if err := h.svc.DeleteOverride(r.Context(), doctorID, date); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func weekdayName(d time.Weekday) string {
	return strings.ToLower(d.String())
}

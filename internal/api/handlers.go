package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/appointment"
	"github.com/hackgods/telehealth-scheduling/internal/clinictime"
	"github.com/hackgods/telehealth-scheduling/internal/schederr"
)

type appointmentHandler struct {
	svc      *appointment.Service
	validate *requestValidator
}

func (h *appointmentHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	if err := h.validate.check(&req); err != nil {
		writeServiceError(w, err)
		return
	}

	date, iv, err := parseSlot(req.Date, req.Start, req.End)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	appt, err := h.svc.CreateAppointment(r.Context(), appointment.CreateRequest{
		DoctorID:  uuid.MustParse(req.DoctorID),
		PatientID: uuid.MustParse(req.PatientID),
		Date:      date,
		Interval:  iv,
		Mode:      appointment.Mode(req.Mode),
		Reason:    req.Reason,
		Metadata:  req.Metadata,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *appointmentHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	appt, err := h.svc.GetAppointment(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// list serves ?patient_id=…[&limit&offset] and ?doctor_id=…&date=…[&to&status].
func (h *appointmentHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if raw := q.Get("patient_id"); raw != "" {
		patientID, err := uuid.Parse(raw)
		if err != nil {
			writeServiceError(w, schederr.Validation("request", "patient_id must be a valid UUID"))
			return
		}
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))
		list, err := h.svc.ListAppointmentsByPatient(r.Context(), patientID, limit, offset)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentList(list))
		return
	}

	if raw := q.Get("doctor_id"); raw != "" {
		doctorID, err := uuid.Parse(raw)
		if err != nil {
			writeServiceError(w, schederr.Validation("request", "doctor_id must be a valid UUID"))
			return
		}
		from, to, err := parseRange(q.Get("date"), q.Get("to"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		var statuses []appointment.AppointmentStatus
		for _, s := range q["status"] {
			statuses = append(statuses, appointment.AppointmentStatus(s))
		}
		list, err := h.svc.ListAppointmentsByDoctor(r.Context(), doctorID, from, to, statuses)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentList(list))
		return
	}

	writeError(w, http.StatusBadRequest, "validation_error", "patient_id or doctor_id is required")
}

func (h *appointmentHandler) availableSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	doctorID, err := uuid.Parse(q.Get("doctor_id"))
	if err != nil {
		writeServiceError(w, schederr.Validation("request", "doctor_id must be a valid UUID"))
		return
	}
	from, to, err := parseRange(q.Get("from"), q.Get("to"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	duration := 0
	if raw := q.Get("duration"); raw != "" {
		if duration, err = strconv.Atoi(raw); err != nil {
			writeServiceError(w, schederr.Validation("request", "duration must be a number of minutes"))
			return
		}
	}

	listing, err := h.svc.ListSlots(r.Context(), doctorID, from, to, duration)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotsResponse(listing))
}

func (h *appointmentHandler) reschedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req RescheduleAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	if err := h.validate.check(&req); err != nil {
		writeServiceError(w, err)
		return
	}
	date, iv, err := parseSlot(req.Date, req.Start, req.End)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	appt, err := h.svc.RescheduleAppointment(r.Context(), id, appointment.RescheduleRequest{Date: date, Interval: iv})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *appointmentHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req CancelAppointmentRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	if err := h.validate.check(&req); err != nil {
		writeServiceError(w, err)
		return
	}

	appt, err := h.svc.CancelAppointment(r.Context(), id, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *appointmentHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req UpdateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	if err := h.validate.check(&req); err != nil {
		writeServiceError(w, err)
		return
	}

	var appt *appointment.Appointment
	switch appointment.AppointmentStatus(req.Status) {
	case appointment.StatusConfirmed:
		appt, err = h.svc.OnPaymentCaptured(r.Context(), id)
	case appointment.StatusCompleted:
		appt, err = h.svc.OnDoctorMarkComplete(r.Context(), id, req.Notes)
	case appointment.StatusNoShow:
		appt, err = h.svc.OnDoctorMarkNoShow(r.Context(), id)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, schederr.Validation("request", "%s must be a valid UUID", name)
	}
	return id, nil
}

func parseSlot(date, start, end string) (clinictime.LocalDate, clinictime.Interval, error) {
	d, err := clinictime.ParseDate(date)
	if err != nil {
		return clinictime.LocalDate{}, clinictime.Interval{}, schederr.Validation("request", "%v", err)
	}
	iv, err := clinictime.ParseBounds(start, end)
	if err != nil {
		return clinictime.LocalDate{}, clinictime.Interval{}, schederr.Validation("request", "%v", err)
	}
	return d, iv, nil
}

// parseRange reads a required start date and an optional end date that defaults
// to the start.
func parseRange(fromRaw, toRaw string) (clinictime.LocalDate, clinictime.LocalDate, error) {
	if fromRaw == "" {
		return clinictime.LocalDate{}, clinictime.LocalDate{}, schederr.Validation("request", "a start date is required")
	}
	from, err := clinictime.ParseDate(fromRaw)
	if err != nil {
		return clinictime.LocalDate{}, clinictime.LocalDate{}, schederr.Validation("request", "%v", err)
	}
	to := from
	if toRaw != "" {
		if to, err = clinictime.ParseDate(toRaw); err != nil {
			return clinictime.LocalDate{}, clinictime.LocalDate{}, schederr.Validation("request", "%v", err)
		}
	}
	return from, to, nil
}

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telehealth-scheduling/internal/api"
	"github.com/hackgods/telehealth-scheduling/internal/appointment"
	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/clinictime"
	"github.com/hackgods/telehealth-scheduling/internal/config"
	"github.com/hackgods/telehealth-scheduling/internal/lock"
	"github.com/hackgods/telehealth-scheduling/internal/metrics"
	"github.com/hackgods/telehealth-scheduling/internal/schedule"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type fixture struct {
	doctor  uuid.UUID
	patient uuid.UUID
	handler http.Handler
}

func newFixture(t *testing.T, postgres, redis api.Pinger) *fixture {
	t.Helper()
	loc, err := clinictime.LoadLocation("Europe/Amsterdam")
	require.NoError(t, err)

	ctx := context.Background()
	store := schedule.NewMemoryStore()
	doctor := uuid.New()
	_, err = store.SaveProfile(ctx, availability.DefaultProfile(doctor, "Europe/Amsterdam"))
	require.NoError(t, err)
	require.NoError(t, store.ReplaceWeekly(ctx, doctor, availability.Weekly{
		time.Monday:  {clinictime.MustInterval("09:00-12:00")},
		time.Tuesday: {clinictime.MustInterval("09:00-17:00")},
	}))

	logger, _ := test.NewNullLogger()
	clock := clinictime.NewFixedClock(time.Date(2025, 3, 10, 9, 0, 0, 0, loc))
	repo := appointment.NewMemoryRepository()
	resolver := availability.NewResolver(store, appointment.NewBookingSource(repo), clock,
		availability.WithLogger(logger))
	cfg := config.Config{
		PendingTimeout: 30 * time.Minute,
		CancelCutoff:   2 * time.Hour,
		LockTTL:        5 * time.Second,
		LockAcquire:    2 * time.Second,
		StorageTimeout: time.Second,
	}
	m := metrics.New()

	return &fixture{
		doctor:  doctor,
		patient: uuid.New(),
		handler: api.NewRouter(api.RouterConfig{
			Appointments: appointment.NewService(repo, resolver, lock.NewLocal(), cfg,
				appointment.WithLogger(logger), appointment.WithMetrics(m)),
			Schedules: schedule.NewService(store, nil, schedule.Options{
				DefaultTimezone: "Europe/Amsterdam",
				StorageTimeout:  time.Second,
				Logger:          logger,
			}),
			Metrics:  m,
			Postgres: postgres,
			Redis:    redis,
			Logger:   logger,
			Env:      "test",
			Version:  "v0.0.0-test",
		}),
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (f *fixture) book(t *testing.T, date, start, end string) *httptest.ResponseRecorder {
	return f.do(t, http.MethodPost, "/appointments", api.CreateAppointmentRequest{
		DoctorID:  f.doctor.String(),
		PatientID: f.patient.String(),
		Date:      date,
		Start:     start,
		End:       end,
	})
}

func TestCreateAndConflict(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.book(t, "2025-03-10", "10:00", "10:30")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[api.AppointmentResponse](t, rec)
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, "video", created.Mode)
	assert.Equal(t, "10:00", created.Start)
	assert.NotNil(t, created.ExpiresAt)

	rec = f.book(t, "2025-03-10", "10:15", "10:45")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_unavailable", decode[api.ErrorResponse](t, rec).Error)

	rec = f.do(t, http.MethodGet, "/appointments/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decode[api.AppointmentResponse](t, rec).ID)
}

func TestCreateRejections(t *testing.T) {
	f := newFixture(t, nil, nil)

	tests := []struct {
		name   string
		date   string
		start  string
		end    string
		status int
		code   string
	}{
		{"outside hours", "2025-03-10", "13:00", "13:30", http.StatusConflict, "slot_unavailable"},
		{"past horizon", "2026-03-10", "10:00", "10:30", http.StatusUnprocessableEntity, "out_of_horizon"},
		{"bad date", "10/03/2025", "10:00", "10:30", http.StatusBadRequest, "validation_error"},
		{"inverted", "2025-03-10", "10:30", "10:00", http.StatusBadRequest, "validation_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.book(t, tt.date, tt.start, tt.end)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[api.ErrorResponse](t, rec).Error)
		})
	}

	rec := f.do(t, http.MethodPost, "/appointments", map[string]string{"doctor_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/appointments", map[string]string{"surprise": "field"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusAndCancel(t *testing.T) {
	f := newFixture(t, nil, nil)
	created := decode[api.AppointmentResponse](t, f.book(t, "2025-03-11", "14:00", "14:30"))
	base := "/appointments/" + created.ID.String()

	rec := f.do(t, http.MethodPost, base+"/status", api.UpdateStatusRequest{Status: "confirmed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "confirmed", decode[api.AppointmentResponse](t, rec).Status)

	rec = f.do(t, http.MethodPost, base+"/status", api.UpdateStatusRequest{Status: "completed"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "illegal_transition", decode[api.ErrorResponse](t, rec).Error)

	rec = f.do(t, http.MethodPost, base+"/status", api.UpdateStatusRequest{Status: "cancelled"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, base+"/cancel", api.CancelAppointmentRequest{Reason: "travel"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cancelled := decode[api.AppointmentResponse](t, rec)
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.Equal(t, "travel", cancelled.CancellationReason)

	rec = f.do(t, http.MethodPost, base+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_cancelled", decode[api.ErrorResponse](t, rec).Error)

	rec = f.do(t, http.MethodPost, "/appointments/"+uuid.NewString()+"/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/appointments/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRescheduleAndSlots(t *testing.T) {
	f := newFixture(t, nil, nil)
	created := decode[api.AppointmentResponse](t, f.book(t, "2025-03-10", "09:00", "09:30"))

	rec := f.do(t, http.MethodPost, "/appointments/"+created.ID.String()+"/reschedule",
		api.RescheduleAppointmentRequest{Date: "2025-03-10", Start: "11:30", End: "12:00"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	moved := decode[api.AppointmentResponse](t, rec)
	assert.Equal(t, "11:30", moved.Start)
	assert.Equal(t, created.ID, moved.ID)

	rec = f.do(t, http.MethodGet, "/appointments/slots/available?doctor_id="+f.doctor.String()+"&from=2025-03-10", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	listing := decode[api.SlotsResponse](t, rec)
	assert.Equal(t, "Europe/Amsterdam", listing.Timezone)
	assert.Equal(t, 30, listing.DurationMinutes)
	require.Len(t, listing.Days, 1)
	assert.Equal(t, []string{"09:00-11:30"}, listing.Days[0].Free)
	assert.Equal(t, []string{"09:00-09:30", "09:30-10:00", "10:00-10:30", "10:30-11:00", "11:00-11:30"}, listing.Days[0].Slots)

	rec = f.do(t, http.MethodGet, "/appointments/slots/available?doctor_id="+f.doctor.String()+"&from=2025-03-10&duration=45", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/appointments?doctor_id="+f.doctor.String()+"&date=2025-03-10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.AppointmentResponse](t, rec), 1)

	rec = f.do(t, http.MethodGet, "/appointments", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScheduleAdministration(t *testing.T) {
	f := newFixture(t, nil, nil)
	doctor := uuid.NewString()
	base := "/doctors/" + doctor

	rec := f.do(t, http.MethodGet, base+"/profile", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPut, base+"/profile", api.ProfileRequest{
		SlotGrainMinutes: 15,
		LeadTimeMinutes:  60,
		ConsultationFee:  "60.5",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	profile := decode[api.ProfileResponse](t, rec)
	assert.Equal(t, "Europe/Amsterdam", profile.Timezone)
	assert.Equal(t, 15, profile.SlotGrainMinutes)
	assert.Equal(t, 60, profile.LeadTimeMinutes)
	assert.Equal(t, 90, profile.HorizonDays)
	assert.Equal(t, "60.50", profile.ConsultationFee)
	assert.True(t, profile.Active)

	for _, bad := range []api.ProfileRequest{
		{SlotGrainMinutes: 45, DefaultDurationMinutes: 90},
		{ConsultationFee: "10.005"},
	} {
		rec = f.do(t, http.MethodPut, base+"/profile", bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodPut, base+"/availability", api.WeeklyAvailability{Days: map[string][]string{
		"monday": {"09:00-12:00"},
		"fri":    {"13:00-17:00"},
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, base+"/availability", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	weekly := decode[api.WeeklyAvailability](t, rec)
	assert.Equal(t, map[string][]string{
		"monday": {"09:00-12:00"},
		"friday": {"13:00-17:00"},
	}, weekly.Days)

	rec = f.do(t, http.MethodPut, base+"/availability", api.WeeklyAvailability{Days: map[string][]string{
		"someday": {"09:00-12:00"},
	}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, base+"/unavailability/2025-03-14", api.OverrideRequest{
		Blocked: []string{"13:00-15:00"},
		Reason:  "conference",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, base+"/unavailability?from=2025-03-10&to=2025-03-16", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	overrides := decode[[]api.OverrideResponse](t, rec)
	require.Len(t, overrides, 1)
	assert.Equal(t, "2025-03-14", overrides[0].Date)
	assert.Equal(t, []string{"13:00-15:00"}, overrides[0].Blocked)

	rec = f.do(t, http.MethodDelete, base+"/unavailability/2025-03-14", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, base+"/unavailability?from=2025-03-10&to=2025-03-16", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]api.OverrideResponse](t, rec))
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name     string
		postgres api.Pinger
		redis    api.Pinger
		status   int
		want     string
	}{
		{"all up", stubPinger{}, stubPinger{}, http.StatusOK, "ok"},
		{"memory mode", nil, nil, http.StatusOK, "ok"},
		{"redis down", stubPinger{}, stubPinger{err: errors.New("refused")}, http.StatusOK, "degraded"},
		{"postgres down", stubPinger{err: errors.New("refused")}, stubPinger{}, http.StatusServiceUnavailable, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.postgres, tt.redis)
			rec := f.do(t, http.MethodGet, "/health/ready", nil)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.want, decode[api.ReadinessResponse](t, rec).Status)
		})
	}
}

func TestRequestIDAndMetrics(t *testing.T) {
	f := newFixture(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))

	rec = f.do(t, http.MethodGet, "/health/live", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	f.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), nil)

	rec = f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "http_requests_total")
	assert.Contains(t, body, `route="/appointments/{id}"`)
}

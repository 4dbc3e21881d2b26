package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/hackgods/telehealth-scheduling/internal/appointment"
	"github.com/hackgods/telehealth-scheduling/internal/clinictime"
)

type MockSubscriber struct {
	mock.Mock
}

func (m *MockSubscriber) Name() string { return "mock" }

func (m *MockSubscriber) Handle(ctx context.Context, ev appointment.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Hold(ctx context.Context, appointmentID, patientID uuid.UUID, amount decimal.Decimal) error {
	return m.Called(ctx, appointmentID, patientID, amount).Error(0)
}

func (m *MockGateway) Release(ctx context.Context, appointmentID uuid.UUID) error {
	return m.Called(ctx, appointmentID).Error(0)
}

type MockPusher struct {
	mock.Mock
}

func (m *MockPusher) Publish(message *expo.PushMessage) (expo.PushResponse, error) {
	args := m.Called(message)
	return args.Get(0).(expo.PushResponse), args.Error(1)
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []*gomail.Message
	err  error
}

func (f *fakeMailer) DialAndSend(m ...*gomail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m...)
	return nil
}

func sampleEvent(t appointment.EventType) appointment.Event {
	fee := decimal.RequireFromString("45.00")
	return appointment.Event{
		Type:          t,
		AppointmentID: uuid.New(),
		DoctorID:      uuid.New(),
		PatientID:     uuid.New(),
		Date:          clinictime.MustDate("2025-03-11"),
		Interval:      clinictime.MustInterval("10:00-10:30"),
		Status:        appointment.StatusPending,
		OccurredAt:    time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		Timezone:      "Europe/Amsterdam",
		Fee:           &fee,
	}
}

func TestDispatcherDeliversWithRetry(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sub := &MockSubscriber{}
	ev := sampleEvent(appointment.EventAppointmentCreated)

	sub.On("Handle", mock.Anything, ev).Return(errors.New("smtp timeout")).Twice()
	sub.On("Handle", mock.Anything, ev).Return(nil).Once()

	d := NewDispatcher(Options{Workers: 1, Backoff: time.Millisecond, Logger: logger}, sub)
	d.Start(context.Background())
	d.Publish(context.Background(), ev)
	require.NoError(t, d.Close(context.Background()))

	sub.AssertNumberOfCalls(t, "Handle", 3)
	sub.AssertExpectations(t)
}

func TestDispatcherGivesUpAfterMaxAttempts(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sub := &MockSubscriber{}
	ev := sampleEvent(appointment.EventAppointmentConfirmed)
	sub.On("Handle", mock.Anything, ev).Return(errors.New("down"))

	d := NewDispatcher(Options{Workers: 1, MaxAttempts: 2, Backoff: time.Millisecond, Logger: logger}, sub)
	d.Start(context.Background())
	d.Publish(context.Background(), ev)
	require.NoError(t, d.Close(context.Background()))

	sub.AssertNumberOfCalls(t, "Handle", 2)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "lifecycle hook failed", hook.LastEntry().Message)
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sub := &MockSubscriber{}
	sub.On("Handle", mock.Anything, mock.Anything).Return(nil)

	d := NewDispatcher(Options{Workers: 1, QueueSize: 1, Logger: logger}, sub)
	d.Publish(context.Background(), sampleEvent(appointment.EventAppointmentCreated))
	d.Publish(context.Background(), sampleEvent(appointment.EventAppointmentCreated))
	require.Len(t, hook.AllEntries(), 1)
	assert.Contains(t, hook.LastEntry().Message, "queue full")

	d.Start(context.Background())
	require.NoError(t, d.Close(context.Background()))
	sub.AssertNumberOfCalls(t, "Handle", 1)

	d.Publish(context.Background(), sampleEvent(appointment.EventAppointmentCreated))
	assert.Contains(t, hook.LastEntry().Message, "dispatcher closed")
}

func TestEmailNotifier(t *testing.T) {
	dir := NewMemoryDirectory()
	mailer := &fakeMailer{}
	n := NewEmailNotifier(mailer, "clinic@example.com", dir)

	ev := sampleEvent(appointment.EventAppointmentCancelled)
	dir.PutPatient(Contact{ID: ev.PatientID, Name: "Ada", Email: "ada@example.com"})
	dir.PutDoctor(Contact{ID: ev.DoctorID, Name: "Dr Grace", Email: "grace@example.com"})

	require.NoError(t, n.Handle(context.Background(), ev))
	require.Len(t, mailer.sent, 1)
	m := mailer.sent[0]
	assert.Equal(t, []string{"Appointment cancelled"}, m.GetHeader("Subject"))
	require.Len(t, m.GetHeader("To"), 1)
	assert.Contains(t, m.GetHeader("To")[0], "ada@example.com")
	require.Len(t, m.GetHeader("Cc"), 1)
	assert.Contains(t, m.GetHeader("Cc")[0], "grace@example.com")

	// unknown patients are skipped
	require.NoError(t, n.Handle(context.Background(), sampleEvent(appointment.EventAppointmentCreated)))
	assert.Len(t, mailer.sent, 1)

	mailer.err = errors.New("relay denied")
	assert.Error(t, n.Handle(context.Background(), ev))
}

func TestPushNotifier(t *testing.T) {
	dir := NewMemoryDirectory()
	pusher := &MockPusher{}
	n := NewPushNotifier(pusher, dir)

	ev := sampleEvent(appointment.EventAppointmentConfirmed)
	dir.PutPatient(Contact{ID: ev.PatientID, Name: "Ada", PushToken: "ExponentPushToken[abc123]"})

	pusher.On("Publish", mock.MatchedBy(func(m *expo.PushMessage) bool {
		return m.Title == "Appointment confirmed" && m.Data["appointmentId"] == ev.AppointmentID.String()
	})).Return(expo.PushResponse{Status: expo.SuccessStatus}, nil).Once()

	require.NoError(t, n.Handle(context.Background(), ev))
	pusher.AssertExpectations(t)

	// malformed token: nothing to send
	other := sampleEvent(appointment.EventAppointmentConfirmed)
	dir.PutPatient(Contact{ID: other.PatientID, PushToken: "not-a-token"})
	require.NoError(t, n.Handle(context.Background(), other))
	pusher.AssertNumberOfCalls(t, "Publish", 1)
}

func TestPaymentSubscriber(t *testing.T) {
	gw := &MockGateway{}
	p := NewPaymentSubscriber(gw)

	created := sampleEvent(appointment.EventAppointmentCreated)
	gw.On("Hold", mock.Anything, created.AppointmentID, created.PatientID, *created.Fee).Return(nil).Once()
	require.NoError(t, p.Handle(context.Background(), created))

	cancelled := sampleEvent(appointment.EventAppointmentCancelled)
	gw.On("Release", mock.Anything, cancelled.AppointmentID).Return(nil).Once()
	require.NoError(t, p.Handle(context.Background(), cancelled))

	free := sampleEvent(appointment.EventAppointmentCreated)
	free.Fee = nil
	require.NoError(t, p.Handle(context.Background(), free))

	gw.AssertExpectations(t)
}

func TestDescribe(t *testing.T) {
	ev := sampleEvent(appointment.EventAppointmentCreated)
	title, body := describe(ev)
	assert.Equal(t, "Appointment requested", title)
	assert.Contains(t, body, "2025-03-11 10:00-10:30 (Europe/Amsterdam)")
	assert.Contains(t, body, "45.00")

	ev = sampleEvent(appointment.EventAppointmentCancelled)
	ev.Reason = appointment.ReasonPendingExpired
	_, body = describe(ev)
	assert.Contains(t, body, "expired")
}

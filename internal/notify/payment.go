package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/telehealth-scheduling/internal/appointment"
)

// Gateway is the payment provider seen by the scheduler: a hold is placed when an
// appointment is reserved and released when it is cancelled. Capture is reported
// back through the payment-captured endpoint.
type Gateway interface {
	Hold(ctx context.Context, appointmentID, patientID uuid.UUID, amount decimal.Decimal) error
	Release(ctx context.Context, appointmentID uuid.UUID) error
}

type PaymentSubscriber struct {
	gateway Gateway
}

func NewPaymentSubscriber(g Gateway) *PaymentSubscriber {
	return &PaymentSubscriber{gateway: g}
}

func (p *PaymentSubscriber) Name() string { return "payment" }

func (p *PaymentSubscriber) Handle(ctx context.Context, ev appointment.Event) error {
	switch ev.Type {
	case appointment.EventAppointmentCreated:
		if ev.Fee == nil || !ev.Fee.IsPositive() {
			return nil
		}
		return p.gateway.Hold(ctx, ev.AppointmentID, ev.PatientID, *ev.Fee)
	case appointment.EventAppointmentCancelled:
		return p.gateway.Release(ctx, ev.AppointmentID)
	}
	return nil
}

// LogGateway records payment intents without a provider. Used until a real
// gateway is configured.
type LogGateway struct {
	Log logrus.FieldLogger
}

func (g LogGateway) Hold(_ context.Context, appointmentID, patientID uuid.UUID, amount decimal.Decimal) error {
	g.Log.WithFields(logrus.Fields{
		"appointment_id": appointmentID,
		"patient_id":     patientID,
		"amount":         amount.StringFixed(2),
	}).Info("payment hold requested")
	return nil
}

func (g LogGateway) Release(_ context.Context, appointmentID uuid.UUID) error {
	g.Log.WithField("appointment_id", appointmentID).Info("payment hold released")
	return nil
}

// LogSubscriber writes every event to the log.
type LogSubscriber struct {
	Log logrus.FieldLogger
}

func (LogSubscriber) Name() string { return "log" }

func (s LogSubscriber) Handle(_ context.Context, ev appointment.Event) error {
	s.Log.WithFields(logrus.Fields{
		"event":          ev.Type,
		"appointment_id": ev.AppointmentID,
		"doctor_id":      ev.DoctorID,
		"status":         ev.Status,
		"date":           ev.Date.String(),
		"interval":       ev.Interval.String(),
	}).Info("lifecycle event")
	return nil
}

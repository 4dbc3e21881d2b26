package notify

import (
	"context"
	"errors"
	"fmt"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"

	"github.com/hackgods/telehealth-scheduling/internal/appointment"
)

// Pusher is satisfied by *expo.PushClient.
type Pusher interface {
	Publish(message *expo.PushMessage) (expo.PushResponse, error)
}

// PushNotifier sends an Expo push notification to the patient's device.
type PushNotifier struct {
	client Pusher
	dir    Directory
}

func NewPushNotifier(client Pusher, dir Directory) *PushNotifier {
	if client == nil {
		client = expo.NewPushClient(nil)
	}
	return &PushNotifier{client: client, dir: dir}
}

func (n *PushNotifier) Name() string { return "push" }

func (n *PushNotifier) Handle(ctx context.Context, ev appointment.Event) error {
	patient, err := n.dir.Patient(ctx, ev.PatientID)
	if errors.Is(err, ErrContactNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if patient.PushToken == "" {
		return nil
	}

	token, err := expo.NewExponentPushToken(patient.PushToken)
	if err != nil {
		// a malformed token will never succeed
		return nil
	}

	title, body := describe(ev)
	response, err := n.client.Publish(&expo.PushMessage{
		To:       []expo.ExponentPushToken{token},
		Title:    title,
		Body:     body,
		Sound:    "default",
		Priority: expo.DefaultPriority,
		Data: map[string]string{
			"type":          string(ev.Type),
			"appointmentId": ev.AppointmentID.String(),
			"status":        string(ev.Status),
		},
	})
	if err != nil {
		return fmt.Errorf("publish push: %w", err)
	}
	if err := response.ValidateResponse(); err != nil {
		return fmt.Errorf("push rejected: %w", err)
	}
	return nil
}

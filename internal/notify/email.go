package notify

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/hackgods/telehealth-scheduling/internal/appointment"
	"github.com/hackgods/telehealth-scheduling/internal/config"
)

// Mailer is satisfied by *gomail.Dialer.
type Mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier mails the patient on every lifecycle event and copies the doctor
// when the calendar changes under them.
type EmailNotifier struct {
	mailer Mailer
	from   string
	dir    Directory
}

func NewEmailNotifier(mailer Mailer, from string, dir Directory) *EmailNotifier {
	return &EmailNotifier{mailer: mailer, from: from, dir: dir}
}

// NewSMTPNotifier dials cfg's SMTP server for every message.
func NewSMTPNotifier(cfg config.SMTPConfig, dir Directory) *EmailNotifier {
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return NewEmailNotifier(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), from, dir)
}

func (n *EmailNotifier) Name() string { return "email" }

func (n *EmailNotifier) Handle(ctx context.Context, ev appointment.Event) error {
	patient, err := n.dir.Patient(ctx, ev.PatientID)
	if errors.Is(err, ErrContactNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if patient.Email == "" {
		return nil
	}

	subject, body := describe(ev)
	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetAddressHeader("To", patient.Email, patient.Name)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", fmt.Sprintf("Hello %s,\n\n%s\n", patient.Name, body))

	if ev.Type == appointment.EventAppointmentCancelled || ev.Type == appointment.EventAppointmentRescheduled {
		if doctor, err := n.dir.Doctor(ctx, ev.DoctorID); err == nil && doctor.Email != "" {
			m.SetAddressHeader("Cc", doctor.Email, doctor.Name)
		}
	}

	if err := n.mailer.DialAndSend(m); err != nil {
		return fmt.Errorf("send %s mail: %w", ev.Type, err)
	}
	return nil
}

package notify

import (
	"fmt"

	"github.com/hackgods/telehealth-scheduling/internal/appointment"
)

// describe renders the title and body shown to the patient for ev.
func describe(ev appointment.Event) (title, body string) {
	when := fmt.Sprintf("%s %s", ev.Date, ev.Interval)
	if ev.Timezone != "" {
		when += " (" + ev.Timezone + ")"
	}

	switch ev.Type {
	case appointment.EventAppointmentCreated:
		title = "Appointment requested"
		body = fmt.Sprintf("Your appointment on %s is reserved. Complete payment to confirm it.", when)
		if ev.Fee != nil && ev.Fee.IsPositive() {
			body += fmt.Sprintf(" Consultation fee: %s.", ev.Fee.StringFixed(2))
		}
	case appointment.EventAppointmentConfirmed:
		title = "Appointment confirmed"
		body = fmt.Sprintf("Your appointment on %s is confirmed.", when)
	case appointment.EventAppointmentRescheduled:
		title = "Appointment rescheduled"
		body = fmt.Sprintf("Your appointment was moved to %s.", when)
		if ev.PreviousDate != nil && ev.PreviousInterval != nil {
			body = fmt.Sprintf("Your appointment was moved from %s %s to %s.", *ev.PreviousDate, *ev.PreviousInterval, when)
		}
	case appointment.EventAppointmentCancelled:
		title = "Appointment cancelled"
		body = fmt.Sprintf("Your appointment on %s was cancelled.", when)
		if ev.Reason == appointment.ReasonPendingExpired {
			body = fmt.Sprintf("Your reservation for %s expired because payment was not received.", when)
		}
	case appointment.EventAppointmentCompleted:
		title = "Appointment completed"
		body = fmt.Sprintf("Thanks for attending your appointment on %s.", when)
	case appointment.EventAppointmentNoShow:
		title = "Missed appointment"
		body = fmt.Sprintf("You were marked as absent for your appointment on %s.", when)
	default:
		title = "Appointment update"
		body = fmt.Sprintf("Your appointment on %s was updated.", when)
	}
	return title, body
}

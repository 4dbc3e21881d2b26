package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/telehealth-scheduling/internal/schederr"
	"github.com/hackgods/telehealth-scheduling/internal/tracing"
)

var errNotExpired = errors.New("appointment is no longer an expired pending hold")

// OnPaymentCaptured confirms a pending appointment. Repeated captures of an already
// confirmed appointment are acknowledged without a second transition. A capture that
// arrives after the pending window closed cancels the hold instead.
func (s *Service) OnPaymentCaptured(ctx context.Context, id uuid.UUID) (confirmed *Appointment, err error) {
	const op = "confirm"
	ctx, span := tracing.Start(ctx, "appointment.PaymentCaptured", attribute.String("appointment_id", id.String()))
	defer s.finish(span, op, time.Now(), &err)

	ctx, cancel := s.detach(ctx)
	defer cancel()

	current, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if current.Status == StatusConfirmed {
		return current, nil
	}
	if current.Status == StatusPending && current.expired(s.clock.Now()) {
		if _, xerr := s.expire(ctx, id); xerr != nil {
			s.log.WithError(xerr).WithField("appointment_id", id).Warn("failed to expire pending appointment")
		}
		return nil, schederr.New(schederr.KindIllegalTransition, op,
			"payment for appointment %s arrived after its pending window closed", id)
	}

	confirmed, err = s.advance(ctx, op, id, StatusConfirmed, func(a *Appointment, _ AppointmentStatus, now time.Time) error {
		if a.expired(now) {
			return schederr.New(schederr.KindIllegalTransition, op,
				"payment for appointment %s arrived after its pending window closed", id)
		}
		a.ExpiresAt = nil
		return nil
	})
	if err != nil {
		// a concurrent capture may have confirmed it first
		if errors.Is(err, schederr.ErrIllegalTransition) {
			if again, lerr := s.load(ctx, op, id); lerr == nil && again.Status == StatusConfirmed {
				return again, nil
			}
		}
		return nil, err
	}

	s.log.WithField("appointment_id", id).Info("appointment confirmed")
	s.emit(ctx, EventAppointmentConfirmed, confirmed, nil)
	return confirmed, nil
}

// OnDoctorMarkComplete closes a confirmed appointment once its end has passed.
func (s *Service) OnDoctorMarkComplete(ctx context.Context, id uuid.UUID, notes string) (completed *Appointment, err error) {
	const op = "complete"
	ctx, span := tracing.Start(ctx, "appointment.Complete", attribute.String("appointment_id", id.String()))
	defer s.finish(span, op, time.Now(), &err)

	if len(notes) > maxReasonLength {
		return nil, schederr.Validation(op, "notes must be at most %d characters", maxReasonLength)
	}

	completed, err = s.advance(ctx, op, id, StatusCompleted, func(a *Appointment, _ AppointmentStatus, _ time.Time) error {
		if notes != "" {
			a.DoctorNotes = notes
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, EventAppointmentCompleted, completed, nil)
	return completed, nil
}

func (s *Service) OnDoctorMarkNoShow(ctx context.Context, id uuid.UUID) (marked *Appointment, err error) {
	const op = "no_show"
	ctx, span := tracing.Start(ctx, "appointment.NoShow", attribute.String("appointment_id", id.String()))
	defer s.finish(span, op, time.Now(), &err)

	marked, err = s.advance(ctx, op, id, StatusNoShow, nil)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, EventAppointmentNoShow, marked, nil)
	return marked, nil
}

// ExpirePendingAppointments cancels every pending appointment whose hold has run out
// and returns how many were cancelled. Appointments confirmed or cancelled in the
// meantime are skipped.
func (s *Service) ExpirePendingAppointments(ctx context.Context) (int, error) {
	const op = "expire"
	ctx, span := tracing.Start(ctx, "appointment.ExpirePending")
	var err error
	defer func() { tracing.End(span, err) }()

	sctx, cancel := s.storageCtx(ctx)
	candidates, err := s.repo.FindExpiredPending(sctx, s.clock.Now(), sweepBatchSize)
	cancel()
	if err != nil {
		err = schederr.Backend(op, err)
		return 0, err
	}

	expired := 0
	for _, a := range candidates {
		if _, xerr := s.expire(ctx, a.ID); xerr != nil {
			if !skippable(xerr) {
				s.log.WithError(xerr).WithField("appointment_id", a.ID).Warn("failed to expire appointment")
			}
			continue
		}
		expired++
	}

	s.metrics.RecordExpired(expired)
	if expired > 0 {
		s.log.WithField("count", expired).Info("expired pending appointments")
	}
	return expired, nil
}

// expire cancels one pending appointment with reason pending_expired.
func (s *Service) expire(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	const op = "expire"
	cancelled, err := s.advance(ctx, op, id, StatusCancelled, func(a *Appointment, from AppointmentStatus, now time.Time) error {
		if from != StatusPending || !a.expired(now) {
			return errNotExpired
		}
		a.CancellationReason = ReasonPendingExpired
		a.CancelledAt = &now
		a.ExpiresAt = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"appointment_id": id,
		"doctor_id":      cancelled.DoctorID,
	}).Info("pending appointment expired")
	s.emit(ctx, EventAppointmentCancelled, cancelled, func(ev *Event) {
		ev.Reason = ReasonPendingExpired
	})
	return cancelled, nil
}

// advance applies one guarded status change with optimistic concurrency, reloading
// and re-checking on version conflicts. mutate sees the status being left as from.
func (s *Service) advance(ctx context.Context, op string, id uuid.UUID, to AppointmentStatus, mutate func(a *Appointment, from AppointmentStatus, now time.Time) error) (*Appointment, error) {
	for range maxVersionRetries {
		current, err := s.load(ctx, op, id)
		if err != nil {
			return nil, err
		}
		policy, err := s.policy(ctx, current)
		if err != nil {
			return nil, err
		}

		now := s.clock.Now()
		if err := checkTransition(current, to, now, policy); err != nil {
			return nil, err
		}
		next := current.Clone()
		next.Status = to
		if mutate != nil {
			if err := mutate(next, current.Status, now); err != nil {
				return nil, err
			}
		}

		sctx, cancel := s.storageCtx(ctx)
		saved, err := s.repo.Update(sctx, next)
		cancel()
		switch {
		case err == nil:
			s.metrics.RecordTransition(string(current.Status), string(to))
			return saved, nil
		case errors.Is(err, ErrVersionConflict):
			continue
		case errors.Is(err, ErrAppointmentNotFound):
			return nil, schederr.New(schederr.KindNotFound, op, "appointment %s not found", id)
		case errors.Is(err, ErrOverlap):
			return nil, schederr.Wrap(schederr.KindInternal, op, err)
		default:
			return nil, schederr.Backend(op, err)
		}
	}
	return nil, schederr.New(schederr.KindBusy, op, "appointment %s keeps changing, retry", id)
}

func (s *Service) policy(ctx context.Context, a *Appointment) (Policy, error) {
	p, err := s.resolver.Profile(ctx, a.DoctorID, true)
	if err != nil {
		return Policy{}, err
	}
	loc, err := p.Location()
	if err != nil {
		return Policy{}, schederr.Wrap(schederr.KindInternal, "policy", err)
	}
	cutoff := p.CancelCutoff
	if cutoff <= 0 {
		cutoff = s.cfg.CancelCutoff
	}
	return Policy{Location: loc, CancelCutoff: cutoff}, nil
}

func (a *Appointment) expired(now time.Time) bool {
	return a.ExpiresAt != nil && !now.Before(*a.ExpiresAt)
}

// skippable reports sweeper outcomes that only mean someone else got there first.
func skippable(err error) bool {
	return errors.Is(err, errNotExpired) ||
		errors.Is(err, schederr.ErrIllegalTransition) ||
		errors.Is(err, schederr.ErrAlreadyCancelled) ||
		errors.Is(err, schederr.ErrNotFound)
}

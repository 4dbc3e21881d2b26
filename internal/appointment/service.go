package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/clinictime"
	"github.com/hackgods/telehealth-scheduling/internal/config"
	"github.com/hackgods/telehealth-scheduling/internal/lock"
	"github.com/hackgods/telehealth-scheduling/internal/metrics"
	"github.com/hackgods/telehealth-scheduling/internal/schederr"
	"github.com/hackgods/telehealth-scheduling/internal/slots"
	"github.com/hackgods/telehealth-scheduling/internal/tracing"
)

const (
	maxReasonLength   = 2000
	maxListRangeDays  = 92
	maxVersionRetries = 3
	sweepBatchSize    = 500
)

type Service struct {
	repo      Repository
	resolver  *availability.Resolver
	locker    lock.Locker
	publisher Publisher
	clock     clinictime.Clock
	cfg       config.Config
	log       logrus.FieldLogger
	metrics   *metrics.Collector
}

type Option func(*Service)

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) { s.log = l }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(repo Repository, resolver *availability.Resolver, locker lock.Locker, cfg config.Config, opts ...Option) *Service {
	if cfg.LockAcquire <= 0 {
		cfg.LockAcquire = 5 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Second
	}
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = 10 * time.Second
	}
	if cfg.PendingTimeout <= 0 {
		cfg.PendingTimeout = availability.DefaultPendingTimeout
	}
	s := &Service{
		repo:      repo,
		resolver:  resolver,
		locker:    locker,
		publisher: nopPublisher{},
		clock:     resolver.Clock(),
		cfg:       cfg,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateRequest struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Date      clinictime.LocalDate
	Interval  clinictime.Interval
	Mode      Mode
	Reason    string
	Metadata  map[string]string
}

type RescheduleRequest struct {
	Date     clinictime.LocalDate
	Interval clinictime.Interval
}

// CreateAppointment admits a new pending appointment. The request is checked
// against the effective free set, then re-checked under the doctor's lock against
// the authoritative store before the write.
func (s *Service) CreateAppointment(ctx context.Context, req CreateRequest) (created *Appointment, err error) {
	const op = "create"
	ctx, span := tracing.Start(ctx, "appointment.Create",
		attribute.String("doctor_id", req.DoctorID.String()),
		attribute.String("date", req.Date.String()),
		attribute.String("interval", req.Interval.String()),
	)
	defer s.finish(span, op, time.Now(), &err)

	if req.Mode == "" {
		req.Mode = ModeVideo
	}
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	// the admission runs to completion even if the caller goes away
	ctx, cancel := s.detach(ctx)
	defer cancel()

	q := availability.Query{DoctorID: req.DoctorID, From: req.Date, To: req.Date}
	res, err := s.resolver.Resolve(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := requireFree(op, res, req.Date, req.Interval); err != nil {
		return nil, err
	}
	if err := checkShape(op, req.Interval, res.Profile); err != nil {
		return nil, err
	}

	err = s.withDoctorLock(ctx, op, req.DoctorID, func(lockCtx context.Context) error {
		q.Authoritative = true
		fresh, err := s.resolver.Resolve(lockCtx, q)
		if err != nil {
			return err
		}
		if err := requireFree(op, fresh, req.Date, req.Interval); err != nil {
			return err
		}

		expiresAt := s.clock.Now().Add(s.pendingTimeout(fresh.Profile))
		a := &Appointment{
			ID:        uuid.New(),
			DoctorID:  req.DoctorID,
			PatientID: req.PatientID,
			Date:      req.Date,
			Interval:  req.Interval,
			Mode:      req.Mode,
			Reason:    req.Reason,
			Status:    StatusPending,
			ExpiresAt: &expiresAt,
			Metadata:  req.Metadata,
		}

		sctx, cancel := s.storageCtx(lockCtx)
		defer cancel()
		created, err = s.repo.Create(sctx, a)
		if err != nil {
			return s.writeError(op, err)
		}
		return s.verifyNoOverlap(lockCtx, created)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"appointment_id": created.ID,
		"doctor_id":      created.DoctorID,
		"date":           created.Date.String(),
		"interval":       created.Interval.String(),
	}).Info("appointment created")

	s.emit(ctx, EventAppointmentCreated, created, func(ev *Event) {
		fee := res.Profile.ConsultationFee
		ev.Fee = &fee
		ev.Timezone = res.Profile.Timezone
		ev.Reason = created.Reason
	})
	return created, nil
}

// RescheduleAppointment moves an active appointment to a new date and interval and
// resets it to pending. Its own current slot does not count as a conflict.
func (s *Service) RescheduleAppointment(ctx context.Context, id uuid.UUID, req RescheduleRequest) (updated *Appointment, err error) {
	const op = "reschedule"
	ctx, span := tracing.Start(ctx, "appointment.Reschedule",
		attribute.String("appointment_id", id.String()),
		attribute.String("date", req.Date.String()),
		attribute.String("interval", req.Interval.String()),
	)
	defer s.finish(span, op, time.Now(), &err)

	if req.Date.IsZero() {
		return nil, schederr.Validation(op, "date is required")
	}
	if _, err := clinictime.NewInterval(req.Interval.Start, req.Interval.End); err != nil {
		return nil, schederr.Validation(op, "%v", err)
	}

	ctx, cancel := s.detach(ctx)
	defer cancel()

	current, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.Active() {
		return nil, schederr.New(schederr.KindIllegalTransition, op,
			"cannot reschedule a %s appointment", current.Status)
	}

	q := availability.Query{
		DoctorID:           current.DoctorID,
		From:               req.Date,
		To:                 req.Date,
		ExcludeAppointment: id,
	}
	res, err := s.resolver.Resolve(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := requireFree(op, res, req.Date, req.Interval); err != nil {
		return nil, err
	}
	if err := checkShape(op, req.Interval, res.Profile); err != nil {
		return nil, err
	}

	var previous *Appointment
	err = s.withDoctorLock(ctx, op, current.DoctorID, func(lockCtx context.Context) error {
		fresh, err := s.load(lockCtx, op, id)
		if err != nil {
			return err
		}
		if !fresh.Status.Active() {
			return schederr.New(schederr.KindIllegalTransition, op,
				"cannot reschedule a %s appointment", fresh.Status)
		}

		q.Authoritative = true
		freeNow, err := s.resolver.Resolve(lockCtx, q)
		if err != nil {
			return err
		}
		if err := requireFree(op, freeNow, req.Date, req.Interval); err != nil {
			return err
		}

		expiresAt := s.clock.Now().Add(s.pendingTimeout(freeNow.Profile))
		next := fresh.Clone()
		next.Date = req.Date
		next.Interval = req.Interval
		next.Status = StatusPending
		next.ExpiresAt = &expiresAt

		sctx, cancel := s.storageCtx(lockCtx)
		defer cancel()
		updated, err = s.repo.Update(sctx, next)
		if err != nil {
			return s.writeError(op, err)
		}
		previous = fresh
		return s.verifyNoOverlap(lockCtx, updated)
	})
	if err != nil {
		return nil, err
	}

	if previous.Status != StatusPending {
		s.metrics.RecordTransition(string(previous.Status), string(StatusPending))
	}
	s.log.WithFields(logrus.Fields{
		"appointment_id": id,
		"from":           previous.Date.String() + " " + previous.Interval.String(),
		"to":             updated.Date.String() + " " + updated.Interval.String(),
	}).Info("appointment rescheduled")

	s.emit(ctx, EventAppointmentRescheduled, updated, func(ev *Event) {
		prevDate, prevInterval := previous.Date, previous.Interval
		ev.PreviousDate = &prevDate
		ev.PreviousInterval = &prevInterval
		ev.Timezone = res.Profile.Timezone
	})
	return updated, nil
}

// CancelAppointment cancels under the doctor's lock. A second cancel reports
// AlreadyCancelled.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID, reason string) (cancelled *Appointment, err error) {
	const op = "cancel"
	ctx, span := tracing.Start(ctx, "appointment.Cancel", attribute.String("appointment_id", id.String()))
	defer s.finish(span, op, time.Now(), &err)

	if len(reason) > maxReasonLength {
		return nil, schederr.Validation(op, "reason must be at most %d characters", maxReasonLength)
	}

	ctx, cancel := s.detach(ctx)
	defer cancel()

	current, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if current.Status == StatusCancelled {
		return nil, schederr.New(schederr.KindAlreadyCancelled, op, "appointment %s is already cancelled", id)
	}

	err = s.withDoctorLock(ctx, op, current.DoctorID, func(lockCtx context.Context) error {
		cancelled, err = s.advance(lockCtx, op, id, StatusCancelled, func(a *Appointment, _ AppointmentStatus, now time.Time) error {
			a.CancellationReason = reason
			a.CancelledAt = &now
			a.ExpiresAt = nil
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.WithField("appointment_id", id).WithField("reason", reason).Info("appointment cancelled")
	s.emit(ctx, EventAppointmentCancelled, cancelled, func(ev *Event) {
		ev.Reason = reason
	})
	return cancelled, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.load(ctx, "get", id)
}

// ListAppointmentsByPatient retrieves appointments for a specific patient
func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	sctx, cancel := s.storageCtx(ctx)
	defer cancel()
	appointments, err := s.repo.ListByPatient(sctx, patientID, limit, offset)
	if err != nil {
		return nil, schederr.Backend("list_by_patient", err)
	}
	return appointments, nil
}

// ListAppointmentsByDoctor returns a doctor's appointments over [from, to], optionally
// filtered by status.
func (s *Service) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, from, to clinictime.LocalDate, statuses []AppointmentStatus) ([]Appointment, error) {
	const op = "list_by_doctor"
	if from.After(to) {
		return nil, schederr.Validation(op, "invalid range: %s is after %s", from, to)
	}
	if from.DaysUntil(to) > maxListRangeDays {
		return nil, schederr.Validation(op, "range must not exceed %d days", maxListRangeDays)
	}
	for _, st := range statuses {
		if !st.Valid() {
			return nil, schederr.Validation(op, "unknown status %q", st)
		}
	}

	sctx, cancel := s.storageCtx(ctx)
	defer cancel()
	appointments, err := s.repo.ListForDoctor(sctx, doctorID, from, to, statuses)
	if err != nil {
		return nil, schederr.Backend(op, err)
	}
	return appointments, nil
}

type SlotListing struct {
	DoctorID        uuid.UUID
	Timezone        string
	GrainMinutes    int
	DurationMinutes int
	Days            []slots.DaySlots
}

// ListSlots is the advisory read path: cached schedule, no lock.
func (s *Service) ListSlots(ctx context.Context, doctorID uuid.UUID, from, to clinictime.LocalDate, durationMinutes int) (*SlotListing, error) {
	const op = "list_slots"
	ctx, span := tracing.Start(ctx, "appointment.ListSlots", attribute.String("doctor_id", doctorID.String()))
	var err error
	defer func() { tracing.End(span, err) }()

	res, err := s.resolver.Resolve(ctx, availability.Query{DoctorID: doctorID, From: from, To: to})
	if err != nil {
		return nil, err
	}
	grain := res.Profile.SlotGrainMinutes
	if durationMinutes == 0 {
		durationMinutes = res.Profile.DefaultDurationMinutes
	}
	if durationMinutes <= 0 || durationMinutes%grain != 0 {
		err = schederr.Validation(op, "duration %d must be a positive multiple of %d minutes", durationMinutes, grain)
		return nil, err
	}

	return &SlotListing{
		DoctorID:        doctorID,
		Timezone:        res.Profile.Timezone,
		GrainMinutes:    grain,
		DurationMinutes: durationMinutes,
		Days:            slots.ForDays(res.Days, grain, durationMinutes),
	}, nil
}

func validateCreate(req CreateRequest) error {
	const op = "create"
	switch {
	case req.DoctorID == uuid.Nil:
		return schederr.Validation(op, "doctor id is required")
	case req.PatientID == uuid.Nil:
		return schederr.Validation(op, "patient id is required")
	case req.Date.IsZero():
		return schederr.Validation(op, "date is required")
	case !req.Mode.Valid():
		return schederr.Validation(op, "unknown mode %q", req.Mode)
	case len(req.Reason) > maxReasonLength:
		return schederr.Validation(op, "reason must be at most %d characters", maxReasonLength)
	}
	if _, err := clinictime.NewInterval(req.Interval.Start, req.Interval.End); err != nil {
		return schederr.Validation(op, "%v", err)
	}
	return nil
}

// checkShape enforces grain alignment and the minimum duration of one grain.
func checkShape(op string, iv clinictime.Interval, p availability.Profile) error {
	grain := p.SlotGrainMinutes
	if !iv.AlignedTo(grain) {
		return schederr.Validation(op, "interval %s is not aligned to %d minute slots", iv, grain)
	}
	if iv.Minutes() < grain {
		return schederr.Validation(op, "interval %s is shorter than one %d minute slot", iv, grain)
	}
	return nil
}

// requireFree demands that iv lies inside exactly one free interval of date.
func requireFree(op string, res *availability.Result, date clinictime.LocalDate, iv clinictime.Interval) error {
	day, ok := res.Day(date)
	if ok {
		if _, ok := clinictime.ContainedIn(day.Free, iv); ok {
			return nil
		}
	}
	return schederr.New(schederr.KindSlotUnavailable, op, "%s on %s is not available", iv, date)
}

func (s *Service) withDoctorLock(ctx context.Context, op string, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	waitStart := time.Now()
	entered := false
	err := lock.WithLock(ctx, s.locker, lock.DoctorKey(doctorID), s.cfg.LockAcquire, func(lockCtx context.Context) error {
		entered = true
		s.metrics.RecordLockWait(time.Since(waitStart))
		return fn(lockCtx)
	})
	if err == nil || entered {
		return err
	}
	if errors.Is(err, lock.ErrNotAcquired) {
		return schederr.New(schederr.KindBusy, op, "doctor %s is busy, retry shortly", doctorID)
	}
	return schederr.Backend(op, err)
}

// verifyNoOverlap re-reads the committed day and reports any active overlap as an
// internal error. The write is not undone.
func (s *Service) verifyNoOverlap(ctx context.Context, a *Appointment) error {
	sctx, cancel := s.storageCtx(ctx)
	defer cancel()
	day, err := s.repo.ListForDoctor(sctx, a.DoctorID, a.Date, a.Date, ActiveStatuses)
	if err != nil {
		s.log.WithError(err).WithField("appointment_id", a.ID).Warn("could not verify committed appointment")
		return nil
	}
	for _, other := range day {
		if other.ID != a.ID && other.Interval.Overlaps(a.Interval) {
			s.log.WithFields(logrus.Fields{
				"appointment_id": a.ID,
				"conflicts_with": other.ID,
				"doctor_id":      a.DoctorID,
				"date":           a.Date.String(),
			}).Error("no-overlap invariant violated")
			return schederr.New(schederr.KindInternal, "verify",
				"appointment %s overlaps %s", a.ID, other.ID)
		}
	}
	return nil
}

func (s *Service) load(ctx context.Context, op string, id uuid.UUID) (*Appointment, error) {
	sctx, cancel := s.storageCtx(ctx)
	defer cancel()
	a, err := s.repo.Get(sctx, id)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, schederr.New(schederr.KindNotFound, op, "appointment %s not found", id)
	}
	if err != nil {
		return nil, schederr.Backend(op, err)
	}
	return a, nil
}

func (s *Service) writeError(op string, err error) error {
	switch {
	case errors.Is(err, ErrOverlap):
		return schederr.New(schederr.KindSlotUnavailable, op, "interval was taken concurrently")
	case errors.Is(err, ErrVersionConflict):
		return schederr.New(schederr.KindBusy, op, "appointment changed concurrently, retry")
	case errors.Is(err, ErrAppointmentNotFound):
		return schederr.New(schederr.KindNotFound, op, "appointment not found")
	}
	return schederr.Backend(op, err)
}

func (s *Service) pendingTimeout(p availability.Profile) time.Duration {
	if p.PendingTimeout > 0 {
		return p.PendingTimeout
	}
	return s.cfg.PendingTimeout
}

func (s *Service) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.AdmissionBudget())
}

func (s *Service) storageCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.StorageTimeout)
}

func (s *Service) finish(span trace.Span, op string, started time.Time, errp *error) {
	err := *errp
	outcome := "ok"
	if err != nil {
		outcome = schederr.KindOf(err).String()
		if schederr.KindOf(err) == schederr.KindInternal || schederr.KindOf(err) == schederr.KindBackendUnavailable {
			s.log.WithError(err).WithField("op", op).Error("appointment operation failed")
		}
	}
	s.metrics.RecordAdmission(op, outcome, time.Since(started))
	tracing.End(span, err)
}

// emit appends ev to the event log and hands it to the publisher.
func (s *Service) emit(ctx context.Context, t EventType, a *Appointment, decorate func(*Event)) {
	ev := newEvent(t, a, s.clock.Now())
	if decorate != nil {
		decorate(&ev)
	}
	ctx = context.WithoutCancel(ctx)
	s.logEvent(ctx, ev)
	s.publisher.Publish(ctx, ev)
}

func (s *Service) logEvent(ctx context.Context, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.log.WithError(err).WithField("event", ev.Type).Warn("failed to marshal event payload")
		data = nil
	}

	apptID := ev.AppointmentID
	sctx, cancel := s.storageCtx(ctx)
	defer cancel()

	err = s.repo.InsertEvent(sctx, EventLog{
		EventType:     string(ev.Type),
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     ev.OccurredAt,
	})
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"event":          ev.Type,
			"appointment_id": ev.AppointmentID,
		}).Warn("failed to insert event log")
	}
}

package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/clinictime"
	"github.com/hackgods/telehealth-scheduling/internal/schederr"
)

// Invalidator is notified after every successful schedule write.
type Invalidator interface {
	Invalidate(doctorID uuid.UUID)
}

type Service struct {
	store           Store
	cache           Invalidator
	defaultTimezone string
	storageTimeout  time.Duration
	log             logrus.FieldLogger
}

type Options struct {
	DefaultTimezone string
	StorageTimeout  time.Duration
	Logger          logrus.FieldLogger
}

func NewService(store Store, cache Invalidator, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.DefaultTimezone == "" {
		opts.DefaultTimezone = "UTC"
	}
	return &Service{
		store:           store,
		cache:           cache,
		defaultTimezone: opts.DefaultTimezone,
		storageTimeout:  opts.StorageTimeout,
		log:             opts.Logger,
	}
}

func (s *Service) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storageTimeout)
}

func (s *Service) invalidate(doctorID uuid.UUID) {
	if s.cache != nil {
		s.cache.Invalidate(doctorID)
	}
}

func (s *Service) GetProfile(ctx context.Context, doctorID uuid.UUID) (availability.Profile, error) {
	const op = "schedule.get_profile"
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	p, err := s.store.GetProfile(ctx, doctorID)
	if errors.Is(err, availability.ErrProfileNotFound) {
		return availability.Profile{}, schederr.New(schederr.KindNotFound, op, "doctor %s has no schedule profile", doctorID)
	}
	if err != nil {
		return availability.Profile{}, schederr.Backend(op, err)
	}
	return p, nil
}

// SaveProfile creates or replaces a doctor's profile. An empty timezone falls back
// to the configured clinic default.
func (s *Service) SaveProfile(ctx context.Context, p availability.Profile) (availability.Profile, error) {
	const op = "schedule.save_profile"
	if p.Timezone == "" {
		p.Timezone = s.defaultTimezone
	}
	if err := p.Validate(); err != nil {
		return availability.Profile{}, err
	}

	ctx, cancel := s.ctx(ctx)
	defer cancel()
	saved, err := s.store.SaveProfile(ctx, p)
	if err != nil {
		return availability.Profile{}, schederr.Backend(op, err)
	}
	s.invalidate(p.DoctorID)
	s.log.WithFields(logrus.Fields{
		"doctor_id": p.DoctorID,
		"timezone":  saved.Timezone,
		"active":    saved.Active,
	}).Info("schedule profile saved")
	return saved, nil
}

func (s *Service) GetWeekly(ctx context.Context, doctorID uuid.UUID) (availability.Weekly, error) {
	if _, err := s.GetProfile(ctx, doctorID); err != nil {
		return nil, err
	}
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	w, err := s.store.GetWeekly(ctx, doctorID)
	if err != nil {
		return nil, schederr.Backend("schedule.get_weekly", err)
	}
	return w, nil
}

// ReplaceWeekly replaces the template wholesale. Existing appointments are untouched.
func (s *Service) ReplaceWeekly(ctx context.Context, doctorID uuid.UUID, w availability.Weekly) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if _, err := s.GetProfile(ctx, doctorID); err != nil {
		return err
	}
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	if err := s.store.ReplaceWeekly(ctx, doctorID, w); err != nil {
		return schederr.Backend("schedule.replace_weekly", err)
	}
	s.invalidate(doctorID)
	s.log.WithField("doctor_id", doctorID).WithField("days", len(w)).Info("weekly availability replaced")
	return nil
}

func (s *Service) ListOverrides(ctx context.Context, doctorID uuid.UUID, from, to clinictime.LocalDate) ([]availability.Override, error) {
	if from.After(to) {
		return nil, schederr.Validation("schedule.list_overrides", "invalid range: %s is after %s", from, to)
	}
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	out, err := s.store.GetOverrides(ctx, doctorID, from, to)
	if err != nil {
		return nil, schederr.Backend("schedule.list_overrides", err)
	}
	return out, nil
}

// PutOverride creates or replaces the single override for (doctor, date). It does
// not cancel appointments already booked inside the blocked intervals.
func (s *Service) PutOverride(ctx context.Context, o availability.Override) (availability.Override, error) {
	if err := o.Validate(); err != nil {
		return availability.Override{}, err
	}
	if o.Blocked == nil {
		o.Blocked = []clinictime.Interval{}
	}
	if _, err := s.GetProfile(ctx, o.DoctorID); err != nil {
		return availability.Override{}, err
	}
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	saved, err := s.store.UpsertOverride(ctx, o)
	if err != nil {
		return availability.Override{}, schederr.Backend("schedule.put_override", err)
	}
	s.invalidate(o.DoctorID)
	s.log.WithFields(logrus.Fields{
		"doctor_id": o.DoctorID,
		"date":      o.Date.String(),
		"blocked":   len(o.Blocked),
	}).Info("unavailability override saved")
	return saved, nil
}

func (s *Service) DeleteOverride(ctx context.Context, doctorID uuid.UUID, date clinictime.LocalDate) error {
	const op = "schedule.delete_override"
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	err := s.store.DeleteOverride(ctx, doctorID, date)
	if errors.Is(err, ErrOverrideNotFound) {
		return schederr.New(schederr.KindNotFound, op, "no override on %s", date)
	}
	if err != nil {
		return schederr.Backend(op, err)
	}
	s.invalidate(doctorID)
	return nil
}

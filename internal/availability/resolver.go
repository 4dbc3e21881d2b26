package availability

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/telehealth-scheduling/internal/clinictime"
	"github.com/hackgods/telehealth-scheduling/internal/schederr"
	"github.com/hackgods/telehealth-scheduling/internal/tracing"
)

// Query selects an inclusive date range for one doctor.
type Query struct {
	DoctorID uuid.UUID
	From     clinictime.LocalDate
	To       clinictime.LocalDate

	// ExcludeAppointment is left out of the subtracted bookings (reschedule of itself).
	ExcludeAppointment uuid.UUID

	// Authoritative bypasses any schedule cache.
	Authoritative bool
}

// Resolver computes the effective free set from weekly rules, overrides and live bookings.
type Resolver struct {
	schedules     ScheduleStore
	authoritative ScheduleStore
	bookings      BookingSource
	clock         clinictime.Clock
	timeout       time.Duration
	log           logrus.FieldLogger
}

type ResolverOption func(*Resolver)

// WithStorageTimeout bounds every store call made during a resolve.
func WithStorageTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.timeout = d }
}

func WithLogger(l logrus.FieldLogger) ResolverOption {
	return func(r *Resolver) { r.log = l }
}

// NewResolver builds a resolver. When schedules is a *CachedStore, authoritative
// queries go to the store behind the cache.
func NewResolver(schedules ScheduleStore, bookings BookingSource, clock clinictime.Clock, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		schedules:     schedules,
		authoritative: schedules,
		bookings:      bookings,
		clock:         clock,
		log:           logrus.StandardLogger(),
	}
	if c, ok := schedules.(*CachedStore); ok {
		r.authoritative = c.Source()
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Clock() clinictime.Clock { return r.clock }

// Profile loads the doctor's profile; a missing one is DoctorNotScheduled. Inactive
// profiles are returned so existing appointments can still be managed.
func (r *Resolver) Profile(ctx context.Context, doctorID uuid.UUID, authoritative bool) (Profile, error) {
	const op = "availability.profile"
	store := r.schedules
	if authoritative {
		store = r.authoritative
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	p, err := store.GetProfile(ctx, doctorID)
	if errors.Is(err, ErrProfileNotFound) {
		return Profile{}, schederr.New(schederr.KindDoctorNotScheduled, op, "doctor %s has no schedule profile", doctorID)
	}
	if err != nil {
		return Profile{}, schederr.Backend(op, err)
	}
	return p, nil
}

func (r *Resolver) Resolve(ctx context.Context, q Query) (res *Result, err error) {
	const op = "availability.resolve"
	ctx, span := tracing.Start(ctx, "availability.Resolve",
		attribute.String("doctor_id", q.DoctorID.String()),
		attribute.String("from", q.From.String()),
		attribute.String("to", q.To.String()),
		attribute.Bool("authoritative", q.Authoritative),
	)
	defer func() { tracing.End(span, err) }()

	if q.From.IsZero() || q.To.IsZero() {
		return nil, schederr.Validation(op, "date range is required")
	}
	if q.From.After(q.To) {
		return nil, schederr.Validation(op, "invalid range: %s is after %s", q.From, q.To)
	}

	profile, err := r.Profile(ctx, q.DoctorID, q.Authoritative)
	if err != nil {
		return nil, err
	}
	if !profile.Active {
		return nil, schederr.New(schederr.KindDoctorNotScheduled, op, "doctor %s is not accepting appointments", q.DoctorID)
	}
	loc, err := profile.Location()
	if err != nil {
		return nil, schederr.New(schederr.KindInternal, op, "doctor %s has unusable timezone %q", q.DoctorID, profile.Timezone)
	}

	now := clinictime.NowIn(r.clock, loc)
	today := clinictime.DateOf(now, loc)
	last := today.AddDays(profile.HorizonDays)
	if q.From.Before(today) || q.To.After(last) {
		return nil, schederr.New(schederr.KindOutOfHorizon, op,
			"dates must fall within %s and %s", today, last)
	}

	store := r.schedules
	if q.Authoritative {
		store = r.authoritative
	}

	var (
		weekly    Weekly
		overrides []Override
		bookings  []Booking
	)
	fetchCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(fetchCtx)
	g.Go(func() error {
		w, err := store.GetWeekly(gctx, q.DoctorID)
		weekly = w
		return err
	})
	g.Go(func() error {
		o, err := store.GetOverrides(gctx, q.DoctorID, q.From, q.To)
		overrides = o
		return err
	})
	g.Go(func() error {
		b, err := r.bookings.ActiveBookings(gctx, q.DoctorID, q.From, q.To)
		bookings = b
		return err
	})
	if err := g.Wait(); err != nil {
		r.log.WithError(err).WithField("doctor_id", q.DoctorID).Warn("availability fetch failed")
		return nil, schederr.Backend(op, err)
	}

	blocked := make(map[clinictime.LocalDate][]clinictime.Interval, len(overrides))
	for _, o := range overrides {
		blocked[o.Date] = append(blocked[o.Date], o.Blocked...)
	}
	booked := make(map[clinictime.LocalDate][]clinictime.Interval, len(bookings))
	for _, b := range bookings {
		if q.ExcludeAppointment != uuid.Nil && b.AppointmentID == q.ExcludeAppointment {
			continue
		}
		booked[b.Date] = append(booked[b.Date], b.Interval)
	}

	cutDate, cutTime := leadCutoff(now, profile, loc)

	res = &Result{Profile: profile, Location: loc, Now: now}
	for d := q.From; !d.After(q.To); d = d.AddDays(1) {
		res.Days = append(res.Days, Day{
			Date: d,
			Free: freeSet(weekly[d.Weekday()], blocked[d], booked[d], d, cutDate, cutTime),
		})
	}
	return res, nil
}

// freeSet applies the per-date pipeline: weekly template, minus overrides, minus
// bookings, minus everything before the lead-time cutoff.
func freeSet(template, blocked, booked []clinictime.Interval, d, cutDate clinictime.LocalDate, cutTime clinictime.TimeOfDay) []clinictime.Interval {
	if len(template) == 0 || d.Before(cutDate) {
		return []clinictime.Interval{}
	}
	set := clinictime.Normalize(template)
	for _, b := range blocked {
		set = clinictime.SubtractAll(set, b)
	}
	for _, b := range booked {
		set = clinictime.SubtractAll(set, b)
	}
	if d == cutDate {
		set = clinictime.ClipBefore(set, cutTime)
	}
	out := clinictime.Normalize(set)
	if out == nil {
		out = []clinictime.Interval{}
	}
	return out
}

// leadCutoff is the earliest bookable wall-clock position, rounded up to the grain.
func leadCutoff(now time.Time, p Profile, loc *time.Location) (clinictime.LocalDate, clinictime.TimeOfDay) {
	earliest := now.Add(p.LeadTime)
	if !earliest.Truncate(time.Minute).Equal(earliest) {
		earliest = earliest.Truncate(time.Minute).Add(time.Minute)
	}
	date := clinictime.DateOf(earliest, loc)
	tod := int(clinictime.TimeOfDayOf(earliest, loc))
	if g := p.SlotGrainMinutes; g > 0 && tod%g != 0 {
		tod = (tod/g + 1) * g
	}
	if tod >= clinictime.MinutesPerDay {
		return date.AddDays(1), 0
	}
	return date, clinictime.TimeOfDay(tod)
}

func (r *Resolver) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

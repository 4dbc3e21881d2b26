package availability_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/clinictime"
	"github.com/hackgods/telehealth-scheduling/internal/schederr"
	"github.com/hackgods/telehealth-scheduling/internal/schedule"
)

type fakeBookings struct {
	mu   sync.Mutex
	list []availability.Booking
	err  error
}

func (f *fakeBookings) ActiveBookings(_ context.Context, doctorID uuid.UUID, from, to clinictime.LocalDate) ([]availability.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []availability.Booking
	for _, b := range f.list {
		if !b.Date.Before(from) && !b.Date.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBookings) add(date string, iv string) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.list = append(f.list, availability.Booking{
		AppointmentID: id,
		Date:          clinictime.MustDate(date),
		Interval:      clinictime.MustInterval(iv),
	})
	return id
}

type fixture struct {
	doctor   uuid.UUID
	store    *schedule.MemoryStore
	bookings *fakeBookings
	clock    *clinictime.FixedClock
	resolver *availability.Resolver
	loc      *time.Location
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loc, err := clinictime.LoadLocation("Europe/Amsterdam")
	require.NoError(t, err)

	f := &fixture{
		doctor:   uuid.New(),
		store:    schedule.NewMemoryStore(),
		bookings: &fakeBookings{},
		clock:    clinictime.NewFixedClock(time.Date(2025, 3, 10, 9, 0, 0, 0, loc)),
		loc:      loc,
	}
	ctx := context.Background()
	_, err = f.store.SaveProfile(ctx, availability.DefaultProfile(f.doctor, "Europe/Amsterdam"))
	require.NoError(t, err)
	require.NoError(t, f.store.ReplaceWeekly(ctx, f.doctor, availability.Weekly{
		time.Monday:    {clinictime.MustInterval("09:00-12:00")},
		time.Tuesday:   {clinictime.MustInterval("09:00-17:00")},
		time.Wednesday: {clinictime.MustInterval("09:00-12:00"), clinictime.MustInterval("13:00-17:00")},
	}))

	logger, _ := test.NewNullLogger()
	f.resolver = availability.NewResolver(f.store, f.bookings, f.clock, availability.WithLogger(logger))
	return f
}

func (f *fixture) free(t *testing.T, date string) []string {
	t.Helper()
	d := clinictime.MustDate(date)
	res, err := f.resolver.Resolve(context.Background(), availability.Query{DoctorID: f.doctor, From: d, To: d})
	require.NoError(t, err)
	require.Len(t, res.Days, 1)
	out := make([]string, len(res.Days[0].Free))
	for i, iv := range res.Days[0].Free {
		out[i] = iv.String()
	}
	return out
}

func TestResolveWeeklyTemplate(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, []string{"09:00-12:00"}, f.free(t, "2025-03-10"))
	assert.Equal(t, []string{"09:00-12:00", "13:00-17:00"}, f.free(t, "2025-03-12"))
	assert.Empty(t, f.free(t, "2025-03-14"), "no weekly entry for Friday")
}

func TestResolveSubtractsOverrideAndBookings(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.UpsertOverride(context.Background(), availability.Override{
		DoctorID: f.doctor,
		Date:     clinictime.MustDate("2025-03-11"),
		Blocked:  []clinictime.Interval{clinictime.MustInterval("13:00-14:00")},
	})
	require.NoError(t, err)
	f.bookings.add("2025-03-11", "10:00-10:30")
	f.bookings.add("2025-03-11", "10:30-11:00")

	assert.Equal(t, []string{"09:00-10:00", "11:00-13:00", "14:00-17:00"}, f.free(t, "2025-03-11"))
}

func TestResolveClipsToday(t *testing.T) {
	f := newFixture(t)
	f.clock.Set(time.Date(2025, 3, 10, 10, 7, 30, 0, f.loc))
	assert.Equal(t, []string{"10:30-12:00"}, f.free(t, "2025-03-10"))

	f.clock.Set(time.Date(2025, 3, 10, 12, 0, 0, 0, f.loc))
	assert.Empty(t, f.free(t, "2025-03-10"))
}

func TestResolveLeadTimeCrossesDays(t *testing.T) {
	f := newFixture(t)
	p, err := f.store.GetProfile(context.Background(), f.doctor)
	require.NoError(t, err)
	p.LeadTime = 26 * time.Hour
	_, err = f.store.SaveProfile(context.Background(), p)
	require.NoError(t, err)

	assert.Empty(t, f.free(t, "2025-03-10"))
	assert.Equal(t, []string{"11:00-17:00"}, f.free(t, "2025-03-11"))
}

func TestResolveExcludesOwnAppointment(t *testing.T) {
	f := newFixture(t)
	own := f.bookings.add("2025-03-10", "10:00-10:30")
	d := clinictime.MustDate("2025-03-10")

	res, err := f.resolver.Resolve(context.Background(), availability.Query{
		DoctorID: f.doctor, From: d, To: d, ExcludeAppointment: own,
	})
	require.NoError(t, err)
	assert.Equal(t, []clinictime.Interval{clinictime.MustInterval("09:00-12:00")}, res.Days[0].Free)
}

func TestResolveRangeAndHorizonErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	today := clinictime.MustDate("2025-03-10")

	_, err := f.resolver.Resolve(ctx, availability.Query{DoctorID: f.doctor, From: today.AddDays(1), To: today})
	assert.ErrorIs(t, err, schederr.ErrValidation)

	_, err = f.resolver.Resolve(ctx, availability.Query{DoctorID: f.doctor, From: today.AddDays(-1), To: today})
	assert.ErrorIs(t, err, schederr.ErrOutOfHorizon)

	_, err = f.resolver.Resolve(ctx, availability.Query{DoctorID: f.doctor, From: today, To: today.AddDays(91)})
	assert.ErrorIs(t, err, schederr.ErrOutOfHorizon)

	res, err := f.resolver.Resolve(ctx, availability.Query{DoctorID: f.doctor, From: today, To: today.AddDays(90)})
	require.NoError(t, err)
	assert.Len(t, res.Days, 91)
}

func TestResolveDoctorNotScheduled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := clinictime.MustDate("2025-03-10")

	_, err := f.resolver.Resolve(ctx, availability.Query{DoctorID: uuid.New(), From: d, To: d})
	assert.ErrorIs(t, err, schederr.ErrDoctorNotScheduled)

	p, err := f.store.GetProfile(ctx, f.doctor)
	require.NoError(t, err)
	p.Active = false
	_, err = f.store.SaveProfile(ctx, p)
	require.NoError(t, err)

	_, err = f.resolver.Resolve(ctx, availability.Query{DoctorID: f.doctor, From: d, To: d})
	assert.ErrorIs(t, err, schederr.ErrDoctorNotScheduled)
}

func TestResolveBackendUnavailable(t *testing.T) {
	f := newFixture(t)
	f.bookings.err = errors.New("connection reset")
	d := clinictime.MustDate("2025-03-10")

	_, err := f.resolver.Resolve(context.Background(), availability.Query{DoctorID: f.doctor, From: d, To: d})
	assert.ErrorIs(t, err, schederr.ErrBackendUnavailable)
}

func TestResolveIsDeterministic(t *testing.T) {
	f := newFixture(t)
	f.bookings.add("2025-03-12", "13:30-14:00")
	f.bookings.add("2025-03-12", "09:00-09:30")
	first := f.free(t, "2025-03-12")
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, f.free(t, "2025-03-12"))
	}
}

// Adding a booking shrinks the free set only at the booking's interval.
func TestResolveMonotonicity(t *testing.T) {
	f := newFixture(t)
	date := "2025-03-11"
	before := f.free(t, date)

	booking := clinictime.MustInterval("14:00-15:30")
	f.bookings.add(date, booking.String())
	after := f.free(t, date)

	toSet := func(ss []string) map[int]bool {
		m := map[int]bool{}
		for _, s := range ss {
			iv := clinictime.MustInterval(s)
			for m0 := int(iv.Start); m0 < int(iv.End); m0++ {
				m[m0] = true
			}
		}
		return m
	}
	b, a := toSet(before), toSet(after)
	for minute := range a {
		assert.True(t, b[minute], "minute %d appeared after booking", minute)
	}
	for minute := range b {
		inBooking := minute >= int(booking.Start) && minute < int(booking.End)
		assert.Equal(t, !inBooking, a[minute], "minute %d", minute)
	}
}

func TestCachedStoreServesUntilInvalidated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cache := availability.NewCachedStore(f.store, time.Minute, f.clock)
	resolver := availability.NewResolver(cache, f.bookings, f.clock)
	d := clinictime.MustDate("2025-03-10")

	res, err := resolver.Resolve(ctx, availability.Query{DoctorID: f.doctor, From: d, To: d})
	require.NoError(t, err)
	require.Len(t, res.Days[0].Free, 1)

	require.NoError(t, f.store.ReplaceWeekly(ctx, f.doctor, availability.Weekly{}))

	res, err = resolver.Resolve(ctx, availability.Query{DoctorID: f.doctor, From: d, To: d})
	require.NoError(t, err)
	assert.Len(t, res.Days[0].Free, 1, "cached template still served")

	res, err = resolver.Resolve(ctx, availability.Query{DoctorID: f.doctor, From: d, To: d, Authoritative: true})
	require.NoError(t, err)
	assert.Empty(t, res.Days[0].Free, "authoritative read bypasses cache")

	cache.Invalidate(f.doctor)
	res, err = resolver.Resolve(ctx, availability.Query{DoctorID: f.doctor, From: d, To: d})
	require.NoError(t, err)
	assert.Empty(t, res.Days[0].Free)
}

func TestCachedStoreExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cache := availability.NewCachedStore(f.store, time.Minute, f.clock)

	w, err := cache.GetWeekly(ctx, f.doctor)
	require.NoError(t, err)
	require.Len(t, w, 3)

	require.NoError(t, f.store.ReplaceWeekly(ctx, f.doctor, availability.Weekly{}))
	f.clock.Advance(2 * time.Minute)

	w, err = cache.GetWeekly(ctx, f.doctor)
	require.NoError(t, err)
	assert.Empty(t, w)
}

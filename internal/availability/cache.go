package availability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/clinictime"
)

// CachedStore keeps per-doctor schedule reads in memory for ttl. Writers call
// Invalidate after every change; admission bypasses the cache entirely.
type CachedStore struct {
	source ScheduleStore
	ttl    time.Duration
	clock  clinictime.Clock

	mu      sync.Mutex
	entries map[uuid.UUID]*cacheEntry
}

type cacheEntry struct {
	profile   *Profile
	profileAt time.Time

	weekly   Weekly
	weeklyAt time.Time

	overrides map[[2]clinictime.LocalDate]overrideEntry
}

type overrideEntry struct {
	items []Override
	at    time.Time
}

func NewCachedStore(source ScheduleStore, ttl time.Duration, clock clinictime.Clock) *CachedStore {
	if clock == nil {
		clock = clinictime.SystemClock{}
	}
	return &CachedStore{
		source:  source,
		ttl:     ttl,
		clock:   clock,
		entries: make(map[uuid.UUID]*cacheEntry),
	}
}

// Source returns the uncached store.
func (c *CachedStore) Source() ScheduleStore { return c.source }

func (c *CachedStore) Invalidate(doctorID uuid.UUID) {
	c.mu.Lock()
	delete(c.entries, doctorID)
	c.mu.Unlock()
}

func (c *CachedStore) fresh(at time.Time) bool {
	return !at.IsZero() && c.clock.Now().Sub(at) < c.ttl
}

func (c *CachedStore) entry(doctorID uuid.UUID) *cacheEntry {
	e, ok := c.entries[doctorID]
	if !ok {
		e = &cacheEntry{overrides: make(map[[2]clinictime.LocalDate]overrideEntry)}
		c.entries[doctorID] = e
	}
	return e
}

func (c *CachedStore) GetProfile(ctx context.Context, doctorID uuid.UUID) (Profile, error) {
	c.mu.Lock()
	if e, ok := c.entries[doctorID]; ok && e.profile != nil && c.fresh(e.profileAt) {
		p := *e.profile
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	p, err := c.source.GetProfile(ctx, doctorID)
	if err != nil {
		return Profile{}, err
	}

	c.mu.Lock()
	e := c.entry(doctorID)
	e.profile = &p
	e.profileAt = c.clock.Now()
	c.mu.Unlock()
	return p, nil
}

func (c *CachedStore) GetWeekly(ctx context.Context, doctorID uuid.UUID) (Weekly, error) {
	c.mu.Lock()
	if e, ok := c.entries[doctorID]; ok && e.weekly != nil && c.fresh(e.weeklyAt) {
		w := e.weekly
		c.mu.Unlock()
		return w, nil
	}
	c.mu.Unlock()

	w, err := c.source.GetWeekly(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = Weekly{}
	}

	c.mu.Lock()
	e := c.entry(doctorID)
	e.weekly = w
	e.weeklyAt = c.clock.Now()
	c.mu.Unlock()
	return w, nil
}

func (c *CachedStore) GetOverrides(ctx context.Context, doctorID uuid.UUID, from, to clinictime.LocalDate) ([]Override, error) {
	key := [2]clinictime.LocalDate{from, to}
	c.mu.Lock()
	if e, ok := c.entries[doctorID]; ok {
		if oe, ok := e.overrides[key]; ok && c.fresh(oe.at) {
			c.mu.Unlock()
			return oe.items, nil
		}
	}
	c.mu.Unlock()

	items, err := c.source.GetOverrides(ctx, doctorID, from, to)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entry(doctorID).overrides[key] = overrideEntry{items: items, at: c.clock.Now()}
	c.mu.Unlock()
	return items, nil
}

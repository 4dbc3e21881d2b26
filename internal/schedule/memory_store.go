package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/clinictime"
)

// MemoryStore is an in-process Store for tests and single-node development.
type MemoryStore struct {
	mu        sync.RWMutex
	profiles  map[uuid.UUID]availability.Profile
	weekly    map[uuid.UUID]availability.Weekly
	overrides map[uuid.UUID]map[clinictime.LocalDate]availability.Override
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:  make(map[uuid.UUID]availability.Profile),
		weekly:    make(map[uuid.UUID]availability.Weekly),
		overrides: make(map[uuid.UUID]map[clinictime.LocalDate]availability.Override),
		now:       time.Now,
	}
}

func (s *MemoryStore) GetProfile(_ context.Context, doctorID uuid.UUID) (availability.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[doctorID]
	if !ok {
		return availability.Profile{}, availability.ErrProfileNotFound
	}
	return p, nil
}

func (s *MemoryStore) GetWeekly(_ context.Context, doctorID uuid.UUID) (availability.Weekly, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyWeekly(s.weekly[doctorID]), nil
}

func (s *MemoryStore) GetOverrides(_ context.Context, doctorID uuid.UUID, from, to clinictime.LocalDate) ([]availability.Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []availability.Override
	for d, o := range s.overrides[doctorID] {
		if d.Before(from) || d.After(to) {
			continue
		}
		o.Blocked = append([]clinictime.Interval(nil), o.Blocked...)
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *MemoryStore) SaveProfile(_ context.Context, p availability.Profile) (availability.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if existing, ok := s.profiles[p.DoctorID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.profiles[p.DoctorID] = p
	return p, nil
}

func (s *MemoryStore) ReplaceWeekly(_ context.Context, doctorID uuid.UUID, w availability.Weekly) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weekly[doctorID] = copyWeekly(w)
	return nil
}

func (s *MemoryStore) UpsertOverride(_ context.Context, o availability.Override) (availability.Override, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byDate, ok := s.overrides[o.DoctorID]
	if !ok {
		byDate = make(map[clinictime.LocalDate]availability.Override)
		s.overrides[o.DoctorID] = byDate
	}
	o.Blocked = append([]clinictime.Interval(nil), o.Blocked...)
	o.UpdatedAt = s.now()
	byDate[o.Date] = o
	return o, nil
}

func (s *MemoryStore) DeleteOverride(_ context.Context, doctorID uuid.UUID, date clinictime.LocalDate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.overrides[doctorID][date]; !ok {
		return ErrOverrideNotFound
	}
	delete(s.overrides[doctorID], date)
	return nil
}

func copyWeekly(w availability.Weekly) availability.Weekly {
	out := make(availability.Weekly, len(w))
	for wd, ivs := range w {
		out[wd] = append([]clinictime.Interval(nil), ivs...)
	}
	return out
}

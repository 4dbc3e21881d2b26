package appointment

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/clinictime"
)

// MemoryRepository is a Repository kept in process memory. A single mutex makes
// Create and Update atomic with their overlap checks.
type MemoryRepository struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*Appointment
	events []EventLog
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID: make(map[uuid.UUID]*Appointment),
		now:  time.Now,
	}
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return a.Clone(), nil
}

func (r *MemoryRepository) ListForDoctor(_ context.Context, doctorID uuid.UUID, from, to clinictime.LocalDate, statuses []AppointmentStatus) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Appointment
	for _, a := range r.byID {
		if a.DoctorID != doctorID || a.Date.Before(from) || a.Date.After(to) {
			continue
		}
		if len(statuses) > 0 && !slices.Contains(statuses, a.Status) {
			continue
		}
		out = append(out, *a.Clone())
	}
	sortAppointments(out)
	return out, nil
}

func (r *MemoryRepository) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var all []Appointment
	for _, a := range r.byID {
		if a.PatientID == patientID {
			all = append(all, *a.Clone())
		}
	}
	sortAppointments(all)
	if offset >= len(all) {
		return []Appointment{}, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], nil
}

func (r *MemoryRepository) Create(_ context.Context, a *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.overlapsLocked(a) {
		return nil, ErrOverlap
	}
	stored := a.Clone()
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	now := r.now()
	stored.Version = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.byID[stored.ID] = stored
	return stored.Clone(), nil
}

func (r *MemoryRepository) Update(_ context.Context, a *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.byID[a.ID]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if current.Version != a.Version {
		return nil, ErrVersionConflict
	}
	if a.Status.Active() && r.overlapsLocked(a) {
		return nil, ErrOverlap
	}
	stored := a.Clone()
	stored.Version = current.Version + 1
	stored.CreatedAt = current.CreatedAt
	stored.UpdatedAt = r.now()
	r.byID[stored.ID] = stored
	return stored.Clone(), nil
}

func (r *MemoryRepository) FindExpiredPending(_ context.Context, now time.Time, limit int) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Appointment
	for _, a := range r.byID {
		if a.Status == StatusPending && a.ExpiresAt != nil && !now.Before(*a.ExpiresAt) {
			out = append(out, *a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.ID = int64(len(r.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now()
	}
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventLog(nil), r.events...)
}

func (r *MemoryRepository) overlapsLocked(a *Appointment) bool {
	for _, other := range r.byID {
		if other.ID == a.ID || other.DoctorID != a.DoctorID || other.Date != a.Date || !other.Status.Active() {
			continue
		}
		if other.Interval.Overlaps(a.Interval) {
			return true
		}
	}
	return false
}

func sortAppointments(list []Appointment) {
	sort.Slice(list, func(i, j int) bool {
		if c := list[i].Date.Compare(list[j].Date); c != 0 {
			return c < 0
		}
		if list[i].Interval.Start != list[j].Interval.Start {
			return list[i].Interval.Start < list[j].Interval.Start
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}

// Package schedule persists doctor schedule profiles, weekly templates and
// unavailability overrides, and exposes the administrative operations on them.
package schedule

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/clinictime"
)

var ErrOverrideNotFound = errors.New("unavailability override not found")

// Store is the read side used by the resolver plus the administrative writes.
type Store interface {
	availability.ScheduleStore

	SaveProfile(ctx context.Context, p availability.Profile) (availability.Profile, error)
	ReplaceWeekly(ctx context.Context, doctorID uuid.UUID, w availability.Weekly) error
	UpsertOverride(ctx context.Context, o availability.Override) (availability.Override, error)
	DeleteOverride(ctx context.Context, doctorID uuid.UUID, date clinictime.LocalDate) error
}

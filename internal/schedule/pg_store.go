package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/clinictime"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func scanProfile(row pgx.Row) (availability.Profile, error) {
	var (
		p                                  availability.Profile
		leadMin, cutoffMin, pendingTimeout int
		fee                                string
	)
	err := row.Scan(
		&p.DoctorID,
		&p.Timezone,
		&p.SlotGrainMinutes,
		&leadMin,
		&p.HorizonDays,
		&p.DefaultDurationMinutes,
		&cutoffMin,
		&pendingTimeout,
		&fee,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return availability.Profile{}, availability.ErrProfileNotFound
		}
		return availability.Profile{}, err
	}

	p.LeadTime = time.Duration(leadMin) * time.Minute
	p.CancelCutoff = time.Duration(cutoffMin) * time.Minute
	p.PendingTimeout = time.Duration(pendingTimeout) * time.Minute
	p.ConsultationFee, err = decimal.NewFromString(fee)
	if err != nil {
		return availability.Profile{}, fmt.Errorf("parse consultation fee %q: %w", fee, err)
	}
	return p, nil
}

const profileColumns = `
	doctor_id, timezone, slot_grain_minutes, lead_time_minutes, horizon_days,
	default_duration_minutes, cancel_cutoff_minutes, pending_timeout_minutes,
	consultation_fee::text, active, created_at, updated_at`

func (s *PgStore) GetProfile(ctx context.Context, doctorID uuid.UUID) (availability.Profile, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+profileColumns+`
		FROM doctor_schedule_profiles
		WHERE doctor_id = $1
	`, doctorID)
	return scanProfile(row)
}

func (s *PgStore) SaveProfile(ctx context.Context, p availability.Profile) (availability.Profile, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO doctor_schedule_profiles (
			doctor_id, timezone, slot_grain_minutes, lead_time_minutes, horizon_days,
			default_duration_minutes, cancel_cutoff_minutes, pending_timeout_minutes,
			consultation_fee, active, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10, NOW(), NOW())
		ON CONFLICT (doctor_id) DO UPDATE SET
			timezone = EXCLUDED.timezone,
			slot_grain_minutes = EXCLUDED.slot_grain_minutes,
			lead_time_minutes = EXCLUDED.lead_time_minutes,
			horizon_days = EXCLUDED.horizon_days,
			default_duration_minutes = EXCLUDED.default_duration_minutes,
			cancel_cutoff_minutes = EXCLUDED.cancel_cutoff_minutes,
			pending_timeout_minutes = EXCLUDED.pending_timeout_minutes,
			consultation_fee = EXCLUDED.consultation_fee,
			active = EXCLUDED.active,
			updated_at = NOW()
		RETURNING `+profileColumns,
		p.DoctorID,
		p.Timezone,
		p.SlotGrainMinutes,
		int(p.LeadTime/time.Minute),
		p.HorizonDays,
		p.DefaultDurationMinutes,
		int(p.CancelCutoff/time.Minute),
		int(p.PendingTimeout/time.Minute),
		p.ConsultationFee.StringFixed(2),
		p.Active,
	)
	return scanProfile(row)
}

func (s *PgStore) GetWeekly(ctx context.Context, doctorID uuid.UUID) (availability.Weekly, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT weekday, start_minute, end_minute
		FROM weekly_availability
		WHERE doctor_id = $1
		ORDER BY weekday, start_minute
	`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("query weekly availability: %w", err)
	}
	defer rows.Close()

	w := availability.Weekly{}
	for rows.Next() {
		var wd, start, end int
		if err := rows.Scan(&wd, &start, &end); err != nil {
			return nil, fmt.Errorf("scan weekly availability: %w", err)
		}
		day := time.Weekday(wd)
		w[day] = append(w[day], clinictime.Interval{
			Start: clinictime.TimeOfDay(start),
			End:   clinictime.TimeOfDay(end),
		})
	}
	return w, rows.Err()
}

// ReplaceWeekly swaps the whole template in one transaction.
func (s *PgStore) ReplaceWeekly(ctx context.Context, doctorID uuid.UUID, w availability.Weekly) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM weekly_availability WHERE doctor_id = $1`, doctorID); err != nil {
		return fmt.Errorf("clear weekly availability: %w", err)
	}

	batch := &pgx.Batch{}
	for wd, ivs := range w {
		for _, iv := range ivs {
			batch.Queue(`
				INSERT INTO weekly_availability (doctor_id, weekday, start_minute, end_minute)
				VALUES ($1, $2, $3, $4)
			`, doctorID, int(wd), int(iv.Start), int(iv.End))
		}
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert weekly availability: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func scanOverride(row pgx.Row) (availability.Override, error) {
	var (
		o       availability.Override
		date    time.Time
		blocked []byte
	)
	if err := row.Scan(&o.DoctorID, &date, &blocked, &o.Reason, &o.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return availability.Override{}, ErrOverrideNotFound
		}
		return availability.Override{}, err
	}
	o.Date = clinictime.DateOf(date, time.UTC)
	if err := json.Unmarshal(blocked, &o.Blocked); err != nil {
		return availability.Override{}, fmt.Errorf("decode blocked intervals: %w", err)
	}
	return o, nil
}

func (s *PgStore) GetOverrides(ctx context.Context, doctorID uuid.UUID, from, to clinictime.LocalDate) ([]availability.Override, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT doctor_id, date, blocked, reason, updated_at
		FROM unavailability_overrides
		WHERE doctor_id = $1 AND date BETWEEN $2::date AND $3::date
		ORDER BY date
	`, doctorID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("query overrides: %w", err)
	}
	defer rows.Close()

	var out []availability.Override
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PgStore) UpsertOverride(ctx context.Context, o availability.Override) (availability.Override, error) {
	blocked, err := json.Marshal(o.Blocked)
	if err != nil {
		return availability.Override{}, fmt.Errorf("encode blocked intervals: %w", err)
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO unavailability_overrides (id, doctor_id, date, blocked, reason, created_at, updated_at)
		VALUES ($1, $2, $3::date, $4, $5, NOW(), NOW())
		ON CONFLICT (doctor_id, date) DO UPDATE SET
			blocked = EXCLUDED.blocked,
			reason = EXCLUDED.reason,
			updated_at = NOW()
		RETURNING doctor_id, date, blocked, reason, updated_at
	`, uuid.New(), o.DoctorID, o.Date.String(), blocked, o.Reason)
	return scanOverride(row)
}

func (s *PgStore) DeleteOverride(ctx context.Context, doctorID uuid.UUID, date clinictime.LocalDate) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM unavailability_overrides
		WHERE doctor_id = $1 AND date = $2::date
	`, doctorID, date.String())
	if err != nil {
		return fmt.Errorf("delete override: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOverrideNotFound
	}
	return nil
}

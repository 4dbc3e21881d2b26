package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/telehealth-scheduling/internal/clinictime"
)

// exclusion_violation, raised by appointments_no_overlap
const pgExclusionViolation = "23P01"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

const appointmentColumns = `
	id, doctor_id, patient_id, date, start_minute, end_minute, mode, reason,
	doctor_notes, status, cancellation_reason, cancelled_at, expires_at,
	metadata, version, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a          Appointment
		date       time.Time
		start, end int
		metadata   []byte
	)

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&date,
		&start,
		&end,
		&a.Mode,
		&a.Reason,
		&a.DoctorNotes,
		&a.Status,
		&a.CancellationReason,
		&a.CancelledAt,
		&a.ExpiresAt,
		&metadata,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = clinictime.DateOf(date, time.UTC)
	a.Interval = clinictime.Interval{Start: clinictime.TimeOfDay(start), End: clinictime.TimeOfDay(end)}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func encodeMetadata(m map[string]string) ([]byte, error) {
	if m == nil {
		m = map[string]string{}
	}
	return json.Marshal(m)
}

func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation
}

func activeStatusNames() []string {
	out := make([]string, len(ActiveStatuses))
	for i, s := range ActiveStatuses {
		out[i] = string(s)
	}
	return out
}

// lockDoctorTx serializes writers of one doctor inside Postgres for the rest of tx.
func lockDoctorTx(ctx context.Context, tx pgx.Tx, doctorID uuid.UUID) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, doctorID.String())
	if err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}
	return nil
}

// overlapsTx re-reads the conflict set inside tx.
func overlapsTx(ctx context.Context, tx pgx.Tx, a *Appointment) (bool, error) {
	var conflicting uuid.UUID
	err := tx.QueryRow(ctx, `
		SELECT id
		FROM appointments
		WHERE doctor_id = $1
		  AND date = $2::date
		  AND status = ANY($3)
		  AND id <> $4
		  AND start_minute < $6
		  AND end_minute > $5
		LIMIT 1
		FOR UPDATE
	`, a.DoctorID, a.Date.String(), activeStatusNames(), a.ID, int(a.Interval.Start), int(a.Interval.End)).Scan(&conflicting)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check overlap: %w", err)
	}
	return true, nil
}

// Interface methods

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListForDoctor(ctx context.Context, doctorID uuid.UUID, from, to clinictime.LocalDate, statuses []AppointmentStatus) ([]Appointment, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND date BETWEEN $2::date AND $3::date
		  AND (cardinality($4::text[]) = 0 OR status = ANY($4))
		ORDER BY date, start_minute, created_at
	`, doctorID, from.String(), to.String(), names)
	if err != nil {
		return nil, fmt.Errorf("list appointments for doctor: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY date, start_minute, created_at
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) Create(ctx context.Context, a *Appointment) (*Appointment, error) {
	metadata, err := encodeMetadata(a.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockDoctorTx(ctx, tx, a.DoctorID); err != nil {
		return nil, err
	}
	overlap, err := overlapsTx(ctx, tx, a)
	if err != nil {
		return nil, err
	}
	if overlap {
		return nil, ErrOverlap
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (
			id, doctor_id, patient_id, date, start_minute, end_minute, mode, reason,
			doctor_notes, status, cancellation_reason, cancelled_at, expires_at,
			metadata, version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1, now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.DoctorID, a.PatientID, a.Date.String(), int(a.Interval.Start), int(a.Interval.End),
		a.Mode, a.Reason, a.DoctorNotes, a.Status, a.CancellationReason, a.CancelledAt, a.ExpiresAt,
		metadata,
	)
	created, err := scanAppointment(row)
	if err != nil {
		if isExclusionViolation(err) {
			return nil, ErrOverlap
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isExclusionViolation(err) {
			return nil, ErrOverlap
		}
		return nil, fmt.Errorf("commit appointment: %w", err)
	}
	return created, nil
}

func (r *PgRepository) Update(ctx context.Context, a *Appointment) (*Appointment, error) {
	metadata, err := encodeMetadata(a.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if a.Status.Active() {
		if err := lockDoctorTx(ctx, tx, a.DoctorID); err != nil {
			return nil, err
		}
		overlap, err := overlapsTx(ctx, tx, a)
		if err != nil {
			return nil, err
		}
		if overlap {
			return nil, ErrOverlap
		}
	}

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET date = $3::date,
		    start_minute = $4,
		    end_minute = $5,
		    mode = $6,
		    reason = $7,
		    doctor_notes = $8,
		    status = $9,
		    cancellation_reason = $10,
		    cancelled_at = $11,
		    expires_at = $12,
		    metadata = $13,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND version = $2
		RETURNING `+appointmentColumns,
		a.ID, a.Version, a.Date.String(), int(a.Interval.Start), int(a.Interval.End),
		a.Mode, a.Reason, a.DoctorNotes, a.Status, a.CancellationReason, a.CancelledAt, a.ExpiresAt,
		metadata,
	)
	updated, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		var exists bool
		if qerr := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, a.ID).Scan(&exists); qerr != nil {
			return nil, fmt.Errorf("check appointment: %w", qerr)
		}
		if exists {
			return nil, ErrVersionConflict
		}
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		if isExclusionViolation(err) {
			return nil, ErrOverlap
		}
		return nil, fmt.Errorf("update appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit appointment: %w", err)
	}
	return updated, nil
}

func (r *PgRepository) FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'pending'
		  AND expires_at IS NOT NULL
		  AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

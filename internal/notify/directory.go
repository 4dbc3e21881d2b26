package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrContactNotFound = errors.New("contact not found")

// Contact is how a doctor or patient is reached.
type Contact struct {
	ID        uuid.UUID
	Name      string
	Email     string
	PushToken string
}

type Directory interface {
	Doctor(ctx context.Context, id uuid.UUID) (Contact, error)
	Patient(ctx context.Context, id uuid.UUID) (Contact, error)
}

type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func (d *PgDirectory) Doctor(ctx context.Context, id uuid.UUID) (Contact, error) {
	return d.lookup(ctx, `SELECT id, name, email, COALESCE(push_token, '') FROM doctors WHERE id = $1`, id)
}

func (d *PgDirectory) Patient(ctx context.Context, id uuid.UUID) (Contact, error) {
	return d.lookup(ctx, `SELECT id, name, email, COALESCE(push_token, '') FROM patients WHERE id = $1`, id)
}

func (d *PgDirectory) lookup(ctx context.Context, query string, id uuid.UUID) (Contact, error) {
	var c Contact
	err := d.pool.QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &c.Email, &c.PushToken)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, ErrContactNotFound
	}
	if err != nil {
		return Contact{}, fmt.Errorf("lookup contact %s: %w", id, err)
	}
	return c, nil
}

// MemoryDirectory serves the in-memory deployment and tests.
type MemoryDirectory struct {
	mu       sync.RWMutex
	doctors  map[uuid.UUID]Contact
	patients map[uuid.UUID]Contact
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		doctors:  make(map[uuid.UUID]Contact),
		patients: make(map[uuid.UUID]Contact),
	}
}

func (d *MemoryDirectory) PutDoctor(c Contact) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.doctors[c.ID] = c
}

func (d *MemoryDirectory) PutPatient(c Contact) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.patients[c.ID] = c
}

func (d *MemoryDirectory) Doctor(_ context.Context, id uuid.UUID) (Contact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.doctors[id]
	if !ok {
		return Contact{}, ErrContactNotFound
	}
	return c, nil
}

func (d *MemoryDirectory) Patient(_ context.Context, id uuid.UUID) (Contact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.patients[id]
	if !ok {
		return Contact{}, ErrContactNotFound
	}
	return c, nil
}

// Package lock defines the per-key serializer used by booking admission.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotAcquired = errors.New("lock not acquired")

// Lease is a held lock. ExpiresAt is zero for locks without a lease.
type Lease struct {
	Key       string
	Token     string
	ExpiresAt time.Time
}

type Locker interface {
	// Acquire waits up to timeout for key, returning ErrNotAcquired when it elapses.
	Acquire(ctx context.Context, key string, timeout time.Duration) (*Lease, error)
	Release(ctx context.Context, lease *Lease) error
}

func DoctorKey(doctorID uuid.UUID) string {
	return "doctor:" + doctorID.String()
}

// WithLock runs fn while holding key. fn's context ends no later than the lease.
func WithLock(ctx context.Context, l Locker, key string, timeout time.Duration, fn func(ctx context.Context) error) error {
	lease, err := l.Acquire(ctx, key, timeout)
	if err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = l.Release(releaseCtx, lease)
	}()

	if !lease.ExpiresAt.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, lease.ExpiresAt)
		defer cancel()
	}
	return fn(ctx)
}

// Local is an in-process Locker backed by one buffered channel per key.
type Local struct {
	mu    sync.Mutex
	slots map[string]*localSlot
}

type localSlot struct {
	ch    chan struct{}
	token string
}

func NewLocal() *Local {
	return &Local{slots: make(map[string]*localSlot)}
}

func (l *Local) slot(key string) *localSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &localSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	return s
}

func (l *Local) Acquire(ctx context.Context, key string, timeout time.Duration) (*Lease, error) {
	s := l.slot(key)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s.ch <- struct{}{}:
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s", ErrNotAcquired, key)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	token := uuid.NewString()
	l.mu.Lock()
	s.token = token
	l.mu.Unlock()
	return &Lease{Key: key, Token: token}, nil
}

func (l *Local) Release(_ context.Context, lease *Lease) error {
	if lease == nil {
		return nil
	}
	l.mu.Lock()
	s, ok := l.slots[lease.Key]
	if !ok || s.token != lease.Token {
		l.mu.Unlock()
		return nil
	}
	s.token = ""
	l.mu.Unlock()
	<-s.ch
	return nil
}

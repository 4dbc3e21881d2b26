//go:build integration

package redisclient

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hackgods/telehealth-scheduling/internal/lock"
)

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return fmt.Sprintf("%s:%s", host, port.Port())
}

func TestDoctorLockerSerializes(t *testing.T) {
	addr := startRedis(t)
	client, err := NewRedisClient(context.Background(), Options{Addr: addr})
	require.NoError(t, err)
	defer client.Close()

	locker := NewDoctorLocker(client, 10*time.Second)
	key := lock.DoctorKey(uuid.New())

	var inside, overlaps int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := lock.WithLock(context.Background(), locker, key, 5*time.Second, func(ctx context.Context) error {
				if atomic.AddInt32(&inside, 1) > 1 {
					atomic.AddInt32(&overlaps, 1)
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Zero(t, overlaps)
}

func TestDoctorLockerTimesOutAndLeaseExpires(t *testing.T) {
	addr := startRedis(t)
	client, err := NewRedisClient(context.Background(), Options{Addr: addr})
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	locker := NewDoctorLocker(client, 300*time.Millisecond)

	before := time.Now()
	held, err := locker.Acquire(ctx, "doctor:x", time.Second)
	require.NoError(t, err)
	// the lease never claims more time than redis grants
	assert.False(t, held.ExpiresAt.After(before.Add(300*time.Millisecond)))
	assert.False(t, held.ExpiresAt.Before(before))

	_, err = locker.Acquire(ctx, "doctor:x", 50*time.Millisecond)
	assert.ErrorIs(t, err, lock.ErrNotAcquired)

	// holder "crashes": the lease runs out and a new caller gets in
	next, err := locker.Acquire(ctx, "doctor:x", 2*time.Second)
	require.NoError(t, err)

	// the stale holder's release must not delete the new lease
	require.NoError(t, locker.Release(ctx, held))
	val, err := client.Get(ctx, keyPrefix+"doctor:x").Result()
	require.NoError(t, err)
	assert.Equal(t, next.Token, val)
	require.NoError(t, locker.Release(ctx, next))
}

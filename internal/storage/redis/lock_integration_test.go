//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/key"
)

func newTestLocker(t *testing.T) *Locker {
	t.Helper()
	ctx := context.Background()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	endpoint, err := ctr.Endpoint(ctx, "")
	require.NoError(t, err)

	client := NewClient(Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })

	l := NewLocker(client)
	require.NoError(t, l.Ping(ctx))
	return l
}

func TestLocker(t *testing.T) {
	l := newTestLocker(t)
	ctx := context.Background()
	u1 := key.MustParse("U1")

	unlock, err := l.Lock(ctx, u1, 5*time.Second)
	require.NoError(t, err)

	_, err = l.Lock(ctx, u1, 5*time.Second)
	require.ErrorIs(t, err, checkout.ErrLocked)

	other, err := l.Lock(ctx, key.MustParse("U2"), 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, unlock(ctx))
	again, err := l.Lock(ctx, u1, 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestLocker_Expiry(t *testing.T) {
	l := newTestLocker(t)
	ctx := context.Background()
	u1 := key.MustParse("U1")

	stale, err := l.Lock(ctx, u1, 100*time.Millisecond)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, err := l.Lock(ctx, u1, 5*time.Second)
		return err == nil
	}, 2*time.Second, 50*time.Millisecond)

	// The expired holder must not release the new holder's lock.
	require.NoError(t, stale(ctx))
	_, err = l.Lock(ctx, u1, 5*time.Second)
	require.ErrorIs(t, err, checkout.ErrLocked)
}

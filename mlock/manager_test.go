package mlock_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fleetctl/mongoelect/mlock"
)

func requireIntegration(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if os.Getenv("MONGOELECT_INTEGRATION") != "1" {
		t.Skip("set MONGOELECT_INTEGRATION=1 to run tests against a real MongoDB container")
	}
}

func setupMongo(t *testing.T) *mongo.Database {
	t.Helper()
	requireIntegration(t)

	ctx := context.Background()
	container, err := tcmongo.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, testcontainers.TerminateContainer(container))
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, client.Disconnect(context.Background()))
	})

	return client.Database("mlock_test")
}

func TestManager_AcquireReleaseRoundTrip(t *testing.T) {
	db := setupMongo(t)
	ctx := context.Background()

	m, err := mlock.New(ctx, db, "roundtrip", time.Second)
	require.NoError(t, err)

	require.NoError(t, m.Acquire(ctx))
	owned, err := m.Owned(ctx)
	require.NoError(t, err)
	require.True(t, owned)

	locked, err := m.Locked(ctx)
	require.NoError(t, err)
	require.True(t, locked)

	require.NoError(t, m.Release(ctx))
	owned, err = m.Owned(ctx)
	require.NoError(t, err)
	require.False(t, owned)

	locked, err = m.Locked(ctx)
	require.NoError(t, err)
	require.False(t, locked)
}

func TestManager_NonBlockingAcquireFailsWhenHeld(t *testing.T) {
	db := setupMongo(t)
	ctx := context.Background()

	holder, err := mlock.New(ctx, db, "contended", 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, holder.Acquire(ctx))

	challenger, err := mlock.New(ctx, db, "contended", 5*time.Second)
	require.NoError(t, err)

	err = challenger.Acquire(ctx, mlock.WithBlocking(false))
	require.Error(t, err)

	var existsErr *mlock.LockExistsError
	require.ErrorAs(t, err, &existsErr)
	owned, err := challenger.Owned(ctx)
	require.NoError(t, err)
	require.False(t, owned)
}

func TestManager_BlockingAcquireSucceedsAfterExpiry(t *testing.T) {
	db := setupMongo(t)
	ctx := context.Background()

	holder, err := mlock.New(ctx, db, "expiring", 500*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, holder.Acquire(ctx))

	challenger, err := mlock.New(ctx, db, "expiring", 500*time.Millisecond)
	require.NoError(t, err)

	acquireCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = challenger.Acquire(acquireCtx, mlock.WithStep(100*time.Millisecond))
	require.NoError(t, err)
	owned, err := challenger.Owned(ctx)
	require.NoError(t, err)
	require.True(t, owned)
}

func TestManager_TouchExtendsLease(t *testing.T) {
	db := setupMongo(t)
	ctx := context.Background()

	m, err := mlock.New(ctx, db, "touched", 2*time.Second)
	require.NoError(t, err)
	require.NoError(t, m.Acquire(ctx))

	before := m.Status()
	time.Sleep(50 * time.Millisecond)

	ok, err := m.Touch(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	after := m.Status()
	require.True(t, after.LockExpires.After(*before.LockExpires))
}

func TestManager_TouchFailsAfterLosingOwnership(t *testing.T) {
	db := setupMongo(t)
	ctx := context.Background()

	m, err := mlock.New(ctx, db, "lost", 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, m.Acquire(ctx))
	require.NoError(t, m.Release(ctx))

	ok, err := m.Touch(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestManager_ReleaseIsANoOpWhenNotOwned(t *testing.T) {
	db := setupMongo(t)
	ctx := context.Background()

	m, err := mlock.New(ctx, db, "neveracquired", time.Second)
	require.NoError(t, err)

	require.NoError(t, m.Release(ctx))
}

func TestManager_ForceAcquireSeizesOwnership(t *testing.T) {
	db := setupMongo(t)
	ctx := context.Background()

	holder, err := mlock.New(ctx, db, "seized", time.Hour)
	require.NoError(t, err)
	require.NoError(t, holder.Acquire(ctx))

	challenger, err := mlock.New(ctx, db, "seized", time.Hour)
	require.NoError(t, err)

	require.NoError(t, challenger.Acquire(ctx, mlock.WithBlocking(false), mlock.WithForce(true)))

	challengerOwned, err := challenger.Owned(ctx)
	require.NoError(t, err)
	require.True(t, challengerOwned)

	holderOwned, err := holder.Owned(ctx)
	require.NoError(t, err)
	require.False(t, holderOwned, "the seized document no longer carries the original holder's uuid")

	locked, err := holder.Locked(ctx)
	require.NoError(t, err)
	require.True(t, locked, "the document still exists, now owned by the challenger")
}

func TestManager_ForceReleaseRemovesAnotherOwnersLease(t *testing.T) {
	db := setupMongo(t)
	ctx := context.Background()

	holder, err := mlock.New(ctx, db, "torndown", time.Hour)
	require.NoError(t, err)
	require.NoError(t, holder.Acquire(ctx))

	evictor, err := mlock.New(ctx, db, "torndown", time.Hour)
	require.NoError(t, err)

	require.NoError(t, evictor.Release(ctx, mlock.WithForceRelease(true)))

	locked, err := holder.Locked(ctx)
	require.NoError(t, err)
	require.False(t, locked)

	holderOwned, err := holder.Owned(ctx)
	require.NoError(t, err)
	require.False(t, holderOwned)
}

func TestManager_DoReleasesOnError(t *testing.T) {
	db := setupMongo(t)
	ctx := context.Background()

	m, err := mlock.New(ctx, db, "scoped", 5*time.Second)
	require.NoError(t, err)

	err = m.Do(ctx, func(ctx context.Context) error {
		return context.DeadlineExceeded
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	owned, err := m.Owned(ctx)
	require.NoError(t, err)
	require.False(t, owned)
}

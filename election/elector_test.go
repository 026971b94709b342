package election_test

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fleetctl/mongoelect/election"
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

	return client.Database("election_test")
}

func TestElector_SoloElection(t *testing.T) {
	db := setupMongo(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var becameLeader atomic.Bool
	e, err := election.New(ctx, db, "solo",
		election.WithTTL(time.Second),
		election.WithCallbacks(election.Callbacks{
			OnLeader: func() { becameLeader.Store(true) },
		}),
	)
	require.NoError(t, err)

	e.Start(ctx)
	defer e.Stop(context.Background())

	require.Eventually(t, becameLeader.Load, 5*time.Second, 50*time.Millisecond)
	require.True(t, e.IsLeader())
}

func TestElector_Failover(t *testing.T) {
	db := setupMongo(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	var leaderChanges atomic.Int32
	e1, err := election.New(ctx, db, "failover", election.WithTTL(time.Second),
		election.WithCallbacks(election.Callbacks{OnLeader: func() { leaderChanges.Add(1) }}))
	require.NoError(t, err)

	var e2Leader atomic.Bool
	e2, err := election.New(ctx, db, "failover", election.WithTTL(time.Second),
		election.WithCallbacks(election.Callbacks{OnLeader: func() { e2Leader.Store(true) }}))
	require.NoError(t, err)

	e1.Start(ctx)
	require.Eventually(t, func() bool { return leaderChanges.Load() == 1 }, 5*time.Second, 50*time.Millisecond)

	e2.Start(ctx)
	defer e2.Stop(context.Background())
	require.False(t, e2.IsLeader())

	require.NoError(t, e1.Stop(context.Background()))

	require.Eventually(t, e2Leader.Load, 10*time.Second, 100*time.Millisecond)
	require.True(t, e2.IsLeader())
}

func TestElector_OnLeaderLossFiresOnRelease(t *testing.T) {
	db := setupMongo(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var lost atomic.Bool
	e, err := election.New(ctx, db, "voluntary-release", election.WithTTL(time.Second),
		election.WithCallbacks(election.Callbacks{OnLeaderLoss: func() { lost.Store(true) }}))
	require.NoError(t, err)

	e.Start(ctx)
	require.Eventually(t, e.IsLeader, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, e.Stop(context.Background()))
	require.True(t, lost.Load())
	require.False(t, e.IsLeader())
}

func TestElector_ClusterDetailThreeNodes(t *testing.T) {
	db := setupMongo(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	electors := make([]*election.Elector, 3)
	for i := range electors {
		e, err := election.New(ctx, db, "cluster", election.WithTTL(time.Second))
		require.NoError(t, err)
		electors[i] = e
		e.Start(ctx)
	}
	defer func() {
		for _, e := range electors {
			e.Stop(context.Background())
		}
	}()

	require.Eventually(t, func() bool {
		detail, err := electors[0].ClusterDetail(ctx)
		return err == nil && len(detail.Members) == 3 && detail.Leader != nil
	}, 10*time.Second, 100*time.Millisecond)

	detail, err := electors[0].ClusterDetail(ctx)
	require.NoError(t, err)
	require.Len(t, detail.Members, 3)
	require.NotNil(t, detail.Leader)

	leaderCount := 0
	for _, e := range electors {
		if e.IsLeader() {
			leaderCount++
		}
	}
	require.Equal(t, 1, leaderCount)
}

func TestElector_NodeStatusReflectsLeadership(t *testing.T) {
	db := setupMongo(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	e, err := election.New(ctx, db, "node-status", election.WithTTL(time.Second), election.WithAppVersion("test-build"))
	require.NoError(t, err)

	e.Start(ctx)
	defer e.Stop(context.Background())

	require.Eventually(t, e.IsLeader, 5*time.Second, 50*time.Millisecond)

	status := e.NodeStatus()
	require.True(t, status.IsLeader)
	require.True(t, status.ElectorRunning)
	require.Equal(t, "node-status", status.Key)
	require.Equal(t, "test-build", status.AppVersion)
	require.NotNil(t, status.LockCreated)
	require.NotNil(t, status.LockExpires)
}

func TestElector_PollWaitHalvesWhileLeading(t *testing.T) {
	db := setupMongo(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	e, err := election.New(ctx, db, "pollwait", election.WithTTL(2*time.Second))
	require.NoError(t, err)

	require.Equal(t, 2*time.Second, e.PollWait())

	e.Start(ctx)
	defer e.Stop(context.Background())
	require.Eventually(t, e.IsLeader, 5*time.Second, 50*time.Millisecond)

	require.Equal(t, time.Second, e.PollWait())
}

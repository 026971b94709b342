// Package election implements distributed leader election on top of
// package mlock's MongoDB lease primitive: a background poll loop
// periodically renews leadership if held, attempts to acquire it if not,
// and reports a per-instance heartbeat so the cluster can be inspected.
package election

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fleetctl/mongoelect/internal/mongoindex"
	"github.com/fleetctl/mongoelect/mlock"
)

const (
	defaultLockCollection   = "elector.locks"
	defaultStatusCollection = "elector.leader_status"
)

// Elector coordinates distributed leader election for a single key. One
// Elector corresponds to one logical candidate; a process that contends for
// several independent leaderships constructs one Elector per key.
type Elector struct {
	key        string
	ttl        time.Duration
	callbacks    Callbacks
	appVersion   string
	reportFlag   bool
	pollObserver func(time.Duration)

	lock       *mlock.Manager
	statusColl *mongo.Collection

	pollMu sync.Mutex

	lastPollMu sync.Mutex
	lastPoll   time.Time

	wasLeader atomic.Bool
	shutdown  atomic.Bool
	running   atomic.Bool

	// callbackDepth is nonzero while the goroutine driving poll() is
	// inside a user callback. Stop/Release consult it to avoid blocking
	// on their own poll goroutine when called from within a callback —
	// sync.Mutex has no notion of "this goroutine already holds the
	// lock", so this is the narrowest signal available: it widens only
	// for the duration of the callback invocation itself.
	callbackDepth atomic.Int32

	cancel context.CancelFunc
	doneCh chan struct{}
}

// New constructs an Elector for key against db. Construction installs the
// TTL index backing the status heartbeat collection, so it requires a live
// connection.
func New(ctx context.Context, db *mongo.Database, key string, opts ...Option) (*Elector, error) {
	if key == "" {
		return nil, errors.New("election: key must not be empty")
	}

	cfg := electorConfig{
		ttl:          defaultTTL,
		reportStatus: true,
		collection:   defaultLockCollection,
		statusColl:   defaultStatusCollection,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	lock, err := mlock.New(ctx, db, key, cfg.ttl,
		mlock.WithCollection(cfg.collection),
		mlock.WithTimeParanoid(true),
	)
	if err != nil {
		return nil, fmt.Errorf("election: %w", err)
	}

	statusColl := db.Collection(cfg.statusColl)
	if err := ensureStatusIndexes(ctx, statusColl, cfg.ttl); err != nil {
		return nil, fmt.Errorf("election: %w", err)
	}

	e := &Elector{
		key:          key,
		ttl:          cfg.ttl,
		callbacks:    cfg.callbacks,
		appVersion:   cfg.appVersion,
		reportFlag:   cfg.reportStatus,
		pollObserver: cfg.pollObserver,
		lock:         lock,
		statusColl:   statusColl,
	}
	return e, nil
}

func ensureStatusIndexes(ctx context.Context, coll *mongo.Collection, ttl time.Duration) error {
	ttlIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "timestamp", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(int32(ttl.Seconds())),
	}
	if err := mongoindex.EnsureOne(ctx, coll, ttlIdx); err != nil {
		return err
	}
	keyIdx := mongo.IndexModel{Keys: bson.D{{Key: "key", Value: 1}}}
	_, err := coll.Indexes().CreateOne(ctx, keyIdx)
	if err != nil && !mongoindex.IsConflict(err) {
		return fmt.Errorf("create key index: %w", err)
	}
	return nil
}

// String identifies the elector for logging, mirroring a %v-friendly
// leader/follower, running/stopped summary.
func (e *Elector) String() string {
	leader := "follower"
	if e.IsLeader() {
		leader = "leader"
	}
	state := "stopped"
	if e.Running() {
		state = "running"
	}
	return fmt.Sprintf("election.Elector(key=%s, %s, %s, uuid=%s)", e.key, leader, state, e.lock.UUID())
}

// Start launches the background poll loop. The loop runs until ctx is
// canceled or Stop is called; Start itself never blocks.
func (e *Elector) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.shutdown.Store(false)
	e.running.Store(true)
	e.doneCh = make(chan struct{})
	go e.run(runCtx)
}

func (e *Elector) run(ctx context.Context) {
	defer close(e.doneCh)
	defer e.running.Store(false)
	for {
		if ctx.Err() != nil || e.shutdown.Load() {
			return
		}
		e.poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(e.PollWait()):
		}
	}
}

// Stop halts the poll loop and releases leadership. It blocks until the
// loop goroutine has exited, unless Stop is itself being called from
// within a callback the loop goroutine is currently running — blocking in
// that case would deadlock the loop against itself.
func (e *Elector) Stop(ctx context.Context) error {
	e.shutdown.Store(true)
	if e.cancel != nil {
		e.cancel()
	}
	if e.doneCh != nil && e.callbackDepth.Load() == 0 {
		<-e.doneCh
	}
	return e.Release(ctx)
}

// Running reports whether the poll loop goroutine is currently active.
func (e *Elector) Running() bool { return e.running.Load() }

// IsLeader reports whether this instance currently holds leadership, per
// the poll loop's own local bookkeeping. It does not round-trip to the
// server; LeaderExists/ClusterDetail do that when a live view is needed.
func (e *Elector) IsLeader() bool { return e.wasLeader.Load() }

// LeaderExists reports whether any instance currently holds a live lease
// on the key, as of a fresh read from the server.
func (e *Elector) LeaderExists(ctx context.Context) (bool, error) {
	return e.lock.Locked(ctx)
}

// PollWait is the delay before the next poll cycle: half the TTL while
// leading, so a healthy leader renews roughly twice per lease window, and
// the full TTL while following.
func (e *Elector) PollWait() time.Duration {
	if e.wasLeader.Load() {
		return e.ttl / 2
	}
	return e.ttl
}

func (e *Elector) poll(ctx context.Context) {
	e.pollMu.Lock()
	defer e.pollMu.Unlock()

	pollStart := time.Now()
	if e.pollObserver != nil {
		defer func() { e.pollObserver(time.Since(pollStart)) }()
	}

	e.setLastPoll(pollStart.UTC())

	owned, err := e.lock.Owned(ctx)
	if err != nil {
		slog.Warn("election: owned check failed", "key", e.key, "error", err)
	}
	if owned {
		e.wasLeader.Store(true)
		if _, err := e.lock.Touch(ctx); err != nil {
			slog.Warn("election: touch failed", "key", e.key, "error", err)
		}
	} else if e.wasLeader.Load() {
		e.wasLeader.Store(false)
		e.fireCallback(e.callbacks.OnLeaderLoss, "on_leader_loss")
	}

	leaderExists, err := e.lock.Locked(ctx)
	if err != nil {
		slog.Warn("election: leader_exists check failed", "key", e.key, "error", err)
	} else if !leaderExists && !e.shutdown.Load() {
		acqErr := e.lock.Acquire(ctx, mlock.WithBlocking(false))
		switch {
		case acqErr == nil:
			e.wasLeader.Store(true)
			e.fireCallback(e.callbacks.OnLeader, "on_leader")
		default:
			var lockExists *mlock.LockExistsError
			if !errors.Is(acqErr, mlock.ErrLockExists) && !errors.As(acqErr, &lockExists) {
				slog.Warn("election: acquire attempt failed", "key", e.key, "error", acqErr)
			}
		}
	}

	if e.reportFlag {
		if err := e.reportNodeStatus(ctx); err != nil {
			slog.Warn("election: status report failed", "key", e.key, "error", err)
		}
	}

	e.fireCallback(e.callbacks.OnLoop, "on_loop")
}

// fireCallback invokes cb, if non-nil, trapping any panic so a bug in
// embedder code can never desynchronize the poll loop.
func (e *Elector) fireCallback(cb func(), name string) {
	if cb == nil {
		return
	}
	e.callbackDepth.Add(1)
	defer e.callbackDepth.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("election: callback panic", "callback", name, "key", e.key, "panic", r)
		}
	}()
	cb()
}

// Release gives up leadership immediately, without waiting for the poll
// loop to notice. Safe to call while the loop is running, including from
// within a callback the loop is currently executing.
func (e *Elector) Release(ctx context.Context) error {
	reentrant := e.callbackDepth.Load() > 0
	if !reentrant {
		e.pollMu.Lock()
		defer e.pollMu.Unlock()
	}
	return e.releaseLocked(ctx)
}

func (e *Elector) releaseLocked(ctx context.Context) error {
	if err := e.lock.Release(ctx); err != nil {
		return fmt.Errorf("election: release: %w", err)
	}
	if e.wasLeader.Load() {
		e.wasLeader.Store(false)
		e.fireCallback(e.callbacks.OnLeaderLoss, "on_leader_loss")
	}
	return nil
}

func (e *Elector) setLastPoll(t time.Time) {
	e.lastPollMu.Lock()
	e.lastPoll = t
	e.lastPollMu.Unlock()
}

func (e *Elector) getLastPoll() time.Time {
	e.lastPollMu.Lock()
	defer e.lastPollMu.Unlock()
	return e.lastPoll
}

// NodeStatus builds this instance's current heartbeat document from local
// state — no round trip to the server. reportNodeStatus persists exactly
// this into the status collection every poll cycle; HTTP callers read it
// directly for an up-to-the-last-poll view without waiting on Mongo.
func (e *Elector) NodeStatus() StatusDoc {
	st := e.lock.Status()
	lastPoll := e.getLastPoll()
	return StatusDoc{
		ID:             st.UUID,
		Key:            e.key,
		Host:           st.Host,
		PID:            st.PID,
		UUID:           st.UUID,
		TTLSeconds:     st.TTLSeconds,
		Timestamp:      st.Timestamp,
		IsLeader:       e.IsLeader(),
		ElectorRunning: e.Running(),
		LastPoll:       &lastPoll,
		AppVersion:     e.appVersion,
		LockCreated:    st.LockCreated,
		LockExpires:    st.LockExpires,
	}
}

func (e *Elector) reportNodeStatus(ctx context.Context) error {
	doc := e.NodeStatus()
	filter := bson.M{"_id": doc.ID}
	update := bson.M{"$set": doc}
	_, err := e.statusColl.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

// ClusterDetail reads every live StatusDoc for this key, newest heartbeat
// first, and reports the current leader as seen by the status collection.
func (e *Elector) ClusterDetail(ctx context.Context) (*ClusterDetail, error) {
	cursor, err := e.statusColl.Find(ctx,
		bson.M{"key": e.key},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("election: cluster_detail: %w", err)
	}
	defer cursor.Close(ctx)

	var members []StatusDoc
	if err := cursor.All(ctx, &members); err != nil {
		return nil, fmt.Errorf("election: cluster_detail decode: %w", err)
	}

	return &ClusterDetail{
		Members:   members,
		Leader:    parseLeader(members),
		Timestamp: time.Now().UTC(),
	}, nil
}

// Do runs the elector in the foreground, blocking until ctx is canceled,
// then stops it and releases leadership before returning. Intended for a
// process whose entire job is to run one elector to completion.
func (e *Elector) Do(ctx context.Context) error {
	e.Start(ctx)
	<-ctx.Done()
	return e.Stop(context.WithoutCancel(ctx))
}

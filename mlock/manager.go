package mlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fleetctl/mongoelect/internal/mongoindex"
)

// Manager owns one key's lease document in a collection and serializes all
// acquire/release/touch traffic for that key through a single *Manager
// instance. A process that needs several independent locks constructs one
// Manager per key.
type Manager struct {
	mu sync.Mutex

	coll *mongo.Collection
	key  string
	ttl  time.Duration

	collectionName string
	timeParanoid   bool
	maxOffset      time.Duration

	host string
	pid  int
	uuid string

	owned       bool
	lockCreated time.Time
	lockExpires time.Time

	offsetMu       sync.Mutex
	offsetCachedAt time.Time
	offsetOK       bool
}

// New constructs a Manager for key against db, with ttl as the lease
// duration applied on every Acquire. Construction installs the TTL index
// backing expiry immediately; if an earlier deployment left behind an
// incompatible index under the same name, every index on the collection is
// dropped and recreated.
func New(ctx context.Context, db *mongo.Database, key string, ttl time.Duration, opts ...Option) (*Manager, error) {
	if db == nil {
		return nil, errors.New("mlock: database handle must not be nil")
	}
	if key == "" {
		return nil, errors.New("mlock: key must not be empty")
	}
	if ttl <= 0 {
		return nil, errors.New("mlock: ttl must be positive")
	}

	cfg := config{
		collection: DefaultCollection,
		maxOffset:  defaultMaxOffset,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	m := &Manager{
		coll:           db.Collection(cfg.collection),
		key:            key,
		ttl:            ttl,
		collectionName: cfg.collection,
		timeParanoid:   cfg.timeParanoid,
		maxOffset:      cfg.maxOffset,
		host:           host,
		pid:            os.Getpid(),
		uuid:           uuid.NewString(),
	}

	if err := m.ensureIndexes(ctx); err != nil {
		return nil, err
	}

	return m, nil
}

// String identifies the manager for logging.
func (m *Manager) String() string {
	return fmt.Sprintf("mlock.Manager(key=%s, uuid=%s)", m.key, m.uuid)
}

// UUID is this Manager instance's unique identity, written into every
// document it creates.
func (m *Manager) UUID() string { return m.uuid }

func (m *Manager) ensureIndexes(ctx context.Context) error {
	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "ts_expire", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	}
	return mongoindex.EnsureOne(ctx, m.coll, idx)
}

// Acquire attempts to take ownership of the key. By default it blocks,
// retrying every 250ms (configurable via WithStep) until it succeeds or an
// optional WithTimeout elapses; WithBlocking(false) makes it try exactly
// once and return *LockExistsError when the key is already held.
func (m *Manager) Acquire(ctx context.Context, opts ...AcquireOption) error {
	cfg := acquireConfig{
		blocking: true,
		step:     defaultStep,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !cfg.blocking && cfg.timeout != nil {
		return errors.New("mlock: WithTimeout has no effect combined with WithBlocking(false)")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timeParanoid {
		if err := m.checkClockSkew(ctx); err != nil {
			return err
		}
	}

	start := time.Now()
	for attempt := 0; retryAllowed(cfg.blocking, start, time.Now(), cfg.timeout, attempt); attempt++ {
		acquired, existing, err := m.tryInsert(ctx, cfg.force)
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}
		if !cfg.blocking {
			return lockExistsErr(m.key, existing)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.step):
		}
	}
	return ErrAcquireTimeout
}

func lockExistsErr(key string, existing *LockDoc) error {
	if existing == nil {
		return &LockExistsError{Key: key}
	}
	return &LockExistsError{
		Key:       key,
		Host:      existing.Host,
		PID:       existing.PID,
		ExpiresAt: existing.TSExpire,
	}
}

// tryInsert performs a single atomic acquire attempt: replace the document
// if it doesn't exist or has expired (or force is set), otherwise report
// the current holder back to the caller.
func (m *Manager) tryInsert(ctx context.Context, force bool) (acquired bool, existing *LockDoc, err error) {
	now := time.Now().UTC()
	doc := LockDoc{
		ID:        m.key,
		Locked:    true,
		Host:      m.host,
		PID:       m.pid,
		UUID:      m.uuid,
		TSCreated: now,
		TSExpire:  now.Add(m.ttl),
	}

	filter := bson.M{"_id": m.key}
	if !force {
		filter["$or"] = []bson.M{
			{"ts_expire": bson.M{"$lte": now}},
			{"_id": bson.M{"$exists": false}},
		}
	}

	opts := options.FindOneAndReplace().SetUpsert(true).SetReturnDocument(options.After)
	var result LockDoc
	err = m.coll.FindOneAndReplace(ctx, filter, doc, opts).Decode(&result)
	if err != nil {
		if isDuplicateKey(err) {
			current, getErr := m.current(ctx)
			if getErr != nil {
				return false, nil, getErr
			}
			return false, current, nil
		}
		return false, nil, fmt.Errorf("mlock: acquire %q: %w", m.key, err)
	}

	if result.UUID != m.uuid {
		return false, &result, nil
	}

	m.owned = true
	m.lockCreated = doc.TSCreated
	m.lockExpires = doc.TSExpire

	slog.Debug("mlock: acquired", "key", m.key, "uuid", m.uuid, "expires_at", doc.TSExpire)
	return true, nil, nil
}

func isDuplicateKey(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		return ce.Code == 11000
	}
	return false
}

func (m *Manager) current(ctx context.Context) (*LockDoc, error) {
	var doc LockDoc
	err := m.coll.FindOne(ctx, bson.M{"_id": m.key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mlock: read %q: %w", m.key, err)
	}
	return &doc, nil
}

// Release gives up ownership of the key. By default it is scoped to this
// Manager's own lease (`{_id:key, uuid:m.uuid}`) and is a silent no-op if
// this Manager does not currently hold the key, mirroring the teacher's
// ReleaseLock contract of only ever deleting what you own. WithForceRelease(true)
// deletes the document unconditionally (`{_id:key}`), tearing down another
// owner's live lease.
func (m *Manager) Release(ctx context.Context, opts ...ReleaseOption) error {
	cfg := releaseConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !cfg.force && !m.owned {
		return nil
	}

	filter := bson.M{"_id": m.key}
	if !cfg.force {
		filter["uuid"] = m.uuid
	}
	result, err := m.coll.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("mlock: release %q: %w", m.key, err)
	}

	m.owned = false
	if result.DeletedCount > 0 {
		slog.Debug("mlock: released", "key", m.key, "uuid", m.uuid, "force", cfg.force)
	}
	return nil
}

// Touch refreshes the lease's expiry, extending ownership by ttl from now.
// It reports false, without error, if this Manager no longer owns the key
// — the caller is expected to treat that as having lost the lock.
func (m *Manager) Touch(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.owned {
		return false, nil
	}

	now := time.Now().UTC()
	newExpiry := now.Add(m.ttl)
	filter := bson.M{"_id": m.key, "uuid": m.uuid, "locked": true, "ts_expire": bson.M{"$gt": now}}
	update := bson.M{"$set": bson.M{"ts_expire": newExpiry}}

	result, err := m.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("mlock: touch %q: %w", m.key, err)
	}
	if result.MatchedCount == 0 {
		m.owned = false
		return false, nil
	}

	m.lockExpires = newExpiry
	return true, nil
}

// Owned reports whether this Manager currently holds the key, as of a fresh
// read from the server: the LockDoc must exist, be unexpired, and carry this
// Manager's uuid. A seizure by another Manager via WithForce is visible here
// immediately, without waiting for this Manager's next Touch or Release.
func (m *Manager) Owned(ctx context.Context) (bool, error) {
	doc, err := m.current(ctx)
	if err != nil {
		return false, err
	}
	owned := doc != nil && doc.UUID == m.uuid && doc.TSExpire.After(time.Now().UTC())

	m.mu.Lock()
	m.owned = owned
	m.mu.Unlock()

	return owned, nil
}

// Locked reports whether any manager — this one or another — currently
// holds a live lease on the key, as of a fresh read from the server.
func (m *Manager) Locked(ctx context.Context) (bool, error) {
	doc, err := m.current(ctx)
	if err != nil {
		return false, err
	}
	if doc == nil {
		return false, nil
	}
	return doc.TSExpire.After(time.Now().UTC()), nil
}

// Current returns the active LockDoc for this key, or nil if no lease
// currently exists, as of a fresh read from the server.
func (m *Manager) Current(ctx context.Context) (*LockDoc, error) {
	return m.current(ctx)
}

// Status reports a point-in-time snapshot of this Manager's identity and
// ownership, suitable for embedding in a heartbeat or status document.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Status{
		UUID:       m.uuid,
		Host:       m.host,
		PID:        m.pid,
		Key:        m.key,
		TTLSeconds: m.ttl.Seconds(),
		Timestamp:  time.Now().UTC(),
		Owned:      m.owned,
	}
	if m.owned {
		created, expires := m.lockCreated, m.lockExpires
		s.LockCreated = &created
		s.LockExpires = &expires
	}
	return s
}

// Do acquires the key, runs fn, and releases the key, regardless of whether
// fn returns an error. The acquire error, if any, short-circuits fn.
func (m *Manager) Do(ctx context.Context, fn func(ctx context.Context) error, opts ...AcquireOption) error {
	if err := m.Acquire(ctx, opts...); err != nil {
		return err
	}
	defer func() {
		if err := m.Release(ctx); err != nil {
			slog.Warn("mlock: release after Do failed", "key", m.key, "error", err)
		}
	}()
	return fn(ctx)
}

// checkClockSkew compares the local clock against the database server's
// clock via the isMaster/hello reply's localTime field, and fails the
// acquire if they have drifted apart by more than maxOffset. A passing
// result is cached for timeCheckCacheWindow since server time rarely drifts
// quickly and the check would otherwise cost a round trip on every acquire;
// a failing check is repeated on the next acquire.
func (m *Manager) checkClockSkew(ctx context.Context) error {
	m.offsetMu.Lock()
	defer m.offsetMu.Unlock()

	if m.offsetOK && time.Since(m.offsetCachedAt) < timeCheckCacheWindow {
		return nil
	}

	var reply struct {
		LocalTime time.Time `bson:"localTime"`
	}
	before := time.Now()
	err := m.coll.Database().RunCommand(ctx, bson.D{{Key: "isMaster", Value: 1}}).Decode(&reply)
	after := time.Now()
	if err != nil {
		return fmt.Errorf("mlock: clock skew check: %w", err)
	}

	roundTrip := after.Sub(before)
	localEstimate := before.Add(roundTrip / 2)
	offset := reply.LocalTime.Sub(localEstimate)
	if offset < 0 {
		offset = -offset
	}

	m.offsetOK = offset <= m.maxOffset
	if !m.offsetOK {
		return &TimeOffsetError{Offset: offset, MaxOffset: m.maxOffset}
	}
	m.offsetCachedAt = after
	return nil
}

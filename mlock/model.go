package mlock

import "time"

// LockDoc is the single document that represents ownership of a key. It is
// logically absent once TSExpire is in the past, whether or not the TTL
// reaper has gotten around to deleting it yet.
type LockDoc struct {
	ID        string    `bson:"_id"`
	Locked    bool      `bson:"locked"`
	Host      string    `bson:"host"`
	PID       int       `bson:"pid"`
	UUID      string    `bson:"uuid"`
	TSCreated time.Time `bson:"ts_created"`
	TSExpire  time.Time `bson:"ts_expire"`
}

// Status is a point-in-time snapshot of a Manager's identity and ownership,
// suitable for embedding in a heartbeat document. LockCreated/LockExpires
// are nil unless the snapshot was taken while the manager owned the lock.
type Status struct {
	UUID        string
	Host        string
	PID         int
	Key         string
	TTLSeconds  float64
	Timestamp   time.Time
	Owned       bool
	LockCreated *time.Time
	LockExpires *time.Time
}

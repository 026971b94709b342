// Package mlock implements a TTL-based distributed mutual-exclusion lock
// backed by a single MongoDB document per key. It is used standalone or as
// the primitive underneath package election.
package mlock

// Package mongoindex holds the small amount of index-management logic
// shared by the lock and election collections: both need to install a TTL
// index at construction time and both need the same "drop everything and
// recreate" recovery path when an earlier deployment left behind an index
// with incompatible options.
package mongoindex

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

// indexOptionsConflict and indexKeySpecsConflict are the MongoDB error codes
// returned when an index already exists with different options, or a
// different key spec under the same name.
const (
	indexOptionsConflict  = 85
	indexKeySpecsConflict = 86
)

// IsConflict reports whether err is a MongoDB index-conflict error.
func IsConflict(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code == indexOptionsConflict || cmdErr.Code == indexKeySpecsConflict
	}
	return false
}

// EnsureOne creates idx on coll, and if that fails with an index conflict,
// drops every index on the collection and retries once. This is the
// "aggressive" reconciliation spec.md calls for: TTL indexes must match the
// configured lease, and a mismatched leftover index is treated as an
// administrative accident to be corrected rather than an error to surface.
func EnsureOne(ctx context.Context, coll *mongo.Collection, idx mongo.IndexModel) error {
	_, err := coll.Indexes().CreateOne(ctx, idx)
	if err == nil {
		return nil
	}
	if !IsConflict(err) {
		return fmt.Errorf("create index: %w", err)
	}
	if _, dropErr := coll.Indexes().DropAll(ctx); dropErr != nil {
		return fmt.Errorf("drop conflicting indexes: %w", dropErr)
	}
	if _, err := coll.Indexes().CreateOne(ctx, idx); err != nil {
		return fmt.Errorf("recreate index after conflict: %w", err)
	}
	return nil
}

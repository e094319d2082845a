// Package graphcache keeps, per user, the set of accepted peers.
//
// The cache is derived from the ledger and only exists for fast reads. All
// mutations are idempotent and symmetric: AddPeer(a, b) writes both a->b and
// b->a, RemovePeer(a, b) deletes both.
package graphcache

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Cache is the graph cache contract shared by every backend.
type Cache interface {
	// AddPeer records that a and b are connected, in both directions.
	AddPeer(ctx context.Context, a, b string) error
	// RemovePeer drops the connection between a and b, in both directions.
	RemovePeer(ctx context.Context, a, b string) error
	// Contains reports whether peerID is in userID's entry.
	Contains(ctx context.Context, userID, peerID string) (bool, error)
	// ListPeers returns userID's peers in lexical order. An unknown user has none.
	ListPeers(ctx context.Context, userID string) ([]string, error)
	// Users returns every user with a non-empty entry.
	Users(ctx context.Context) ([]string, error)
	// Reset clears the whole cache. Used by the rebuild job.
	Reset(ctx context.Context) error
}

// Transactional is implemented by caches stored in the ledger's database.
// WithTx binds the cache to an open transaction so that ledger and cache
// writes commit or roll back together.
type Transactional interface {
	WithTx(tx *gorm.DB) Cache
}

// Backend names accepted by New.
const (
	BackendSQL   = "sql"
	BackendRedis = "redis"
	BackendNeo4j = "neo4j"
)

func validate(a, b string) error {
	if a == "" || b == "" {
		return fmt.Errorf("graphcache: empty user id")
	}
	if a == b {
		return fmt.Errorf("graphcache: user %s cannot be its own peer", a)
	}
	return nil
}

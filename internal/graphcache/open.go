package graphcache

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Options selects and configures a backend for New.
type Options struct {
	Backend string

	RedisURL string

	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
}

// New builds the cache named by opts.Backend. The returned close function
// releases the backend's connections; it is a no-op for the SQL cache.
func New(ctx context.Context, db *gorm.DB, opts Options) (Cache, func(context.Context) error, error) {
	switch opts.Backend {
	case "", BackendSQL:
		return NewSQLCache(db), func(context.Context) error { return nil }, nil

	case BackendRedis:
		client, err := NewRedisClient(ctx, opts.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return NewRedisCache(client), func(context.Context) error { return client.Close() }, nil

	case BackendNeo4j:
		driver, err := NewNeo4jDriver(ctx, opts.Neo4jURI, opts.Neo4jUser, opts.Neo4jPassword)
		if err != nil {
			return nil, nil, err
		}
		c := NewNeo4jCache(driver)
		if err := c.EnsureSchema(ctx); err != nil {
			_ = driver.Close(ctx)
			return nil, nil, fmt.Errorf("ensure neo4j schema: %w", err)
		}
		return c, driver.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}

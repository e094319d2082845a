package graphcache

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jCache stores accepted connections as CONNECTED edges between User
// nodes, one edge per direction.
type Neo4jCache struct {
	driver neo4j.DriverWithContext
}

// NewNeo4jCache creates a cache on an already connected driver.
func NewNeo4jCache(driver neo4j.DriverWithContext) *Neo4jCache {
	return &Neo4jCache{driver: driver}
}

// NewNeo4jDriver opens a driver and verifies connectivity.
func NewNeo4jDriver(ctx context.Context, uri, user, password string) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("connect to neo4j at %s: %w", uri, err)
	}
	return driver, nil
}

// EnsureSchema creates the uniqueness constraint on User.id. Idempotent.
func (c *Neo4jCache) EnsureSchema(ctx context.Context) error {
	return c.write(ctx, `CREATE CONSTRAINT user_id_unique IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE`, nil)
}

func (c *Neo4jCache) AddPeer(ctx context.Context, a, b string) error {
	if err := validate(a, b); err != nil {
		return err
	}
	// MERGE makes both edges idempotent.
	query := `
		MERGE (a:User {id: $a})
		MERGE (b:User {id: $b})
		MERGE (a)-[ab:CONNECTED]->(b)
		ON CREATE SET ab.created_at = datetime()
		MERGE (b)-[ba:CONNECTED]->(a)
		ON CREATE SET ba.created_at = datetime()
	`
	if err := c.write(ctx, query, map[string]any{"a": a, "b": b}); err != nil {
		return fmt.Errorf("add peer %s<->%s: %w", a, b, err)
	}
	return nil
}

func (c *Neo4jCache) RemovePeer(ctx context.Context, a, b string) error {
	if err := validate(a, b); err != nil {
		return err
	}
	query := `
		MATCH (a:User {id: $a})-[r:CONNECTED]-(b:User {id: $b})
		DELETE r
	`
	if err := c.write(ctx, query, map[string]any{"a": a, "b": b}); err != nil {
		return fmt.Errorf("remove peer %s<->%s: %w", a, b, err)
	}
	return nil
}

func (c *Neo4jCache) Contains(ctx context.Context, userID, peerID string) (bool, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	found, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (:User {id: $user})-[r:CONNECTED]->(:User {id: $peer})
			RETURN count(r) > 0 AS found
		`
		res, err := tx.Run(ctx, query, map[string]any{"user": userID, "peer": peerID})
		if err != nil {
			return false, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return false, err
		}
		v, _ := rec.Get("found")
		b, _ := v.(bool)
		return b, nil
	})
	if err != nil {
		return false, fmt.Errorf("contains %s->%s: %w", userID, peerID, err)
	}
	return found.(bool), nil
}

func (c *Neo4jCache) ListPeers(ctx context.Context, userID string) ([]string, error) {
	query := `MATCH (:User {id: $user})-[:CONNECTED]->(p:User) RETURN p.id AS id ORDER BY id`
	peers, err := c.readIDs(ctx, query, map[string]any{"user": userID})
	if err != nil {
		return nil, fmt.Errorf("list peers of %s: %w", userID, err)
	}
	return peers, nil
}

func (c *Neo4jCache) Users(ctx context.Context) ([]string, error) {
	query := `MATCH (u:User)-[:CONNECTED]->() RETURN DISTINCT u.id AS id ORDER BY id`
	users, err := c.readIDs(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("list cache users: %w", err)
	}
	return users, nil
}

func (c *Neo4jCache) Reset(ctx context.Context) error {
	if err := c.write(ctx, `MATCH ()-[r:CONNECTED]->() DELETE r`, nil); err != nil {
		return fmt.Errorf("reset cache: %w", err)
	}
	return nil
}

func (c *Neo4jCache) write(ctx context.Context, query string, params map[string]any) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, params)
		return nil, err
	})
	return err
}

func (c *Neo4jCache) readIDs(ctx context.Context, query string, params map[string]any) ([]string, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		ids := []string{}
		for res.Next(ctx) {
			id, _ := res.Record().Get("id")
			if s, ok := id.(string); ok {
				ids = append(ids, s)
			}
		}
		return ids, res.Err()
	})
	if err != nil {
		return nil, err
	}
	return out.([]string), nil
}

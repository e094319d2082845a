package graphcache

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "connections:"

// RedisCache keeps one redis SET per user, keyed "connections:<user id>".
// Writes are not part of the ledger transaction; the service applies them
// after commit with retries.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCache creates a cache on the given client.
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client, prefix: redisKeyPrefix}
}

// NewRedisClient parses a redis:// URL and checks the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}
	return client, nil
}

func (c *RedisCache) key(userID string) string {
	return c.prefix + userID
}

func (c *RedisCache) AddPeer(ctx context.Context, a, b string) error {
	if err := validate(a, b); err != nil {
		return err
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, c.key(a), b)
		pipe.SAdd(ctx, c.key(b), a)
		return nil
	})
	if err != nil {
		return fmt.Errorf("add peer %s<->%s: %w", a, b, err)
	}
	return nil
}

func (c *RedisCache) RemovePeer(ctx context.Context, a, b string) error {
	if err := validate(a, b); err != nil {
		return err
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, c.key(a), b)
		pipe.SRem(ctx, c.key(b), a)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove peer %s<->%s: %w", a, b, err)
	}
	return nil
}

func (c *RedisCache) Contains(ctx context.Context, userID, peerID string) (bool, error) {
	ok, err := c.client.SIsMember(ctx, c.key(userID), peerID).Result()
	if err != nil {
		return false, fmt.Errorf("contains %s->%s: %w", userID, peerID, err)
	}
	return ok, nil
}

func (c *RedisCache) ListPeers(ctx context.Context, userID string) ([]string, error) {
	peers, err := c.client.SMembers(ctx, c.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list peers of %s: %w", userID, err)
	}
	sort.Strings(peers)
	return peers, nil
}

func (c *RedisCache) Users(ctx context.Context) ([]string, error) {
	keys, err := c.scanKeys(ctx)
	if err != nil {
		return nil, err
	}
	users := make([]string, 0, len(keys))
	for _, k := range keys {
		users = append(users, strings.TrimPrefix(k, c.prefix))
	}
	sort.Strings(users)
	return users, nil
}

func (c *RedisCache) Reset(ctx context.Context) error {
	keys, err := c.scanKeys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("reset cache: %w", err)
	}
	return nil
}

// Redis drops empty sets, so every key found here has at least one peer.
func (c *RedisCache) scanKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan cache keys: %w", err)
	}
	return keys, nil
}

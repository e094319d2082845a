package graphcache

import (
	"context"
	"fmt"

	"cardlink/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLCache stores the cache as a join table in the ledger database.
type SQLCache struct {
	db *gorm.DB
}

// NewSQLCache creates a cache on the user_connections table.
func NewSQLCache(db *gorm.DB) *SQLCache {
	return &SQLCache{db: db}
}

// WithTx implements Transactional.
func (c *SQLCache) WithTx(tx *gorm.DB) Cache {
	return &SQLCache{db: tx}
}

func (c *SQLCache) AddPeer(ctx context.Context, a, b string) error {
	if err := validate(a, b); err != nil {
		return err
	}
	rows := []models.UserConnection{
		{UserID: a, PeerID: b},
		{UserID: b, PeerID: a},
	}
	err := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("add peer %s<->%s: %w", a, b, err)
	}
	return nil
}

func (c *SQLCache) RemovePeer(ctx context.Context, a, b string) error {
	if err := validate(a, b); err != nil {
		return err
	}
	err := c.db.WithContext(ctx).
		Where("(user_id = ? AND peer_id = ?) OR (user_id = ? AND peer_id = ?)", a, b, b, a).
		Delete(&models.UserConnection{}).Error
	if err != nil {
		return fmt.Errorf("remove peer %s<->%s: %w", a, b, err)
	}
	return nil
}

func (c *SQLCache) Contains(ctx context.Context, userID, peerID string) (bool, error) {
	var n int64
	err := c.db.WithContext(ctx).Model(&models.UserConnection{}).
		Where("user_id = ? AND peer_id = ?", userID, peerID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("contains %s->%s: %w", userID, peerID, err)
	}
	return n > 0, nil
}

func (c *SQLCache) ListPeers(ctx context.Context, userID string) ([]string, error) {
	peers := []string{}
	err := c.db.WithContext(ctx).Model(&models.UserConnection{}).
		Where("user_id = ?", userID).
		Order("peer_id").
		Pluck("peer_id", &peers).Error
	if err != nil {
		return nil, fmt.Errorf("list peers of %s: %w", userID, err)
	}
	return peers, nil
}

func (c *SQLCache) Users(ctx context.Context) ([]string, error) {
	users := []string{}
	err := c.db.WithContext(ctx).Model(&models.UserConnection{}).
		Distinct().
		Order("user_id").
		Pluck("user_id", &users).Error
	if err != nil {
		return nil, fmt.Errorf("list cache users: %w", err)
	}
	return users, nil
}

func (c *SQLCache) Reset(ctx context.Context) error {
	if err := c.db.WithContext(ctx).Where("1 = 1").Delete(&models.UserConnection{}).Error; err != nil {
		return fmt.Errorf("reset cache: %w", err)
	}
	return nil
}

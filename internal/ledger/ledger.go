// Package ledger is the authoritative store of connection requests.
//
// Every write is a compare-and-swap guarded by the expected source state, and
// the unordered pair of users is protected by a unique index, so concurrent
// operations on one pair are serialized by the database rather than by
// application-level checks.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cardlink/backend/internal/models"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("ledger: connection request not found")

	// ErrDuplicate is returned when an insert collides with the pair's unique index.
	ErrDuplicate = errors.New("ledger: connection request already exists for pair")
)

// Direction selects which side of a pending request a user is on.
type Direction string

const (
	DirectionReceived Direction = "received"
	DirectionSent     Direction = "sent"
)

// ParseDirection validates a direction coming from a caller.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(s)) {
	case DirectionReceived:
		return DirectionReceived, nil
	case DirectionSent:
		return DirectionSent, nil
	default:
		return "", fmt.Errorf("unknown direction %q", s)
	}
}

// Peer is an accepted relationship as seen from one of its members.
type Peer struct {
	PeerID     string    `json:"peer_id"`
	RequestID  string    `json:"request_id"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// Pair returns the unordered pair (a, b) in canonical order.
func Pair(a, b string) (low, high string) {
	if a <= b {
		return a, b
	}
	return b, a
}

// Ledger wraps a gorm handle. A Ledger bound to a transaction is obtained
// through Transaction.
type Ledger struct {
	db *gorm.DB
}

// New creates a ledger on top of db.
func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// DB exposes the underlying handle, which is the open transaction when the
// ledger was handed out by Transaction.
func (l *Ledger) DB() *gorm.DB {
	return l.db
}

// Transaction runs fn inside a database transaction. Returning an error from
// fn rolls everything back.
func (l *Ledger) Transaction(ctx context.Context, fn func(tx *Ledger) error) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Ledger{db: tx})
	})
}

// Get loads a request by id.
func (l *Ledger) Get(ctx context.Context, id string) (*models.ConnectionRequest, error) {
	var req models.ConnectionRequest
	err := l.db.WithContext(ctx).Where("id = ?", id).Take(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get request %s: %w", id, err)
	}
	return &req, nil
}

// FindByPair loads the row for the unordered pair {a, b}, whatever its state.
func (l *Ledger) FindByPair(ctx context.Context, a, b string) (*models.ConnectionRequest, error) {
	low, high := Pair(a, b)
	var req models.ConnectionRequest
	err := l.db.WithContext(ctx).Where("user_low = ? AND user_high = ?", low, high).Take(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find pair %s/%s: %w", low, high, err)
	}
	return &req, nil
}

// Insert stores a new request. The canonical pair columns are derived from
// sender and receiver.
func (l *Ledger) Insert(ctx context.Context, req *models.ConnectionRequest) error {
	req.UserLow, req.UserHigh = Pair(req.SenderID, req.ReceiverID)
	if err := l.db.WithContext(ctx).Create(req).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// Resend moves a REJECTED row back to PENDING, pointing it from sender to
// receiver. It reports false if the row was no longer REJECTED.
func (l *Ledger) Resend(ctx context.Context, id, senderID, receiverID string, at time.Time) (bool, error) {
	res := l.db.WithContext(ctx).Model(&models.ConnectionRequest{}).
		Where("id = ? AND state = ?", id, models.StateRejected).
		Updates(map[string]any{
			"sender_id":   senderID,
			"receiver_id": receiverID,
			"state":       models.StatePending,
			"accepted_at": nil,
			"updated_at":  at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("resend request %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// SetState moves a request owned by receiverID from one state to another.
// It reports false if the row did not match, i.e. it changed concurrently.
func (l *Ledger) SetState(ctx context.Context, id, receiverID string, from, to models.ConnectionState, at time.Time) (bool, error) {
	updates := map[string]any{
		"state":      to,
		"updated_at": at,
	}
	if to == models.StateAccepted {
		updates["accepted_at"] = at
	}
	res := l.db.WithContext(ctx).Model(&models.ConnectionRequest{}).
		Where("id = ? AND receiver_id = ? AND state = ?", id, receiverID, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("set state of %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// DeleteInState removes a request only if it is still in the given state.
func (l *Ledger) DeleteInState(ctx context.Context, id string, state models.ConnectionState) (bool, error) {
	res := l.db.WithContext(ctx).
		Where("id = ? AND state = ?", id, state).
		Delete(&models.ConnectionRequest{})
	if res.Error != nil {
		return false, fmt.Errorf("delete request %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ListPending returns the pending requests userID received or sent, newest first.
func (l *Ledger) ListPending(ctx context.Context, userID string, dir Direction) ([]models.ConnectionRequest, error) {
	query := l.db.WithContext(ctx).Where("state = ?", models.StatePending)

	switch dir {
	case DirectionReceived:
		query = query.Where("receiver_id = ?", userID)
	case DirectionSent:
		query = query.Where("sender_id = ?", userID)
	default:
		return nil, fmt.Errorf("unknown direction %q", dir)
	}

	requests := []models.ConnectionRequest{}
	if err := query.Order("updated_at DESC").Order("id DESC").Find(&requests).Error; err != nil {
		return nil, fmt.Errorf("list pending for %s: %w", userID, err)
	}
	return requests, nil
}

// ListAccepted returns userID's accepted relationships, most recent first.
func (l *Ledger) ListAccepted(ctx context.Context, userID string) ([]Peer, error) {
	var requests []models.ConnectionRequest
	err := l.db.WithContext(ctx).
		Where("state = ? AND (sender_id = ? OR receiver_id = ?)", models.StateAccepted, userID, userID).
		Order("accepted_at DESC").Order("id DESC").
		Find(&requests).Error
	if err != nil {
		return nil, fmt.Errorf("list accepted for %s: %w", userID, err)
	}

	peers := make([]Peer, 0, len(requests))
	for _, r := range requests {
		p := Peer{PeerID: r.PeerOf(userID), RequestID: r.ID, AcceptedAt: r.UpdatedAt}
		if r.AcceptedAt != nil {
			p.AcceptedAt = *r.AcceptedAt
		}
		peers = append(peers, p)
	}
	return peers, nil
}

// ScanAccepted walks every accepted row in primary key order, handing them to
// yield in batches. An error from yield stops the scan.
func (l *Ledger) ScanAccepted(ctx context.Context, batchSize int, yield func([]models.ConnectionRequest) error) error {
	if batchSize <= 0 {
		batchSize = 500
	}

	var batch []models.ConnectionRequest
	res := l.db.WithContext(ctx).
		Where("state = ?", models.StateAccepted).
		FindInBatches(&batch, batchSize, func(_ *gorm.DB, _ int) error {
			return yield(batch)
		})
	if res.Error != nil {
		return fmt.Errorf("scan accepted: %w", res.Error)
	}
	return nil
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// Dialects without error translation.
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}

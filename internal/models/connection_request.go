package models

import "time"

// ConnectionState defines the lifecycle state of a connection request.
type ConnectionState string

const (
	// StatePending means a request has been sent but not yet answered by the receiver.
	StatePending ConnectionState = "pending"

	// StateAccepted means the receiver accepted the request and the users are connected.
	StateAccepted ConnectionState = "accepted"

	// StateRejected means the receiver declined the request.
	// The row is kept so that a later request between the same users reuses it.
	StateRejected ConnectionState = "rejected"
)

// Active reports whether the state blocks a new request for the same pair.
func (s ConnectionState) Active() bool {
	return s == StatePending || s == StateAccepted
}

// ConnectionRequest is one row of the relationship ledger.
// UserLow/UserHigh hold the unordered pair in canonical order; the unique
// index on them allows a single row per pair of users.
type ConnectionRequest struct {
	ID         string          `gorm:"primaryKey;size:36" json:"id"`
	SenderID   string          `gorm:"size:64;not null;index:idx_connection_sender_state,priority:1" json:"sender_id"`
	ReceiverID string          `gorm:"size:64;not null;index:idx_connection_receiver_state,priority:1" json:"receiver_id"`
	UserLow    string          `gorm:"size:64;not null;uniqueIndex:idx_connection_pair,priority:1" json:"-"`
	UserHigh   string          `gorm:"size:64;not null;uniqueIndex:idx_connection_pair,priority:2" json:"-"`
	State      ConnectionState `gorm:"type:varchar(20);not null;index:idx_connection_sender_state,priority:2;index:idx_connection_receiver_state,priority:2" json:"state"`
	AcceptedAt *time.Time      `json:"accepted_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// PeerOf returns the other party of the request as seen by userID.
func (r *ConnectionRequest) PeerOf(userID string) string {
	if r.SenderID == userID {
		return r.ReceiverID
	}
	return r.SenderID
}

// Involves reports whether userID is the sender or the receiver.
func (r *ConnectionRequest) Involves(userID string) bool {
	return r.SenderID == userID || r.ReceiverID == userID
}

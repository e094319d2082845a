package models

import "time"

// UserConnection is one directed entry of the graph cache join table.
// An accepted relationship between A and B is stored as two rows, A->B and B->A.
type UserConnection struct {
	UserID    string `gorm:"primaryKey;size:64"`
	PeerID    string `gorm:"primaryKey;size:64"`
	CreatedAt time.Time
}

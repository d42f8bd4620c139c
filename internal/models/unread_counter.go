package models

import "time"

// UnreadCounter caches the number of unread notifications per user. It is
// maintained in the same transaction as notification writes and is never
// authoritative: the store's read=false rows are, and a reconcile pass may
// overwrite this value at any time.
type UnreadCounter struct {
	UserID    string    `gorm:"primaryKey;type:uuid" json:"user_id"`
	Count     int64     `gorm:"not null;default:0" json:"count"`
	UpdatedAt time.Time `json:"updated_at"`
}

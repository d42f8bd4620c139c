package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification represents a durable in-app notification for a single user.
// ID, UserID and CreatedAt are immutable once assigned; the only mutation the
// lifecycle allows is flipping Read from false to true.
type Notification struct {
	BaseModel

	UserID   string         `gorm:"type:uuid;index:idx_notifications_user_created,priority:1;not null" json:"user_id"`
	Message  string         `gorm:"type:text;not null" json:"message"`
	Severity string         `gorm:"type:varchar(32);default:'info'" json:"severity"`
	Metadata datatypes.JSON `json:"metadata"`

	Read   bool       `gorm:"default:false;index" json:"read"`
	ReadAt *time.Time `json:"read_at"`
}

package models

import "time"

// AuditEntry is one persisted audit record. Auth events (logins, lockouts,
// role changes, 2FA changes) land here through the slog handler.
type AuditEntry struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
	Level     string    `json:"level" gorm:"index"`
	Message   string    `json:"message"`
	Source    string    `json:"source" gorm:"index"`
	UserID    *uint     `json:"user_id" gorm:"index"`
	User      *User     `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Data      string    `json:"data"`
}

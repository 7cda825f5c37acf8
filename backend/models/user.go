package models

import (
	"time"

	"gorm.io/gorm"
)

// User is an account record. The credential is stored as a bcrypt hash and
// never serialized; the same goes for the TOTP secret and activation token.
type User struct {
	gorm.Model
	Username        string `json:"username" gorm:"uniqueIndex"`
	Email           string `json:"email" gorm:"uniqueIndex"`
	Password        string `json:"-"` // bcrypt hash
	Role            string `json:"role" gorm:"index;default:user"`
	EmailConfirmed  bool   `json:"email_confirmed" gorm:"default:false"`
	ActivationToken string `json:"-"` // single-use, cleared on confirmation

	// Lockout state: FailedAttempts counts consecutive failed credential
	// checks, LockedUntil is set when the attempt threshold is crossed and
	// cleared on successful login or lock expiry.
	FailedAttempts int        `json:"-" gorm:"default:0"`
	LockedUntil    *time.Time `json:"-"`

	TwoFAEnabled bool   `json:"twofa_enabled" gorm:"default:false"`
	TwoFASecret  string `json:"-"` // present while 2FA is being set up or active

	LastLogin *time.Time `json:"last_login"`

	// Profile fields, shown on the profile screen only.
	Phone    string `json:"phone"`
	Location string `json:"location"`
	Area     string `json:"area"`
	Photo    string `json:"photo"`
}

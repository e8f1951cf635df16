package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// User is a site visitor identified by email. Flags flip to true only after an
// OTP verification or a trusted social login.
type User struct {
	gorm.Model
	Email       string `gorm:"uniqueIndex:idx_users_email_not_deleted,where:deleted_at IS NULL;not null"`
	Name        string `gorm:"not null;default:''"`
	Phone       string `gorm:"not null;default:''"`
	IsVerified  bool   `gorm:"not null;default:false"`
	IsActive    bool   `gorm:"not null;default:false"`
	LastLoginAt *time.Time

	// Associations
	ProviderLinks []AuthProviderLink `gorm:"constraint:OnDelete:CASCADE;"`
	OTPCodes      []OTPCode          `gorm:"constraint:OnDelete:CASCADE;"`
	Messages      []Message          `gorm:"constraint:OnDelete:CASCADE;"`
}

// Trusted reports whether the user may submit messages without re-verification.
func (u *User) Trusted() bool {
	return u.IsVerified && u.IsActive
}

// NormalizeEmail trims whitespace and lower-cases the domain part.
// The local part is left untouched.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}

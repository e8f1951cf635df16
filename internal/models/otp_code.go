package models

import "time"

// OTPCode is one issued one-time code. Only the SHA-256 hash of the code is kept.
type OTPCode struct {
	ID       uint      `gorm:"primarykey"`
	UserID   uint      `gorm:"not null;index:idx_otp_codes_user_hash"`
	User     User      `gorm:"constraint:OnDelete:CASCADE;"`
	CodeHash string    `gorm:"type:char(64);not null;index:idx_otp_codes_user_hash"`
	IssuedAt time.Time `gorm:"not null;index"`
}

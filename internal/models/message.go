package models

import "time"

// Message is an append-only contact submission.
type Message struct {
	ID                 uint `gorm:"primarykey"`
	UserID             uint `gorm:"not null;index"`
	User               User `gorm:"constraint:OnDelete:CASCADE;"`
	AuthProviderLinkID *uint
	AuthProviderLink   *AuthProviderLink `gorm:"constraint:OnDelete:SET NULL;"`
	Purpose            string            `gorm:"type:varchar(255);not null;default:''"`
	Message            string            `gorm:"type:text;not null;default:''"`
	CreatedAt          time.Time
}

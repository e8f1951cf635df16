package models

import (
	"fmt"

	"github.com/jimdaga/portfolio-backend/internal/crypto"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Provider identifies where an identity assertion came from.
type Provider string

const (
	ProviderManual   Provider = "manual"
	ProviderGoogle   Provider = "google"
	ProviderFacebook Provider = "facebook"
	ProviderGitHub   Provider = "github"
)

// ParseProvider returns the Provider for name, or false if it is not one we know.
func ParseProvider(name string) (Provider, bool) {
	switch p := Provider(name); p {
	case ProviderManual, ProviderGoogle, ProviderFacebook, ProviderGitHub:
		return p, true
	}
	return "", false
}

// IsSocial reports whether the provider is a third-party login.
func (p Provider) IsSocial() bool {
	return p == ProviderGoogle || p == ProviderFacebook || p == ProviderGitHub
}

var cipher *crypto.FieldCipher

// InitEncryption sets the key used for AuthProviderLink.AccessToken at rest.
// Without it tokens are stored as given (tests, local development).
func InitEncryption(encryptionKey string) error {
	c, err := crypto.NewFieldCipher(encryptionKey)
	if err != nil {
		return err
	}
	cipher = c
	return nil
}

// AuthProviderLink ties a User to one provider. At most one row per (user, provider).
type AuthProviderLink struct {
	gorm.Model
	UserID          uint           `gorm:"not null;uniqueIndex:idx_auth_provider_links_user_provider"`
	User            User           `gorm:"constraint:OnDelete:CASCADE;"`
	Provider        Provider       `gorm:"type:varchar(16);not null;uniqueIndex:idx_auth_provider_links_user_provider"`
	ExternalUID     string         `gorm:"column:external_uid;not null;default:''"`
	ProviderDetails datatypes.JSON `gorm:"type:jsonb"`
	AccessToken     string         `gorm:"type:text"` // stored encrypted

	plainAccessToken string
}

// BeforeSave seals the access token. The plaintext is restored in AfterSave so
// callers keep a usable value in memory.
func (l *AuthProviderLink) BeforeSave(tx *gorm.DB) error {
	if cipher == nil || l.AccessToken == "" {
		return nil
	}
	sealed, err := cipher.Seal(l.AccessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	l.plainAccessToken = l.AccessToken
	l.AccessToken = sealed
	return nil
}

// AfterSave restores the in-memory plaintext token.
func (l *AuthProviderLink) AfterSave(tx *gorm.DB) error {
	if l.plainAccessToken != "" {
		l.AccessToken = l.plainAccessToken
		l.plainAccessToken = ""
	}
	return nil
}

// AfterFind opens the stored access token.
func (l *AuthProviderLink) AfterFind(tx *gorm.DB) error {
	if cipher == nil || l.AccessToken == "" {
		return nil
	}
	opened, err := cipher.Open(l.AccessToken)
	if err != nil {
		return fmt.Errorf("open access token: %w", err)
	}
	l.AccessToken = opened
	return nil
}

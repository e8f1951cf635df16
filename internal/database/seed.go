package database

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jimdaga/portfolio-backend/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DevUserEmail is the address of the seeded development user.
const DevUserEmail = "dev@portfolio.local"

// SeedDevData populates the database with a verified user, a manual and a GitHub
// link, and one message. Idempotent: skips if the dev user already exists.
func SeedDevData(db *gorm.DB, logger *slog.Logger) error {
	var existing models.User
	err := db.Where("email = ?", DevUserEmail).First(&existing).Error
	if err == nil {
		logger.Info("Seed data already exists, skipping")
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		user := models.User{
			Email:       DevUserEmail,
			Name:        "Dev Visitor",
			Phone:       "+10000000000",
			IsVerified:  true,
			IsActive:    true,
			LastLoginAt: &now,
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}

		manual := models.AuthProviderLink{UserID: user.ID, Provider: models.ProviderManual}
		if err := tx.Create(&manual).Error; err != nil {
			return err
		}

		github := models.AuthProviderLink{
			UserID:          user.ID,
			Provider:        models.ProviderGitHub,
			ExternalUID:     "dev-github-id-12345",
			ProviderDetails: datatypes.JSON([]byte(`{"login":"dev-visitor"}`)),
		}
		if err := tx.Create(&github).Error; err != nil {
			return err
		}

		msg := models.Message{
			UserID:             user.ID,
			AuthProviderLinkID: &manual.ID,
			Purpose:            "Hello",
			Message:            "Seeded message from the development visitor.",
		}
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}

		logger.Info("Seeded dev data", "users", 1, "provider_links", 2, "messages", 1)
		return nil
	})
}

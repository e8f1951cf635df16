package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jimdaga/portfolio-backend/internal/models"
	"gorm.io/gorm"
)

// FindLink returns the user's link for provider, or nil.
func (s *Store) FindLink(ctx context.Context, userID uint, provider models.Provider) (*models.AuthProviderLink, error) {
	var link models.AuthProviderLink
	err := s.conn(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find provider link: %w", err)
	}
	return &link, nil
}

// CreateLink inserts link. ErrConflict means another writer created the same
// (user, provider) pair first.
func (s *Store) CreateLink(ctx context.Context, link *models.AuthProviderLink) error {
	err := s.conn(ctx).Omit("User").Create(link).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("create provider link: %w", err)
	}
	return nil
}

// SaveLink persists every field of an existing link.
func (s *Store) SaveLink(ctx context.Context, link *models.AuthProviderLink) error {
	if err := s.conn(ctx).Omit("User").Save(link).Error; err != nil {
		return fmt.Errorf("save provider link: %w", err)
	}
	return nil
}

// ListLinks returns every link of a user ordered by provider.
func (s *Store) ListLinks(ctx context.Context, userID uint) ([]models.AuthProviderLink, error) {
	var links []models.AuthProviderLink
	err := s.conn(ctx).Where("user_id = ?", userID).Order("provider").Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("list provider links: %w", err)
	}
	return links, nil
}

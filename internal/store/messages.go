package store

import (
	"context"
	"fmt"

	"github.com/jimdaga/portfolio-backend/internal/models"
)

// CreateMessage appends a contact message.
func (s *Store) CreateMessage(ctx context.Context, msg *models.Message) error {
	if err := s.conn(ctx).Omit("User", "AuthProviderLink").Create(msg).Error; err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// ListMessages returns a user's messages, oldest first.
func (s *Store) ListMessages(ctx context.Context, userID uint) ([]models.Message, error) {
	var msgs []models.Message
	if err := s.conn(ctx).Where("user_id = ?", userID).Order("id").Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jimdaga/portfolio-backend/internal/models"
	"gorm.io/gorm"
)

// CreateOTP inserts an issued code.
func (s *Store) CreateOTP(ctx context.Context, code *models.OTPCode) error {
	if err := s.conn(ctx).Omit("User").Create(code).Error; err != nil {
		return fmt.Errorf("create otp: %w", err)
	}
	return nil
}

// LatestOTP returns the most recently issued record matching codeHash for the
// user, or nil. Ties on issued_at go to the highest id.
func (s *Store) LatestOTP(ctx context.Context, userID uint, codeHash string) (*models.OTPCode, error) {
	var code models.OTPCode
	err := s.conn(ctx).
		Where("user_id = ? AND code_hash = ?", userID, codeHash).
		Order("issued_at DESC").
		Order("id DESC").
		First(&code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find otp: %w", err)
	}
	return &code, nil
}

// DeleteOTPs removes every code of the user and reports how many went.
func (s *Store) DeleteOTPs(ctx context.Context, userID uint) (int64, error) {
	res := s.conn(ctx).Where("user_id = ?", userID).Delete(&models.OTPCode{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete otps: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// PurgeOTPsIssuedBefore removes codes issued before cutoff across all users.
func (s *Store) PurgeOTPsIssuedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.conn(ctx).Where("issued_at < ?", cutoff).Delete(&models.OTPCode{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge otps: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CountOTPs returns how many codes the user currently holds.
func (s *Store) CountOTPs(ctx context.Context, userID uint) (int64, error) {
	var n int64
	if err := s.conn(ctx).Model(&models.OTPCode{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count otps: %w", err)
	}
	return n, nil
}

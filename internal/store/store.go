// Package store is the persistence layer for users, provider links, OTP codes
// and messages. Reads return nil, nil when a record does not exist.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jimdaga/portfolio-backend/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrDuplicateEmail is returned when a user with the same email already exists.
	ErrDuplicateEmail = errors.New("store: email already registered")
	// ErrConflict is returned when a (user, provider) link already exists.
	ErrConflict = errors.New("store: provider link already exists")
)

// Store wraps a gorm handle. Inside Transaction the handle is the transaction.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by db.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn in a single transaction. Any error returned by fn rolls
// back every write made through tx.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// FindUserByEmail looks a user up by exact (already normalised) email.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.conn(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindUserByID looks a user up by primary key.
func (s *Store) FindUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.conn(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// CreateUser inserts user.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	err := s.conn(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdateProfile overwrites name and phone with the non-empty values given.
// Empty values leave the stored field unchanged.
func (s *Store) UpdateProfile(ctx context.Context, user *models.User, name, phone string) error {
	updates := map[string]interface{}{}
	if name != "" {
		updates["name"] = name
	}
	if phone != "" {
		updates["phone"] = phone
	}
	if len(updates) == 0 {
		return nil
	}
	if err := s.conn(ctx).Model(user).Updates(updates).Error; err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if name != "" {
		user.Name = name
	}
	if phone != "" {
		user.Phone = phone
	}
	return nil
}

// SetVerifiedActive sets both trust flags.
func (s *Store) SetVerifiedActive(ctx context.Context, user *models.User, verified, active bool) error {
	err := s.conn(ctx).Model(user).Updates(map[string]interface{}{
		"is_verified": verified,
		"is_active":   active,
	}).Error
	if err != nil {
		return fmt.Errorf("set verified/active: %w", err)
	}
	user.IsVerified, user.IsActive = verified, active
	return nil
}

// TouchLastLogin records a successful login.
func (s *Store) TouchLastLogin(ctx context.Context, user *models.User, at time.Time) error {
	if err := s.conn(ctx).Model(user).Update("last_login_at", at).Error; err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	user.LastLoginAt = &at
	return nil
}

// Package otp issues and verifies six-digit one-time codes. Codes are stored
// only as SHA-256 hashes and expire TTL after issue.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jimdaga/portfolio-backend/internal/models"
	"github.com/jimdaga/portfolio-backend/internal/store"
)

const (
	// CodeLength is the number of digits in a code.
	CodeLength = 6
	// TTL is how long a code stays valid after issue.
	TTL = 5 * time.Minute
)

var (
	ErrNotFound = errors.New("otp: no matching code")
	ErrExpired  = errors.New("otp: code expired")
)

var (
	minCode   = big.NewInt(100000)
	codeRange = big.NewInt(900000)
)

// Generate returns a random code uniformly distributed over 100000-999999.
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, codeRange)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return n.Add(n, minCode).String(), nil
}

// Hash returns the hex SHA-256 of code.
func Hash(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// Service issues and verifies codes through a transactional store handle.
type Service struct {
	now      func() time.Time
	generate func() (string, error)
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithGenerator replaces the random code source.
func WithGenerator(gen func() (string, error)) Option {
	return func(s *Service) { s.generate = gen }
}

// NewService returns a Service using the wall clock and crypto/rand.
func NewService(opts ...Option) *Service {
	s := &Service{
		now:      func() time.Time { return time.Now().UTC() },
		generate: Generate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue stores a new code for user and returns its plaintext. Earlier codes
// stay valid until they expire or the user verifies.
func (s *Service) Issue(ctx context.Context, tx *store.Store, user *models.User) (string, error) {
	code, err := s.generate()
	if err != nil {
		return "", err
	}
	record := &models.OTPCode{
		UserID:   user.ID,
		CodeHash: Hash(code),
		IssuedAt: s.now(),
	}
	if err := tx.CreateOTP(ctx, record); err != nil {
		return "", err
	}
	return code, nil
}

// Verify checks code against the user's most recent matching record. On success
// the user becomes verified and active and every code of the user is deleted.
// On failure nothing is written.
func (s *Service) Verify(ctx context.Context, tx *store.Store, user *models.User, code string) error {
	record, err := tx.LatestOTP(ctx, user.ID, Hash(code))
	if err != nil {
		return err
	}
	if record == nil {
		return ErrNotFound
	}
	if !s.now().Before(record.IssuedAt.Add(TTL)) {
		return ErrExpired
	}

	if err := tx.SetVerifiedActive(ctx, user, true, true); err != nil {
		return err
	}
	if _, err := tx.DeleteOTPs(ctx, user.ID); err != nil {
		return err
	}
	return nil
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.now()
}

package accounts

import (
	"context"
	"errors"

	"github.com/jimdaga/portfolio-backend/internal/identity"
	"github.com/jimdaga/portfolio-backend/internal/models"
	"github.com/jimdaga/portfolio-backend/internal/otp"
	"github.com/jimdaga/portfolio-backend/internal/store"
)

// SignupRequest starts or restarts the manual email flow.
type SignupRequest struct {
	Provider string
	Email    string
	Name     string
	Phone    string
}

// SignupResult reports the pending user. Created selects 201 over 200.
type SignupResult struct {
	User    *models.User
	Created bool
}

// Signup creates or refreshes a pending user and mails a new OTP.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*SignupResult, error) {
	if req.Provider != string(models.ProviderManual) {
		return nil, validation("Invalid action")
	}
	email, verr := normalizeEmail(req.Email)
	if verr != nil {
		return nil, verr
	}

	var (
		user    *models.User
		created bool
		code    string
	)
	err := s.store.Transaction(ctx, func(tx *store.Store) error {
		var err error
		user, err = tx.FindUserByEmail(ctx, email)
		if err != nil {
			return err
		}

		if user == nil {
			user = &models.User{Email: email, Name: req.Name, Phone: req.Phone}
			if err := tx.CreateUser(ctx, user); err != nil {
				return err
			}
			created = true
		} else if err := tx.UpdateProfile(ctx, user, req.Name, req.Phone); err != nil {
			return err
		}

		if _, _, err := s.reconciler.LinkOrCreate(ctx, tx, user, models.ProviderManual, identity.LinkOptions{}); err != nil {
			return err
		}

		code, err = s.otp.Issue(ctx, tx, user)
		return err
	})
	if err != nil {
		return nil, classify(err)
	}

	s.logger.Info("OTP issued", "user_id", user.ID, "new_user", created)
	s.sendOTP(ctx, user, code)
	return &SignupResult{User: user, Created: created}, nil
}

// VerifyRequest submits a code and, optionally, the visitor's first message.
type VerifyRequest struct {
	Email   string
	OTPCode string
	Purpose string
	Message string
}

// VerifyResult carries the verified user and their credential.
type VerifyResult struct {
	User    *models.User
	Token   string
	Message *models.Message
}

// Verify checks the OTP. On success the user is verified and active, every
// outstanding code is gone, and any submitted message is stored.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	if req.Email == "" || req.OTPCode == "" {
		return nil, validation("email and otp_code are required")
	}
	email, verr := normalizeEmail(req.Email)
	if verr != nil {
		return nil, verr
	}

	var (
		user  *models.User
		msg   *models.Message
		token string
	)
	err := s.store.Transaction(ctx, func(tx *store.Store) error {
		var err error
		user, err = tx.FindUserByEmail(ctx, email)
		if err != nil {
			return err
		}
		if user == nil {
			return newError(KindNotFound, "User not found", nil)
		}

		switch err := s.otp.Verify(ctx, tx, user, req.OTPCode); {
		case errors.Is(err, otp.ErrNotFound):
			return newError(KindNotFound, "Invalid OTP code", err)
		case errors.Is(err, otp.ErrExpired):
			return newError(KindExpired, "OTP code has expired", err)
		case err != nil:
			return err
		}

		if err := tx.TouchLastLogin(ctx, user, s.otp.Now()); err != nil {
			return err
		}

		if req.Purpose != "" || req.Message != "" {
			link, _, err := s.reconciler.LinkOrCreate(ctx, tx, user, models.ProviderManual, identity.LinkOptions{})
			if err != nil {
				return err
			}
			msg = &models.Message{
				UserID:             user.ID,
				AuthProviderLinkID: &link.ID,
				Purpose:            req.Purpose,
				Message:            req.Message,
			}
			if err := tx.CreateMessage(ctx, msg); err != nil {
				return err
			}
		}

		// Signed before commit so a signing failure keeps the code usable.
		token, err = s.issueToken(user)
		return err
	})
	if err != nil {
		return nil, classify(err)
	}

	s.logger.Info("OTP verified", "user_id", user.ID)
	if msg != nil {
		s.announce(ctx, user, models.ProviderManual, msg)
	}
	return &VerifyResult{User: user, Token: token, Message: msg}, nil
}

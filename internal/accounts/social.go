package accounts

import (
	"context"
	"errors"

	"github.com/jimdaga/portfolio-backend/internal/identity"
	"github.com/jimdaga/portfolio-backend/internal/models"
	"github.com/jimdaga/portfolio-backend/internal/store"
	"gorm.io/datatypes"
)

// SocialAuthRequest exchanges a provider access token for a credential.
type SocialAuthRequest struct {
	Provider        string
	AccessToken     string
	ProviderDetails map[string]interface{}
}

// SocialAuthResult carries the verified user and their credential.
type SocialAuthResult struct {
	User    *models.User
	Link    *models.AuthProviderLink
	Token   string
	Created bool
}

// SocialAuth resolves the token with the provider and signs the holder in.
// A rejected token leaves every record untouched.
func (s *Service) SocialAuth(ctx context.Context, req SocialAuthRequest) (*SocialAuthResult, error) {
	provider, resolver, err := s.resolvers.Get(req.Provider)
	if err != nil {
		return nil, newError(KindUnsupportedProvider, "Unsupported provider", err)
	}
	if req.AccessToken == "" {
		return nil, validation("access_token is required")
	}
	details, err := identity.ValidateDetails(req.ProviderDetails)
	if err != nil {
		return nil, newError(KindValidation, "provider_details is invalid", err)
	}

	// Provider calls happen before any transaction is opened.
	profile, err := resolver.Resolve(ctx, req.AccessToken)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidToken) {
			return nil, newError(KindUpstreamAuth, "Invalid access token", err)
		}
		return nil, unexpected(err)
	}

	return s.CompleteSocialLogin(ctx, provider, profile, req.AccessToken, details)
}

// CompleteSocialLogin signs in an already resolved profile: find or create a
// verified user, link the provider, and issue a credential.
func (s *Service) CompleteSocialLogin(ctx context.Context, provider models.Provider, profile *identity.Profile, accessToken string, details datatypes.JSON) (*SocialAuthResult, error) {
	if !provider.IsSocial() {
		return nil, newError(KindUnsupportedProvider, "Unsupported provider", identity.ErrUnsupportedProvider)
	}
	if profile == nil || profile.Email == "" {
		return nil, newError(KindUpstreamAuth, "Provider returned no email", identity.ErrInvalidToken)
	}
	email, verr := normalizeEmail(profile.Email)
	if verr != nil {
		return nil, newError(KindUpstreamAuth, "Provider returned an unusable email", verr)
	}
	resolved := *profile
	resolved.Email = email

	var (
		user    *models.User
		link    *models.AuthProviderLink
		created bool
		token   string
	)
	err := s.store.Transaction(ctx, func(tx *store.Store) error {
		var err error
		user, created, err = s.reconciler.FindOrCreateSocialUser(ctx, tx, &resolved)
		if err != nil {
			return err
		}
		if err := tx.TouchLastLogin(ctx, user, s.otp.Now()); err != nil {
			return err
		}
		link, _, err = s.reconciler.LinkOrCreate(ctx, tx, user, provider, identity.LinkOptions{
			ExternalUID: resolved.ID,
			AccessToken: accessToken,
			Details:     details,
		})
		if err != nil {
			return err
		}
		token, err = s.issueToken(user)
		return err
	})
	if err != nil {
		return nil, classify(err)
	}

	s.logger.Info("Social login", "user_id", user.ID, "provider", provider, "new_user", created)
	return &SocialAuthResult{User: user, Link: link, Token: token, Created: created}, nil
}

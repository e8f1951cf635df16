package identity

import (
	"context"
	"log/slog"

	"github.com/jimdaga/portfolio-backend/internal/models"
	"github.com/jimdaga/portfolio-backend/internal/store"
	"gorm.io/datatypes"
)

// LinkOptions are the values to write onto a provider link. Empty fields leave
// an existing link untouched.
type LinkOptions struct {
	ExternalUID string
	AccessToken string
	Details     datatypes.JSON
}

// Reconciler keeps users and their provider links in step with what the
// client or the provider asserts. All methods run inside the caller's transaction.
type Reconciler struct {
	logger *slog.Logger
}

// NewReconciler returns a Reconciler logging to logger.
func NewReconciler(logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{logger: logger}
}

// LinkOrCreate returns the user's link for provider, creating it when missing.
// created is true when a new row was inserted. A concurrent insert of the same
// pair surfaces as store.ErrConflict.
func (r *Reconciler) LinkOrCreate(ctx context.Context, tx *store.Store, user *models.User, provider models.Provider, opts LinkOptions) (*models.AuthProviderLink, bool, error) {
	link, err := tx.FindLink(ctx, user.ID, provider)
	if err != nil {
		return nil, false, err
	}

	if link == nil {
		link = &models.AuthProviderLink{
			UserID:          user.ID,
			Provider:        provider,
			ExternalUID:     opts.ExternalUID,
			AccessToken:     opts.AccessToken,
			ProviderDetails: opts.Details,
		}
		if err := tx.CreateLink(ctx, link); err != nil {
			return nil, false, err
		}
		r.logger.Info("Provider link created", "user_id", user.ID, "provider", provider)
		return link, true, nil
	}

	changed := false
	if len(opts.Details) > 0 {
		link.ProviderDetails = opts.Details
		changed = true
	}
	if opts.ExternalUID != "" && opts.ExternalUID != link.ExternalUID {
		link.ExternalUID = opts.ExternalUID
		changed = true
	}
	if opts.AccessToken != "" && opts.AccessToken != link.AccessToken {
		link.AccessToken = opts.AccessToken
		changed = true
	}
	if changed {
		if err := tx.SaveLink(ctx, link); err != nil {
			return nil, false, err
		}
	}
	return link, false, nil
}

// FindOrCreateSocialUser returns the user owning profile.Email, creating a
// verified and active one when none exists. Existing users become verified and
// active; a blank name is filled from the profile.
func (r *Reconciler) FindOrCreateSocialUser(ctx context.Context, tx *store.Store, profile *Profile) (*models.User, bool, error) {
	user, err := tx.FindUserByEmail(ctx, profile.Email)
	if err != nil {
		return nil, false, err
	}

	if user == nil {
		user = &models.User{
			Email:      profile.Email,
			Name:       profile.Name,
			IsVerified: true,
			IsActive:   true,
		}
		if err := tx.CreateUser(ctx, user); err != nil {
			return nil, false, err
		}
		r.logger.Info("Social user created", "user_id", user.ID)
		return user, true, nil
	}

	if !user.Trusted() {
		if err := tx.SetVerifiedActive(ctx, user, true, true); err != nil {
			return nil, false, err
		}
	}
	if user.Name == "" && profile.Name != "" {
		if err := tx.UpdateProfile(ctx, user, profile.Name, ""); err != nil {
			return nil, false, err
		}
	}
	return user, false, nil
}

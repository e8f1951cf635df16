package accounts

import (
	"context"

	"github.com/jimdaga/portfolio-backend/internal/identity"
	"github.com/jimdaga/portfolio-backend/internal/models"
	"github.com/jimdaga/portfolio-backend/internal/store"
)

// MessageRequest is a contact message from an authenticated visitor.
type MessageRequest struct {
	Provider        string
	Email           string
	Name            string
	Phone           string
	ProviderDetails map[string]interface{}
	Purpose         string
	Message         string
}

// MessageResult carries the stored message.
type MessageResult struct {
	User    *models.User
	Message *models.Message
}

// ProcessMessage stores a message for subjectID, the user named by the
// caller's credential. The subject must be trusted and own req.Email.
func (s *Service) ProcessMessage(ctx context.Context, subjectID uint, req MessageRequest) (*MessageResult, error) {
	provider, ok := models.ParseProvider(req.Provider)
	if !ok {
		return nil, newError(KindUnsupportedProvider, "Unsupported provider", identity.ErrUnsupportedProvider)
	}
	email, verr := normalizeEmail(req.Email)
	if verr != nil {
		return nil, verr
	}
	if req.Purpose == "" || req.Message == "" {
		return nil, validation("purpose and message are required")
	}
	details, err := identity.ValidateDetails(req.ProviderDetails)
	if err != nil {
		return nil, newError(KindValidation, "provider_details is invalid", err)
	}

	var (
		user *models.User
		msg  *models.Message
	)
	err = s.store.Transaction(ctx, func(tx *store.Store) error {
		var err error
		user, err = tx.FindUserByID(ctx, subjectID)
		if err != nil {
			return err
		}
		if user == nil || !user.Trusted() || user.Email != email {
			return newError(KindUnauthorized, "Credential does not match a verified user", nil)
		}

		if err := tx.UpdateProfile(ctx, user, req.Name, req.Phone); err != nil {
			return err
		}
		link, _, err := s.reconciler.LinkOrCreate(ctx, tx, user, provider, identity.LinkOptions{Details: details})
		if err != nil {
			return err
		}
		msg = &models.Message{
			UserID:             user.ID,
			AuthProviderLinkID: &link.ID,
			Purpose:            req.Purpose,
			Message:            req.Message,
		}
		return tx.CreateMessage(ctx, msg)
	})
	if err != nil {
		return nil, classify(err)
	}

	s.logger.Info("Message stored", "user_id", user.ID, "message_id", msg.ID, "provider", provider)
	s.announce(ctx, user, provider, msg)
	return &MessageResult{User: user, Message: msg}, nil
}

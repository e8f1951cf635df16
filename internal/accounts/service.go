// Package accounts sequences signup, OTP verification, social login and
// message submission. Every operation runs in one transaction; emails and
// events go out only after commit and never fail the request.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/jimdaga/portfolio-backend/internal/identity"
	"github.com/jimdaga/portfolio-backend/internal/models"
	"github.com/jimdaga/portfolio-backend/internal/notify"
	"github.com/jimdaga/portfolio-backend/internal/otp"
	"github.com/jimdaga/portfolio-backend/internal/store"
	"github.com/jimdaga/portfolio-backend/internal/streams"
)

// TokenIssuer mints the bearer credential returned after authentication.
type TokenIssuer interface {
	Issue(userID uint) (string, error)
}

// EventPublisher announces persisted messages.
type EventPublisher interface {
	PublishMessage(ctx context.Context, evt streams.MessageEvent) (string, error)
}

// Deps wires a Service. Events may be nil.
type Deps struct {
	Store      *store.Store
	OTP        *otp.Service
	Reconciler *identity.Reconciler
	Resolvers  *identity.Registry
	Tokens     TokenIssuer
	Notifier   notify.Notifier
	Events     EventPublisher
	Logger     *slog.Logger
}

// Service is the signup and verification orchestrator.
type Service struct {
	store      *store.Store
	otp        *otp.Service
	reconciler *identity.Reconciler
	resolvers  *identity.Registry
	tokens     TokenIssuer
	notifier   notify.Notifier
	events     EventPublisher
	logger     *slog.Logger
}

// New returns a Service. Missing optional collaborators get defaults.
func New(d Deps) *Service {
	s := &Service{
		store:      d.Store,
		otp:        d.OTP,
		reconciler: d.Reconciler,
		resolvers:  d.Resolvers,
		tokens:     d.Tokens,
		notifier:   d.Notifier,
		events:     d.Events,
		logger:     d.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.otp == nil {
		s.otp = otp.NewService()
	}
	if s.reconciler == nil {
		s.reconciler = identity.NewReconciler(s.logger)
	}
	if s.resolvers == nil {
		s.resolvers = identity.DefaultRegistry()
	}
	if s.notifier == nil {
		s.notifier = notify.LogNotifier{Logger: s.logger}
	}
	return s
}

// classify converts store and domain errors into *Error.
func classify(err error) *Error {
	var e *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &e):
		return e
	case errors.Is(err, store.ErrDuplicateEmail):
		return newError(KindConflict, "a user with this email was created concurrently, please retry", err)
	case errors.Is(err, store.ErrConflict):
		return newError(KindConflict, "this provider was linked concurrently, please retry", err)
	default:
		return unexpected(err)
	}
}

// normalizeEmail validates raw and returns its normalised form.
func normalizeEmail(raw string) (string, *Error) {
	email := models.NormalizeEmail(raw)
	if email == "" {
		return "", validation("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || strings.ContainsAny(email, " \t") {
		return "", validation("email is invalid")
	}
	return email, nil
}

func (s *Service) sendOTP(ctx context.Context, user *models.User, code string) {
	err := s.notifier.SendOTP(ctx, notify.OTPEmail{
		To:               user.Email,
		Name:             user.Name,
		Code:             code,
		ExpiresInMinutes: int(otp.TTL.Minutes()),
	})
	if err != nil {
		s.logger.Error("Failed to send OTP email", "user_id", user.ID, "error", err)
	}
}

// announce notifies the operator and publishes the message event.
func (s *Service) announce(ctx context.Context, user *models.User, provider models.Provider, msg *models.Message) {
	err := s.notifier.SendMessage(ctx, notify.ContactEmail{
		MessageID: msg.ID,
		From:      user.Email,
		Name:      user.Name,
		Phone:     user.Phone,
		Provider:  string(provider),
		Purpose:   msg.Purpose,
		Message:   msg.Message,
	})
	if err != nil {
		s.logger.Error("Failed to notify operator", "message_id", msg.ID, "error", err)
	}

	if s.events == nil {
		return
	}
	id, err := s.events.PublishMessage(ctx, streams.MessageEvent{
		MessageID: msg.ID,
		UserID:    user.ID,
		Email:     user.Email,
		Provider:  string(provider),
		Purpose:   msg.Purpose,
		CreatedAt: msg.CreatedAt.Unix(),
	})
	if err != nil {
		s.logger.Error("Failed to publish message event", "message_id", msg.ID, "error", err)
		return
	}
	s.logger.Debug("Message event published", "message_id", msg.ID, "stream_id", id)
}

// issueToken signs the user's credential. Call it inside the transaction so
// a failure rolls the login back.
func (s *Service) issueToken(user *models.User) (string, error) {
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", unexpected(fmt.Errorf("issue credential: %w", err))
	}
	return token, nil
}

// Package notify delivers the outbound emails: OTP codes to visitors and
// contact messages to the site operator.
package notify

import (
	"context"
	"log/slog"
)

// OTPEmail carries a freshly issued code to its owner.
type OTPEmail struct {
	To               string `json:"to"`
	Name             string `json:"name"`
	Code             string `json:"code"`
	ExpiresInMinutes int    `json:"expires_in_minutes"`
}

// ContactEmail forwards a visitor's message to the operator mailbox.
type ContactEmail struct {
	MessageID uint   `json:"message_id"`
	From      string `json:"from"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Provider  string `json:"provider"`
	Purpose   string `json:"purpose"`
	Message   string `json:"message"`
}

// Notifier sends emails. Implementations may deliver inline or enqueue.
type Notifier interface {
	SendOTP(ctx context.Context, email OTPEmail) error
	SendMessage(ctx context.Context, email ContactEmail) error
}

// LogNotifier only logs. Used when no SMTP host is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) logger() *slog.Logger {
	if n.Logger == nil {
		return slog.Default()
	}
	return n.Logger
}

func (n LogNotifier) SendOTP(ctx context.Context, email OTPEmail) error {
	n.logger().Info("OTP email not sent (SMTP not configured)", "to", email.To)
	n.logger().Debug("OTP code", "to", email.To, "code", email.Code)
	return nil
}

func (n LogNotifier) SendMessage(ctx context.Context, email ContactEmail) error {
	n.logger().Info("Contact email not sent (SMTP not configured)",
		"from", email.From,
		"message_id", email.MessageID,
		"purpose", email.Purpose,
	)
	return nil
}

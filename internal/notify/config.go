package notify

import (
	"log/slog"

	"github.com/jimdaga/portfolio-backend/internal/config"
)

// NewFromConfig returns an SMTP Mailer, or a LogNotifier when no SMTP host is set.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (Notifier, error) {
	if cfg.SMTPHost == "" {
		logger.Warn("SMTP_HOST not set; emails will only be logged")
		return LogNotifier{Logger: logger}, nil
	}
	m, err := NewMailer(SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		Operator: cfg.OperatorEmail,
		Owner:    cfg.SiteOwner,
		Timeout:  cfg.SMTPTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	return m, nil
}

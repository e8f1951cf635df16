package notify

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/jimdaga/portfolio-backend/internal/config"
)

func TestNewFromConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	n, err := NewFromConfig(&config.Config{}, logger)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if _, ok := n.(LogNotifier); !ok {
		t.Errorf("without SMTP_HOST got %T, want LogNotifier", n)
	}

	n, err = NewFromConfig(&config.Config{SMTPHost: "smtp.example.com", SMTPPort: 587, OperatorEmail: "o@example.com"}, logger)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	m, ok := n.(*Mailer)
	if !ok {
		t.Fatalf("with SMTP_HOST got %T, want *Mailer", n)
	}
	if m.cfg.Operator != "o@example.com" {
		t.Errorf("operator = %q", m.cfg.Operator)
	}
}

func TestLogNotifier(t *testing.T) {
	var n Notifier = LogNotifier{}
	if err := n.SendOTP(context.Background(), OTPEmail{To: "a@x.com", Code: "1"}); err != nil {
		t.Errorf("SendOTP: %v", err)
	}
	if err := n.SendMessage(context.Background(), ContactEmail{From: "a@x.com"}); err != nil {
		t.Errorf("SendMessage: %v", err)
	}
}

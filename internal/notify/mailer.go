package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SMTPConfig holds the outbound mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Operator receives contact messages and a blind copy of every OTP mail.
	Operator string
	// Owner is the site owner's name used in templates.
	Owner string
	// Timeout bounds a whole SMTP session. Zero means DefaultSMTPTimeout.
	Timeout time.Duration
}

// DefaultSMTPTimeout applies when neither the config nor the context sets a limit.
const DefaultSMTPTimeout = 30 * time.Second

// sendFunc delivers a fully built message.
type sendFunc func(ctx context.Context, from string, rcpt []string, msg []byte) error

// Mailer sends multipart text and HTML mail over SMTP.
type Mailer struct {
	cfg         SMTPConfig
	logger      *slog.Logger
	send        sendFunc
	otpTmpl     *emailTemplate
	messageTmpl *emailTemplate
}

// NewMailer returns a Mailer using the embedded templates.
func NewMailer(cfg SMTPConfig, logger *slog.Logger) (*Mailer, error) {
	otpTmpl, messageTmpl, err := loadTemplates(templatesYAML)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Mailer{
		cfg:         cfg,
		logger:      logger,
		otpTmpl:     otpTmpl,
		messageTmpl: messageTmpl,
	}
	m.send = m.deliver
	return m, nil
}

// SendOTP mails the code to its owner with a blind copy to the operator.
func (m *Mailer) SendOTP(ctx context.Context, email OTPEmail) error {
	data := struct {
		OTPEmail
		Owner string
	}{email, m.cfg.Owner}

	r, err := m.otpTmpl.render(data)
	if err != nil {
		return fmt.Errorf("render otp email: %w", err)
	}

	rcpt := []string{email.To}
	if m.cfg.Operator != "" && !strings.EqualFold(m.cfg.Operator, email.To) {
		rcpt = append(rcpt, m.cfg.Operator)
	}
	// Bcc is expressed through the envelope only; the header lists the visitor.
	msg := buildMIMEMessage(m.cfg.From, email.To, "", r)
	if err := m.send(ctx, m.cfg.From, rcpt, msg); err != nil {
		return fmt.Errorf("send otp email: %w", err)
	}
	m.logger.Info("OTP email sent", "to", email.To)
	return nil
}

// SendMessage forwards a contact message to the operator.
func (m *Mailer) SendMessage(ctx context.Context, email ContactEmail) error {
	if m.cfg.Operator == "" {
		return fmt.Errorf("send contact email: operator address not configured")
	}
	r, err := m.messageTmpl.render(email)
	if err != nil {
		return fmt.Errorf("render contact email: %w", err)
	}

	msg := buildMIMEMessage(m.cfg.From, m.cfg.Operator, email.From, r)
	if err := m.send(ctx, m.cfg.From, []string{m.cfg.Operator}, msg); err != nil {
		return fmt.Errorf("send contact email: %w", err)
	}
	m.logger.Info("Contact email sent", "message_id", email.MessageID)
	return nil
}

// deliver opens an SMTP session: implicit TLS on 465, STARTTLS when offered otherwise.
func (m *Mailer) deliver(ctx context.Context, from string, rcpt []string, msg []byte) error {
	timeout := m.cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultSMTPTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr := net.JoinHostPort(m.cfg.Host, fmt.Sprint(m.cfg.Port))
	dialer := &net.Dialer{}

	var conn net.Conn
	var err error
	if m.cfg.Port == 465 {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: m.cfg.Host}}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return err
	}
	// The smtp client does no I/O through ctx, so the deadline goes on the conn.
	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return err
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	if m.cfg.Port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
				return err
			}
		}
	}
	if m.cfg.Username != "" {
		if err := client.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
			return err
		}
	}
	if err := client.Mail(parseAddress(from)); err != nil {
		return err
	}
	for _, to := range rcpt {
		if err := client.Rcpt(to); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func buildMIMEMessage(from, to, replyTo string, r *rendered) []byte {
	var buf bytes.Buffer
	boundary := "==" + uuid.NewString() + "=="

	fmt.Fprintf(&buf, "From: %s\r\n", headerValue(from))
	fmt.Fprintf(&buf, "To: %s\r\n", headerValue(to))
	if replyTo != "" {
		fmt.Fprintf(&buf, "Reply-To: %s\r\n", headerValue(replyTo))
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", headerValue(r.Subject)))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", boundary)

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	buf.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	buf.WriteString(r.Text)
	buf.WriteString("\r\n")

	if r.HTML != "" {
		fmt.Fprintf(&buf, "--%s\r\n", boundary)
		buf.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
		buf.WriteString(r.HTML)
		buf.WriteString("\r\n")
	}
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)
	return buf.Bytes()
}

// headerValue drops line breaks so user input cannot add headers.
func headerValue(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(strings.TrimSpace(s))
}

func parseAddress(from string) string {
	start := strings.Index(from, "<")
	end := strings.Index(from, ">")
	if start >= 0 && end > start {
		return strings.TrimSpace(from[start+1 : end])
	}
	return strings.TrimSpace(from)
}

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jimdaga/portfolio-backend/internal/notify"
)

// Task type constants
const (
	TaskSendOTPEmail     = "email:otp"
	TaskSendMessageEmail = "email:message"
	TaskPurgeOTPs        = "maintenance:purge-otps"
)

// enqueuer is the part of asynq.Client the queue notifier needs.
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client is a notify.Notifier that hands emails to the worker through Redis.
type Client struct {
	q enqueuer
}

var _ notify.Notifier = (*Client)(nil)

// NewClient connects an Asynq client for task enqueueing.
func NewClient(redisURL string) (*Client, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return &Client{q: asynq.NewClient(opt)}, nil
}

// Close closes the Asynq client connection gracefully.
func (c *Client) Close() error {
	return c.q.Close()
}

// SendOTP enqueues an OTP email. OTP mails are short-lived so retries stop
// once the code would have expired anyway.
func (c *Client) SendOTP(ctx context.Context, email notify.OTPEmail) error {
	opts := []asynq.Option{
		asynq.MaxRetry(3),
		asynq.Timeout(30 * time.Second),
		asynq.Retention(time.Hour),
	}
	if email.ExpiresInMinutes > 0 {
		opts = append(opts, asynq.Deadline(time.Now().Add(time.Duration(email.ExpiresInMinutes)*time.Minute)))
	}
	return c.enqueue(ctx, TaskSendOTPEmail, email, opts...)
}

// SendMessage enqueues a contact email to the operator.
func (c *Client) SendMessage(ctx context.Context, email notify.ContactEmail) error {
	return c.enqueue(ctx, TaskSendMessageEmail, email,
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Second),
		asynq.Retention(24*time.Hour),
	)
}

func (c *Client) enqueue(ctx context.Context, taskType string, payload interface{}, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := c.q.EnqueueContext(ctx, asynq.NewTask(taskType, data), opts...); err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}

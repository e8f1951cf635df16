package streams

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// Publisher appends message events to a Redis Stream
type Publisher struct {
	rdb    streamClient
	stream string
}

// NewPublisher creates a new Publisher instance
func NewPublisher(redisURL, stream string) (*Publisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if stream == "" {
		stream = DefaultMessageStream
	}

	return &Publisher{rdb: redis.NewClient(opts), stream: stream}, nil
}

// PublishMessage appends evt to the stream and returns the stream entry id.
// An empty EventID is filled in.
func (p *Publisher) PublishMessage(ctx context.Context, evt MessageEvent) (string, error) {
	if evt.EventID == "" {
		evt.EventID = uuid.NewString()
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}

	result := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: 10000,
		Approx: true,
		ID:     "*", // auto-generate ID
		Values: map[string]interface{}{
			"payload":        string(payload),
			"published_at":   time.Now().Unix(),
			"schema_version": SchemaVersionV1,
		},
	})

	if result.Err() != nil {
		return "", fmt.Errorf("failed to publish to stream: %w", result.Err())
	}

	return result.Val(), nil
}

// Close closes the Redis client connection
func (p *Publisher) Close() error {
	return p.rdb.Close()
}

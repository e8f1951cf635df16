package streams

// DefaultMessageStream is where contact message events are appended.
const DefaultMessageStream = "contact:messages"

// Schema version constant
const (
	SchemaVersionV1 = "v1"
)

// MessageEvent announces a persisted contact message to downstream consumers.
type MessageEvent struct {
	EventID   string `json:"event_id"`
	MessageID uint   `json:"message_id"`
	UserID    uint   `json:"user_id"`
	Email     string `json:"email"`
	Provider  string `json:"provider"`
	Purpose   string `json:"purpose"`
	CreatedAt int64  `json:"created_at"`
}

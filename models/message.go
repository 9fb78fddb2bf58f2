package models

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn inside a conversation. Timestamp is the normalized
// creation time in epoch milliseconds; messages are displayed in ascending
// timestamp order, but the store does not enforce that ordering.
type Message struct {
	ID        string `json:"id"`
	ChatID    string `json:"chat_id"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	Image     string `json:"image,omitempty"` // data URL, passed through opaquely
}

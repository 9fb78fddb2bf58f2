package store

import (
	"context"
	"errors"

	"matcha-back/models"
)

// ErrUnavailable is returned when the backing connection cannot serve a call.
var ErrUnavailable = errors.New("store: connection not available")

// ErrNotFound is returned when the addressed chat does not exist for the
// given owner. Updates never upsert.
var ErrNotFound = errors.New("store: chat not found")

// ChatRecord is the raw chat document as the backends persist it. Timestamps
// keep their store representation; normalization happens upstream.
type ChatRecord struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt models.Timestamp
	UpdatedAt models.Timestamp
	Pinned    bool
	GroupName string // "" means no group
}

// MessageRecord is the raw message document of a chat's subcollection.
type MessageRecord struct {
	ID        string
	ChatID    string
	UserID    string
	Role      string
	Text      string
	Image     string
	Timestamp models.Timestamp
}

// ChatUpdate lists only the fields to write. A nil pointer omits the field;
// a GroupName pointing at "" writes the no-group state. Touch stamps
// UpdatedAt with the store's own clock.
type ChatUpdate struct {
	Title     *string
	Pinned    *bool
	GroupName *string
	Touch     bool
}

// MessageRef identifies one message document without its payload.
type MessageRef struct {
	ChatID    string
	MessageID string
}

// ChatStore is the document-store surface the engine consumes. Chat
// deletion removes the parent record only; orphaned messages are reaped by
// the cleanup sweep through the Scan/DeleteMessage primitives.
type ChatStore interface {
	// SubscribeChats opens one live subscription for the owner's chats and
	// invokes fn with the full current set on every remote change. The
	// returned cancel func guarantees synchronously that no further
	// callback fires once it returns.
	SubscribeChats(ownerID string, fn func([]ChatRecord)) (func(), error)

	CreateChat(ctx context.Context, rec ChatRecord) (string, error)

	// UpdateChat and DeleteChat address one existing chat of the owner and
	// return ErrNotFound otherwise; UpdateChat never creates a record.
	UpdateChat(ctx context.Context, ownerID, chatID string, upd ChatUpdate) error
	DeleteChat(ctx context.Context, ownerID, chatID string) error

	ReadMessages(ctx context.Context, ownerID, chatID string) ([]MessageRecord, error)
	AppendMessage(ctx context.Context, ownerID string, rec MessageRecord) error

	ScanChatIDs(ctx context.Context) (map[string]struct{}, error)
	ScanMessageRefs(ctx context.Context) ([]MessageRef, error)
	DeleteMessage(ctx context.Context, chatID, messageID string) error
}

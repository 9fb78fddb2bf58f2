package services

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"matcha-back/models"
	"matcha-back/store"
)

const (
	titleLimit    = 30
	titleEllipsis = "..."
)

// SynthesizeTitle derives a chat title from the first user message: the seed
// unchanged when it fits, otherwise the first 30 runes plus an ellipsis.
func SynthesizeTitle(seed string) string {
	runes := []rune(seed)
	if len(runes) <= titleLimit {
		return seed
	}
	return string(runes[:titleLimit]) + titleEllipsis
}

// SessionStore owns the live chat subscription and the raw chat mutations.
// Every emission it forwards is freshly normalized and sorted by freshness
// descending; callers never see raw store records.
type SessionStore struct {
	store  store.ChatStore
	logger *zap.Logger
}

func NewSessionStore(st store.ChatStore, logger *zap.Logger) *SessionStore {
	return &SessionStore{store: st, logger: logger}
}

// Available reports whether a backing store connection exists.
func (s *SessionStore) Available() bool {
	return s != nil && s.store != nil
}

// Subscribe opens one live subscription for the user's chats. onUpdate
// receives the full normalized set on every remote change; the returned
// cancel func synchronously guarantees no further callback after it returns.
func (s *SessionStore) Subscribe(userID string, onUpdate func([]models.ChatSession)) (func(), error) {
	if !s.Available() {
		return nil, ErrStoreUnavailable
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is empty", ErrInvalidArgument)
	}
	return s.store.SubscribeChats(userID, func(recs []store.ChatRecord) {
		onUpdate(normalizeSessions(recs))
	})
}

func normalizeSessions(recs []store.ChatRecord) []models.ChatSession {
	sessions := make([]models.ChatSession, 0, len(recs))
	for _, rec := range recs {
		sessions = append(sessions, models.ChatSession{
			ID:        rec.ID,
			UserID:    rec.UserID,
			Title:     rec.Title,
			UpdatedAt: NormalizeTimestamp(rec.UpdatedAt),
			Pinned:    rec.Pinned,
			GroupName: rec.GroupName,
		})
	}
	// 新しい順、同時刻はID順で安定させる
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].UpdatedAt != sessions[j].UpdatedAt {
			return sessions[i].UpdatedAt > sessions[j].UpdatedAt
		}
		return sessions[i].ID < sessions[j].ID
	})
	return sessions
}

// Create writes a new chat seeded from the user's first message and returns
// an optimistic local representation stamped with the client clock; the
// subscription catches up with the server-stamped version on its own.
func (s *SessionStore) Create(ctx context.Context, userID, seed string) (models.ChatSession, error) {
	if !s.Available() {
		return models.ChatSession{}, ErrStoreUnavailable
	}
	if userID == "" {
		return models.ChatSession{}, fmt.Errorf("%w: user id is empty", ErrInvalidArgument)
	}

	title := SynthesizeTitle(seed)
	rec := store.ChatRecord{
		UserID:    userID,
		Title:     title,
		CreatedAt: models.PendingStamp(),
		UpdatedAt: models.PendingStamp(),
	}
	id, err := s.store.CreateChat(ctx, rec)
	if err != nil {
		return models.ChatSession{}, fmt.Errorf("failed to create chat: %w", err)
	}

	s.logger.Info("chat created", zap.String("chat_id", id), zap.String("user_id", userID))
	return models.ChatSession{
		ID:        id,
		UserID:    userID,
		Title:     title,
		UpdatedAt: NowMillis(),
	}, nil
}

// UpdateFields writes only the fields present in the partial update; absent
// fields stay untouched server-side.
func (s *SessionStore) UpdateFields(ctx context.Context, userID, chatID string, upd models.SessionUpdate) error {
	if !s.Available() {
		return ErrStoreUnavailable
	}
	if chatID == "" {
		return fmt.Errorf("%w: chat id is empty", ErrInvalidArgument)
	}
	return s.store.UpdateChat(ctx, userID, chatID, store.ChatUpdate{
		Title:     upd.Title,
		Pinned:    upd.Pinned,
		GroupName: upd.GroupName,
	})
}

// TouchFreshness stamps the chat's freshness marker with the store's clock.
func (s *SessionStore) TouchFreshness(ctx context.Context, userID, chatID string) error {
	if !s.Available() {
		return ErrStoreUnavailable
	}
	if chatID == "" {
		return fmt.Errorf("%w: chat id is empty", ErrInvalidArgument)
	}
	return s.store.UpdateChat(ctx, userID, chatID, store.ChatUpdate{Touch: true})
}

// SaveMessage persists one message into the chat's subcollection.
func (s *SessionStore) SaveMessage(ctx context.Context, userID, chatID string, msg models.Message) error {
	if !s.Available() {
		return ErrStoreUnavailable
	}
	if chatID == "" {
		return fmt.Errorf("%w: chat id is empty", ErrInvalidArgument)
	}
	return s.store.AppendMessage(ctx, userID, store.MessageRecord{
		ID:        msg.ID,
		ChatID:    chatID,
		UserID:    userID,
		Role:      msg.Role,
		Text:      msg.Text,
		Image:     msg.Image,
		Timestamp: models.AtMillis(msg.Timestamp),
	})
}

// Delete removes the chat record. The child messages are not removed here;
// the cleanup sweep reaps them asynchronously.
func (s *SessionStore) Delete(ctx context.Context, userID, chatID string) error {
	if !s.Available() {
		return ErrStoreUnavailable
	}
	if chatID == "" {
		return fmt.Errorf("%w: chat id is empty", ErrInvalidArgument)
	}
	return s.store.DeleteChat(ctx, userID, chatID)
}

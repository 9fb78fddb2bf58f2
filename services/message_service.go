package services

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"matcha-back/models"
	"matcha-back/store"
)

// MessageLoader fetches the ordered message history of one chat on demand.
// Each call is a fresh point-in-time read; there is no live stream for
// message history, unlike the chat collection itself.
type MessageLoader struct {
	store  store.ChatStore
	logger *zap.Logger
}

func NewMessageLoader(st store.ChatStore, logger *zap.Logger) *MessageLoader {
	return &MessageLoader{store: st, logger: logger}
}

func (l *MessageLoader) Load(ctx context.Context, userID, chatID string) ([]models.Message, error) {
	if l == nil || l.store == nil {
		return nil, ErrStoreUnavailable
	}
	if chatID == "" {
		return nil, fmt.Errorf("%w: chat id is empty", ErrInvalidArgument)
	}

	recs, err := l.store.ReadMessages(ctx, userID, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	msgs := make([]models.Message, 0, len(recs))
	for _, rec := range recs {
		msgs = append(msgs, models.Message{
			ID:        rec.ID,
			ChatID:    rec.ChatID,
			Role:      rec.Role,
			Text:      rec.Text,
			Timestamp: NormalizeTimestamp(rec.Timestamp),
			Image:     rec.Image,
		})
	}
	// 古い順に並べる（ストア側は順序を保証しない）
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp < msgs[j].Timestamp
	})
	return msgs, nil
}

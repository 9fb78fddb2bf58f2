package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"matcha-back/store"
)

// Cleaner reaps orphaned messages. Chat deletion removes only the parent
// record, so messages of deleted chats linger until a sweep runs; this is
// the chosen cleanup policy instead of a cascading delete at request time.
type Cleaner struct {
	store  store.ChatStore
	logger *zap.Logger
}

func NewCleaner(st store.ChatStore, logger *zap.Logger) *Cleaner {
	return &Cleaner{store: st, logger: logger}
}

// Sweep deletes every message whose parent chat no longer exists and
// returns how many were removed.
func (c *Cleaner) Sweep(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, ErrStoreUnavailable
	}

	chats, err := c.store.ScanChatIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to scan chats: %w", err)
	}
	refs, err := c.store.ScanMessageRefs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to scan messages: %w", err)
	}

	removed := 0
	for _, ref := range refs {
		if _, ok := chats[ref.ChatID]; ok {
			continue
		}
		if err := c.store.DeleteMessage(ctx, ref.ChatID, ref.MessageID); err != nil {
			c.logger.Warn("failed to delete orphaned message",
				zap.String("chat_id", ref.ChatID),
				zap.String("message_id", ref.MessageID),
				zap.Error(err))
			continue
		}
		removed++
	}

	c.logger.Info("cleanup sweep finished",
		zap.Int("messages_scanned", len(refs)),
		zap.Int("messages_removed", removed))
	return removed, nil
}

// Run sweeps immediately and then on every tick until the context ends.
func (c *Cleaner) Run(ctx context.Context, interval time.Duration) {
	if _, err := c.Sweep(ctx); err != nil {
		c.logger.Error("initial sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Sweep(ctx); err != nil {
				c.logger.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

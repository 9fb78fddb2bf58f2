package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"matcha-back/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chats (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    is_pinned INTEGER NOT NULL DEFAULT 0,
    group_name TEXT NOT NULL DEFAULT ''
);

-- No FK cascade on purpose: chat deletion is parent-only and orphaned
-- messages are reaped by the cleanup sweep.
CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    chat_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    role TEXT NOT NULL,
    text TEXT NOT NULL,
    image TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);`

// SQLite is the local/dev ChatStore backend. Timestamps are stored resolved
// (epoch millis at the database host's clock); subscriptions poll the chats
// table the same way the DynamoDB backend polls its table.
type SQLite struct {
	db           *sql.DB
	pollInterval time.Duration
	logger       *zap.Logger
}

func NewSQLite(dbPath string, pollInterval time.Duration, logger *zap.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, err
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &SQLite{db: db, pollInterval: pollInterval, logger: logger}, nil
}

func (s *SQLite) SubscribeChats(ownerID string, fn func([]ChatRecord)) (func(), error) {
	sub := newSubscription(fn)
	pollChats(sub, s.pollInterval, func() ([]ChatRecord, error) {
		return s.queryChats(ownerID)
	}, func(err error) {
		s.logger.Warn("chat poll failed", zap.String("user_id", ownerID), zap.Error(err))
	})
	return sub.cancel, nil
}

func (s *SQLite) queryChats(ownerID string) ([]ChatRecord, error) {
	rows, err := s.db.Query(`
        SELECT id, user_id, title, created_at, updated_at, is_pinned, group_name
        FROM chats
        WHERE user_id = ?`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recs := make([]ChatRecord, 0)
	for rows.Next() {
		var rec ChatRecord
		var created, updated int64
		var pinned int
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Title, &created, &updated, &pinned, &rec.GroupName); err != nil {
			return nil, err
		}
		rec.CreatedAt = models.ResolvedAt(time.UnixMilli(created))
		rec.UpdatedAt = models.ResolvedAt(time.UnixMilli(updated))
		rec.Pinned = pinned != 0
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *SQLite) CreateChat(ctx context.Context, rec ChatRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO chats (id, user_id, title, created_at, updated_at, is_pinned, group_name)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.Title, now, now, boolToInt(rec.Pinned), rec.GroupName)
	if err != nil {
		return "", fmt.Errorf("failed to insert chat: %w", err)
	}
	return rec.ID, nil
}

func (s *SQLite) UpdateChat(ctx context.Context, ownerID, chatID string, upd ChatUpdate) error {
	var sets []string
	var args []any
	if upd.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *upd.Title)
	}
	if upd.Pinned != nil {
		sets = append(sets, "is_pinned = ?")
		args = append(args, boolToInt(*upd.Pinned))
	}
	if upd.GroupName != nil {
		sets = append(sets, "group_name = ?")
		args = append(args, *upd.GroupName)
	}
	if upd.Touch {
		sets = append(sets, "updated_at = ?")
		args = append(args, time.Now().UnixMilli())
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, chatID, ownerID)
	res, err := s.db.ExecContext(ctx,
		"UPDATE chats SET "+strings.Join(sets, ", ")+" WHERE id = ? AND user_id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to update chat: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) DeleteChat(ctx context.Context, ownerID, chatID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM chats WHERE id = ? AND user_id = ?", chatID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) ReadMessages(ctx context.Context, _ string, chatID string) ([]MessageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, chat_id, user_id, role, text, image, created_at
        FROM messages
        WHERE chat_id = ?`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recs := make([]MessageRecord, 0)
	for rows.Next() {
		var rec MessageRecord
		var created int64
		if err := rows.Scan(&rec.ID, &rec.ChatID, &rec.UserID, &rec.Role, &rec.Text, &rec.Image, &created); err != nil {
			return nil, err
		}
		rec.Timestamp = models.AtMillis(created)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *SQLite) AppendMessage(ctx context.Context, _ string, rec MessageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	created := rec.Timestamp.Millis
	if rec.Timestamp.Resolved != nil {
		created = rec.Timestamp.Resolved.UnixMilli()
	}
	if created == 0 {
		created = time.Now().UnixMilli()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO messages (id, chat_id, user_id, role, text, image, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ChatID, rec.UserID, rec.Role, rec.Text, rec.Image, created)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (s *SQLite) ScanChatIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM chats")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

func (s *SQLite) ScanMessageRefs(ctx context.Context) ([]MessageRef, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT chat_id, id FROM messages")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []MessageRef
	for rows.Next() {
		var ref MessageRef
		if err := rows.Scan(&ref.ChatID, &ref.MessageID); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (s *SQLite) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE chat_id = ? AND id = ?", chatID, messageID)
	return err
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"matcha-back/models"
)

const (
	LocaleJA = "ja"
	LocaleEN = "en"
)

// apologyText is the generic assistant reply substituted for any turn
// failure. The failure itself is logged, never surfaced.
func apologyText(locale string) string {
	if locale == LocaleJA {
		return "申し訳ありません。エラーが発生しました。"
	}
	return "Sorry, an error occurred."
}

// ConversationController orchestrates one user turn end to end and owns the
// turn state machine. SendTurn is not reentrant: a second call while sending
// is rejected, never queued.
type ConversationController struct {
	state     *ChatState
	sessions  *SessionStore
	loader    *MessageLoader
	responder Responder
	logger    *zap.Logger
	locale    string
}

func NewConversationController(state *ChatState, sessions *SessionStore, loader *MessageLoader, responder Responder, locale string, logger *zap.Logger) *ConversationController {
	if locale == "" {
		locale = LocaleJA
	}
	return &ConversationController{
		state:     state,
		sessions:  sessions,
		loader:    loader,
		responder: responder,
		logger:    logger,
		locale:    locale,
	}
}

// State exposes the shared state for read access.
func (c *ConversationController) State() *ChatState {
	return c.state
}

// SendTurn runs one user turn: optimistic append, session auto-create,
// persistence, responder call, reply persistence. Any failure after the
// optimistic append is swallowed into a localized apology reply; the user's
// own message is never retracted. Starting a turn takes buffer ownership:
// a selection load still in flight is invalidated, not the other way round.
func (c *ConversationController) SendTurn(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrBlankMessage
	}
	if !c.sessions.Available() {
		return ErrStoreUnavailable
	}

	st := c.state
	st.mu.Lock()
	if st.sending {
		st.mu.Unlock()
		return ErrTurnInProgress
	}
	if st.userID == "" {
		st.mu.Unlock()
		return fmt.Errorf("%w: no active identity", ErrInvalidArgument)
	}
	userID := st.userID
	// レスポンダには追加前の履歴を渡す
	history := make([]models.Message, len(st.buffer))
	copy(history, st.buffer)

	userMsg := models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleUser,
		Text:      text,
		Timestamp: NowMillis(),
	}
	st.buffer = append(st.buffer, userMsg)
	st.sending = true
	// 進行中の読み込みは世代を進めて無効化する（ユーザ発言を消させない）
	st.gen++
	st.loading = false
	st.mu.Unlock()

	err := c.runTurn(ctx, userID, history, userMsg)

	st.mu.Lock()
	if err != nil {
		c.logger.Warn("turn failed", zap.Error(err))
		st.buffer = append(st.buffer, models.Message{
			ID:        uuid.NewString(),
			Role:      models.RoleAssistant,
			Text:      apologyText(c.locale),
			Timestamp: NowMillis(),
		})
	}
	st.sending = false
	st.mu.Unlock()
	return nil
}

func (c *ConversationController) runTurn(ctx context.Context, userID string, history []models.Message, userMsg models.Message) error {
	st := c.state

	st.mu.Lock()
	chatID := st.activeID
	st.mu.Unlock()

	if chatID == "" {
		sess, err := c.sessions.Create(ctx, userID, userMsg.Text)
		if err != nil {
			return err
		}
		chatID = sess.ID
		st.mu.Lock()
		st.activeID = chatID
		st.mu.Unlock()
	}

	if err := c.sessions.SaveMessage(ctx, userID, chatID, userMsg); err != nil {
		return err
	}
	if err := c.sessions.TouchFreshness(ctx, userID, chatID); err != nil {
		return err
	}

	reply, err := c.responder.SendTurn(ctx, history, userMsg.Text)
	if err != nil {
		return err
	}

	// レスポンダ側でも除去済みだが、念のためもう一度
	replyMsg := models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleAssistant,
		Text:      StripReasoning(reply.Text),
		Timestamp: NowMillis(),
		Image:     reply.Image,
	}

	st.mu.Lock()
	st.buffer = append(st.buffer, replyMsg)
	st.mu.Unlock()

	if err := c.sessions.SaveMessage(ctx, userID, chatID, replyMsg); err != nil {
		return err
	}
	return c.sessions.TouchFreshness(ctx, userID, chatID)
}

// SelectSession switches the active chat and replaces the buffer with that
// chat's history. Rejected while a turn is running or when re-selecting the
// active chat. A selection issued while a previous load is still in flight
// wins: the stale load's result is dropped via the generation token.
func (c *ConversationController) SelectSession(ctx context.Context, chatID string) error {
	if chatID == "" {
		return fmt.Errorf("%w: chat id is empty", ErrInvalidArgument)
	}

	st := c.state
	st.mu.Lock()
	if st.sending {
		st.mu.Unlock()
		return ErrTurnInProgress
	}
	if st.activeID == chatID {
		st.mu.Unlock()
		return ErrAlreadySelected
	}
	st.gen++
	gen := st.gen
	userID := st.userID
	st.activeID = chatID
	st.buffer = nil
	st.loading = true
	st.mu.Unlock()

	msgs, err := c.loader.Load(ctx, userID, chatID)

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.gen != gen {
		// 新しい選択が先行しているので何もしない
		return nil
	}
	st.loading = false
	if err != nil {
		c.logger.Error("failed to load chat messages",
			zap.String("chat_id", chatID), zap.Error(err))
		return err
	}
	st.buffer = msgs
	return nil
}

// NewChat clears the active pointer and the buffer for a fresh conversation.
func (c *ConversationController) NewChat() {
	st := c.state
	st.mu.Lock()
	defer st.mu.Unlock()
	st.gen++
	st.activeID = ""
	st.buffer = nil
	st.loading = false
}

// ResetForIdentity clears all conversation state and rebinds the owner.
// Called on every identity change, including sign-out ("").
func (c *ConversationController) ResetForIdentity(userID string) {
	st := c.state
	st.mu.Lock()
	defer st.mu.Unlock()
	st.gen++
	st.userID = userID
	st.activeID = ""
	st.buffer = nil
	st.sending = false
	st.loading = false
}

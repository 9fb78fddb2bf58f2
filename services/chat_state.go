package services

import (
	"sync"

	"matcha-back/models"
)

// ChatState is the one shared mutable pair of active-chat pointer and
// message buffer, plus the turn/loading flags. Only ConversationController
// and SessionReconciler write to it. Selection-scoped writes carry the
// generation token so a stale in-flight load can never overwrite the buffer
// of a newer selection.
type ChatState struct {
	mu       sync.Mutex
	userID   string
	activeID string
	buffer   []models.Message
	sending  bool
	loading  bool
	gen      uint64
}

func NewChatState() *ChatState {
	return &ChatState{}
}

// ActiveID returns the current active chat identity, or "" when none.
func (s *ChatState) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Messages returns a copy of the current message buffer.
func (s *ChatState) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.buffer))
	copy(out, s.buffer)
	return out
}

func (s *ChatState) Sending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

func (s *ChatState) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *ChatState) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

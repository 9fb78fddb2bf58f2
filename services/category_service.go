package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"matcha-back/models"
)

// CategorizationManager exposes pin/rename/group/delete as thin wrappers
// over SessionStore and the pure partition derivation for the sidebar.
type CategorizationManager struct {
	sessions *SessionStore
}

func NewCategorizationManager(sessions *SessionStore) *CategorizationManager {
	return &CategorizationManager{sessions: sessions}
}

// TogglePin flips the pin state. The group label is left in place; it is
// simply ignored while the chat is pinned.
func (m *CategorizationManager) TogglePin(ctx context.Context, userID string, sess models.ChatSession) error {
	pinned := !sess.Pinned
	return m.sessions.UpdateFields(ctx, userID, sess.ID, models.SessionUpdate{Pinned: &pinned})
}

func (m *CategorizationManager) Rename(ctx context.Context, userID, chatID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: title is empty", ErrInvalidArgument)
	}
	return m.sessions.UpdateFields(ctx, userID, chatID, models.SessionUpdate{Title: &title})
}

// SetGroup assigns the chat to a group. A whitespace-only label is
// normalized to the no-group state, never to an empty-string group.
func (m *CategorizationManager) SetGroup(ctx context.Context, userID, chatID, label string) error {
	label = strings.TrimSpace(label)
	return m.sessions.UpdateFields(ctx, userID, chatID, models.SessionUpdate{GroupName: &label})
}

func (m *CategorizationManager) Remove(ctx context.Context, userID, chatID string) error {
	return m.sessions.Delete(ctx, userID, chatID)
}

// Partition splits the collection into pinned, grouped and ungrouped
// buckets. Every chat lands in exactly one bucket; pinned chats never appear
// under a group heading even when they carry a label. Groups are sorted by
// name; the incoming order is preserved inside each bucket.
func Partition(sessions []models.ChatSession) models.SessionPartition {
	part := models.SessionPartition{
		Pinned:    make([]models.ChatSession, 0),
		Groups:    make([]models.SessionGroup, 0),
		Ungrouped: make([]models.ChatSession, 0),
	}

	byGroup := make(map[string][]models.ChatSession)
	for _, sess := range sessions {
		switch {
		case sess.Pinned:
			part.Pinned = append(part.Pinned, sess)
		case sess.GroupName != "":
			byGroup[sess.GroupName] = append(byGroup[sess.GroupName], sess)
		default:
			part.Ungrouped = append(part.Ungrouped, sess)
		}
	}

	names := make([]string, 0, len(byGroup))
	for name := range byGroup {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		part.Groups = append(part.Groups, models.SessionGroup{Name: name, Chats: byGroup[name]})
	}
	return part
}

package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"matcha-back/models"
)

// SessionReconciler keeps the active-chat pointer consistent with the
// latest chat collection emission. It runs synchronously on every emission
// and is idempotent: re-running with unchanged inputs has no side effect.
type SessionReconciler struct {
	controller *ConversationController
	logger     *zap.Logger
}

func NewSessionReconciler(controller *ConversationController, logger *zap.Logger) *SessionReconciler {
	return &SessionReconciler{controller: controller, logger: logger}
}

// Reconcile applies the selection continuity policy:
//  1. keep the active chat when it is still present;
//  2. otherwise select the freshest chat (ties by ID) as a normal selection
//     event, which loads its messages once;
//  3. otherwise clear the pointer and the buffer.
func (r *SessionReconciler) Reconcile(sessions []models.ChatSession) {
	active := r.controller.State().ActiveID()
	if active != "" {
		for _, sess := range sessions {
			if sess.ID == active {
				return
			}
		}
	}

	if len(sessions) == 0 {
		if active != "" || len(r.controller.State().Messages()) > 0 {
			r.controller.NewChat()
		}
		return
	}

	pick := sessions[0]
	for _, sess := range sessions[1:] {
		if sess.UpdatedAt > pick.UpdatedAt ||
			(sess.UpdatedAt == pick.UpdatedAt && sess.ID < pick.ID) {
			pick = sess
		}
	}

	err := r.controller.SelectSession(context.Background(), pick.ID)
	if err != nil && !errors.Is(err, ErrAlreadySelected) {
		r.logger.Warn("auto-select failed", zap.String("chat_id", pick.ID), zap.Error(err))
	}
}

package services

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"matcha-back/models"
)

// Engine ties the identity stream, the chat subscription and the reconciler
// together. Exactly one store subscription is live per identity; the
// previous one is cancelled before the next is opened.
type Engine struct {
	sessions   *SessionStore
	controller *ConversationController
	reconciler *SessionReconciler
	identity   IdentityProvider
	logger     *zap.Logger

	mu        sync.Mutex
	cancelSub func()
	latest    []models.ChatSession
}

func NewEngine(sessions *SessionStore, controller *ConversationController, reconciler *SessionReconciler, identity IdentityProvider, logger *zap.Logger) *Engine {
	return &Engine{
		sessions:   sessions,
		controller: controller,
		reconciler: reconciler,
		identity:   identity,
		logger:     logger,
	}
}

// Run consumes identity events until the context ends. Blocking; callers
// usually run it on its own goroutine.
func (e *Engine) Run(ctx context.Context) {
	ids := e.identity.Identities(ctx)
	for {
		select {
		case <-ctx.Done():
			e.dropSubscription()
			return
		case uid, ok := <-ids:
			if !ok {
				e.dropSubscription()
				<-ctx.Done()
				return
			}
			e.SwitchIdentity(uid)
		}
	}
}

// SwitchIdentity tears down the previous subscription, resets conversation
// state and opens one subscription for the new identity. An empty identity
// leaves the engine signed out.
func (e *Engine) SwitchIdentity(userID string) {
	// 先に購読を解除してから張り直す（購読は常に1本だけ）
	e.dropSubscription()

	e.mu.Lock()
	e.latest = nil
	e.mu.Unlock()
	e.controller.ResetForIdentity(userID)

	if userID == "" {
		e.logger.Info("signed out")
		return
	}

	cancel, err := e.sessions.Subscribe(userID, e.onSessions)
	if err != nil {
		e.logger.Error("failed to subscribe chats", zap.String("user_id", userID), zap.Error(err))
		return
	}

	e.mu.Lock()
	e.cancelSub = cancel
	e.mu.Unlock()
	e.logger.Info("subscribed", zap.String("user_id", userID))
}

func (e *Engine) dropSubscription() {
	e.mu.Lock()
	cancel := e.cancelSub
	e.cancelSub = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (e *Engine) onSessions(sessions []models.ChatSession) {
	e.mu.Lock()
	e.latest = sessions
	e.mu.Unlock()
	e.reconciler.Reconcile(sessions)
}

// Sessions returns a copy of the latest normalized, sorted emission.
func (e *Engine) Sessions() []models.ChatSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.ChatSession, len(e.latest))
	copy(out, e.latest)
	return out
}

// Partition derives the sidebar view from the latest emission.
func (e *Engine) Partition() models.SessionPartition {
	return Partition(e.Sessions())
}

package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"matcha-back/models"
	"matcha-back/services"
	"matcha-back/store"
)

// ChatController is the thin HTTP surface over the conversation engine. All
// conversation semantics live in the services package; handlers only bind
// JSON and map errors to status codes.
type ChatController struct {
	engine     *services.Engine
	controller *services.ConversationController
	categories *services.CategorizationManager
	logger     *zap.Logger
}

func NewChatController(engine *services.Engine, controller *services.ConversationController, categories *services.CategorizationManager, logger *zap.Logger) *ChatController {
	return &ChatController{
		engine:     engine,
		controller: controller,
		categories: categories,
		logger:     logger,
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrTurnInProgress):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrBlankMessage),
		errors.Is(err, services.ErrInvalidArgument),
		errors.Is(err, services.ErrAlreadySelected):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (cc *ChatController) HandleChat(c *gin.Context) {
	var request struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.BindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	if err := cc.controller.SendTurn(c.Request.Context(), request.Message); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	// ターン失敗時もバッファ末尾に謝罪メッセージが入っている
	c.JSON(http.StatusOK, turnResponse(cc.controller.State().ActiveID(), cc.controller.State().Messages()))
}

// turnResponse shapes the reply payload from the buffer tail. The buffer can
// be empty when an identity reset lands between the turn finishing and this
// read; that case answers with the chat id only.
func turnResponse(chatID string, msgs []models.Message) gin.H {
	if len(msgs) == 0 {
		return gin.H{"chat_id": chatID}
	}
	last := msgs[len(msgs)-1]
	return gin.H{
		"chat_id":   chatID,
		"reply":     last.Text,
		"id":        last.ID,
		"image":     last.Image,
		"timestamp": last.Timestamp,
	}
}

func (cc *ChatController) GetSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": cc.engine.Partition()})
}

func (cc *ChatController) GetMessages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"chat_id":  cc.controller.State().ActiveID(),
		"messages": cc.controller.State().Messages(),
		"loading":  cc.controller.State().Loading(),
	})
}

func (cc *ChatController) SelectChat(c *gin.Context) {
	var request struct {
		ChatID string `json:"chat_id" binding:"required"`
	}
	if err := c.BindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chat_id is required"})
		return
	}

	if err := cc.controller.SelectSession(c.Request.Context(), request.ChatID); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": cc.controller.State().Messages()})
}

func (cc *ChatController) NewChat(c *gin.Context) {
	cc.controller.NewChat()
	c.JSON(http.StatusOK, gin.H{"message": "new chat started"})
}

func (cc *ChatController) RenameChat(c *gin.Context) {
	var request struct {
		ChatID string `json:"chat_id" binding:"required"`
		Title  string `json:"title" binding:"required"`
	}
	if err := c.BindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chat_id and title are required"})
		return
	}

	err := cc.categories.Rename(c.Request.Context(), cc.controller.State().UserID(), request.ChatID, request.Title)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "chat renamed"})
}

func (cc *ChatController) PinChat(c *gin.Context) {
	var request struct {
		ChatID string `json:"chat_id" binding:"required"`
	}
	if err := c.BindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chat_id is required"})
		return
	}

	for _, sess := range cc.engine.Sessions() {
		if sess.ID != request.ChatID {
			continue
		}
		err := cc.categories.TogglePin(c.Request.Context(), cc.controller.State().UserID(), sess)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "pin toggled", "is_pinned": !sess.Pinned})
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
}

func (cc *ChatController) GroupChat(c *gin.Context) {
	var request struct {
		ChatID    string `json:"chat_id" binding:"required"`
		GroupName string `json:"group_name"`
	}
	if err := c.BindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chat_id is required"})
		return
	}

	err := cc.categories.SetGroup(c.Request.Context(), cc.controller.State().UserID(), request.ChatID, request.GroupName)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "group updated"})
}

func (cc *ChatController) DeleteChat(c *gin.Context) {
	chatID := c.Param("id")
	if chatID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chat id is required"})
		return
	}

	// アクティブなチャットを消す場合は先に新規チャット状態へ戻す
	if cc.controller.State().ActiveID() == chatID {
		cc.controller.NewChat()
	}

	err := cc.categories.Remove(c.Request.Context(), cc.controller.State().UserID(), chatID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "chat deleted"})
}

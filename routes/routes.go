package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"matcha-back/controllers"
	"matcha-back/middlewares"
)

func SetupRouter(chat *controllers.ChatController, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.CORS())
	r.Use(middlewares.Logger(logger))

	// チャットメッセージ送信
	r.POST("/chat", chat.HandleChat)

	// 会話の選択と新規作成
	r.POST("/chat/select", chat.SelectChat)
	r.POST("/chat/new", chat.NewChat)
	r.GET("/chat/messages", chat.GetMessages)

	// 会話一覧（ピン留め・グループ・未分類）
	r.GET("/chat/sessions", chat.GetSessions)

	// 会話の管理
	r.POST("/chat/sessions/rename", chat.RenameChat)
	r.POST("/chat/sessions/pin", chat.PinChat)
	r.POST("/chat/sessions/group", chat.GroupChat)
	r.DELETE("/chat/sessions/:id", chat.DeleteChat)

	return r
}

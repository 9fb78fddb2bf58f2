package main

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"matcha-back/config"
	"matcha-back/controllers"
	"matcha-back/routes"
	"matcha-back/services"
	"matcha-back/store"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfgPath := os.Getenv("MATCHA_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chatStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize chat store", zap.Error(err))
	}

	responder := buildResponder(cfg, logger)

	state := services.NewChatState()
	sessions := services.NewSessionStore(chatStore, logger)
	loader := services.NewMessageLoader(chatStore, logger)
	controller := services.NewConversationController(state, sessions, loader, responder, cfg.Locale, logger)
	reconciler := services.NewSessionReconciler(controller, logger)
	categories := services.NewCategorizationManager(sessions)

	identity := &services.StaticIdentityProvider{UserID: cfg.UserID}
	engine := services.NewEngine(sessions, controller, reconciler, identity, logger)
	go engine.Run(ctx)

	gin.SetMode(gin.ReleaseMode)
	chat := controllers.NewChatController(engine, controller, categories, logger)
	router := routes.SetupRouter(chat, logger)

	logger.Info("server starting", zap.String("addr", cfg.Server.Addr))
	if err := router.Run(cfg.Server.Addr); err != nil {
		logger.Fatal("server failed to start", zap.Error(err))
	}
}

func buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.ChatStore, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		return store.NewSQLite(cfg.Store.Path, cfg.Store.PollInterval, logger)
	case "memory":
		return store.NewMemory(), nil
	default:
		return store.NewDynamo(ctx, cfg.Store.Endpoint, cfg.Store.Region, cfg.Store.TablePrefix, cfg.Store.PollInterval, logger)
	}
}

func buildResponder(cfg config.Config, logger *zap.Logger) services.Responder {
	if cfg.Responder.Provider == "openai" {
		return services.NewOpenAIResponder(cfg.Responder.Endpoint, config.GetOpenAIKey(), cfg.Responder.Model, logger)
	}
	return services.NewGeminiResponder(cfg.Responder.Endpoint, config.GetGeminiKey(), cfg.Responder.Model, logger)
}

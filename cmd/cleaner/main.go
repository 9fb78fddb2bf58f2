// cmd/cleaner/main.go
package main

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"matcha-back/config"
	"matcha-back/services"
	"matcha-back/store"
)

// The cleaner reaps messages orphaned by parent-only chat deletion. It runs
// separately from the API server, on a schedule.
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

	ctx := context.Background()

	// ストア起動待ちを考慮して数回リトライする
	var chatStore store.ChatStore
	for i := 0; i < 3; i++ {
		chatStore, err = buildStore(ctx, cfg, logger)
		if err == nil {
			break
		}
		logger.Warn("failed to connect to store", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		logger.Fatal("failed to connect to store after retries", zap.Error(err))
	}

	interval := cfg.Cleaner.Interval
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	logger.Info("starting cleanup service", zap.Duration("interval", interval))
	services.NewCleaner(chatStore, logger).Run(ctx, interval)
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

package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"intranet/internal/config"
	"intranet/internal/database"
	"intranet/internal/domain/notification"
	"intranet/internal/pkg/logger"
)

// notify_cleanup runs one purge pass, for deployments that schedule it externally.
func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}

	cleanup := notification.NewCleanupService(notification.NewRepository(db), log)
	if _, _, err := cleanup.RunOnce(context.Background(), notification.CleanupConfig{
		ArchivedRetention: cfg.ArchivedRetention,
	}); err != nil {
		log.Fatal("notification cleanup failed", zap.Error(err))
	}
}

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"

	"keyforge/internal/api"
	"keyforge/internal/config"
	"keyforge/internal/database"
	"keyforge/internal/service"
	"keyforge/internal/store"
	"keyforge/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := database.Migrate(cfg.DatabaseURL, "migrations"); err != nil {
		slog.Info("Migration error (may be safe if no changes)", "error", err)
	}

	ctx := context.Background()
	pool, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	licenceStore := store.NewPostgresLicenceStore(pool)
	productStore := store.NewPostgresProductStore(pool)
	clientStore := store.NewPostgresClientStore(pool)
	analyticsStore := store.NewPostgresAnalyticsStore(pool)

	mailer := service.NewSMTPMailer(cfg.SMTP)
	manager := service.NewLicenceManager(licenceStore, productStore, clientStore, mailer, cfg.URLs.Manage, cfg.URLs.Renew)
	analytics := service.NewAnalytics(analyticsStore, cfg.AnalyticsCacheSize)

	server := api.NewServer(cfg, pool, manager, analytics, licenceStore, productStore, clientStore)

	slog.Info("Keyforge ("+version.Version+") is now on duty", "port", cfg.Port)
	if err := server.Router.Run(":" + cfg.Port); err != nil {
		slog.Error("Failed to run server", "error", err)
		os.Exit(1)
	}
}

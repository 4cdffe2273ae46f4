package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/topicmodel/internal/api"
	"github.com/timmy/topicmodel/internal/api/middleware"
	"github.com/timmy/topicmodel/internal/app"
	"github.com/timmy/topicmodel/internal/config"
	"github.com/timmy/topicmodel/internal/logger"
)

func main() {
	appLogger := logger.NewFromEnv(nil)
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	ctx := appLogger.WithContext(context.Background())
	components, err := app.New(ctx, cfg)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize application")
	}

	if err := components.Models.ReportInterrupted(ctx); err != nil {
		appLogger.WithError(err).Warn("Failed to check for interrupted models")
	}

	sqlDB, err := components.DB.DB()
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to get database handle")
	}

	router := api.SetupRouter(&api.Services{
		Models:     components.Models,
		Topics:     components.Topics,
		Documents:  components.Documents,
		Similarity: components.Similarity,
	}, api.RouterConfig{
		Mode: cfg.Server.Mode,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
		DefaultThreshold: cfg.Topics.MinimumThreshold,
		DB:               sqlDB,
	}, appLogger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port":       cfg.Server.Port,
			"mode":       cfg.Server.Mode,
			"similarity": components.Similarity.Backend(),
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}
	// Interrupted jobs leave their models computing; deleting them is the recovery path.
	if err := components.Close(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Failed to release resources")
	}

	appLogger.Info("Server exited")
}

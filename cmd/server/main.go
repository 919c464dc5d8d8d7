package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/app"
	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/config"
	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/handler"
	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/scheduler"
	"github.com/pr-poehali-dev/gift-certificate-sweep/pkg/logger"
)

const serviceName = "gift-certificate"

func main() {
	// Load configuration
	cfg, err := config.Load(".env")
	if err != nil {
		logger.NewLogger(serviceName).Fatal("failed to load configuration", zap.Error(err))
	}

	// Initialize logger
	log := logger.New(serviceName, cfg.Environment)
	defer log.Sync()

	// Initialize dependencies
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	a, err := app.New(ctx, cfg, log)
	cancel()
	if err != nil {
		log.Fatal("failed to initialize", zap.Error(err))
	}
	defer a.Close()

	// Background reconciliation of pending deposits
	if cfg.ReconcileEnabled() {
		job := scheduler.NewReconcileJob(a.Confirmations, cfg.Reconcile.BatchSize, cfg.Reconcile.Timeout, log)
		c, err := scheduler.Start(cfg.Reconcile.Schedule, job, log)
		if err != nil {
			log.Fatal("failed to start scheduler", zap.Error(err))
		}
		defer c.Stop()
	}

	// Initialize handlers
	certificateHandler := handler.NewCertificateHandler(a.Orders, a.Confirmations, a.Certificates, log)

	// Setup router
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.NewRouter(certificateHandler, log, a.DB.PingContext, a.Redis.Ping)

	// Start server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.WriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info("starting server", zap.String("port", cfg.Port), zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}

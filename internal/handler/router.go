package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pr-poehali-dev/gift-certificate-sweep/pkg/middleware"
)

// ReadinessCheck reports whether a backing store is reachable.
type ReadinessCheck func(ctx context.Context) error

func NewRouter(handler *CertificateHandler, log *zap.Logger, checks ...ReadinessCheck) *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = true

	// Middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS())

	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	// Health checks
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		for _, check := range checks {
			if err := check(ctx); err != nil {
				log.Warn("readiness check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	// Metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	v1 := router.Group("/api/v1")
	{
		payments := v1.Group("/payments")
		{
			payments.POST("", handler.CreatePayment)
			payments.POST("/confirm", handler.ConfirmPayment)
		}

		certificates := v1.Group("/certificates")
		{
			certificates.POST("", handler.CreateCertificate)
			certificates.GET("", handler.CertificateDiagnostics)
			certificates.POST("/reconcile", handler.Reconcile)
		}
	}

	// Function-style aliases used by the storefront
	router.POST("/create-payment", handler.CreatePayment)
	router.POST("/check-payment", handler.ConfirmPayment)
	router.POST("/create-certificate", handler.CreateCertificate)
	router.GET("/create-certificate", handler.CertificateDiagnostics)

	return router
}

package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/config"
	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/crm"
	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/gateway"
	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/models"
	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/repository"
	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/service"
	"github.com/pr-poehali-dev/gift-certificate-sweep/pkg/database"
	"github.com/pr-poehali-dev/gift-certificate-sweep/pkg/redis"
)

// App holds the wired dependencies shared by the server and the CLI.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB    *database.PostgresDB
	Redis *redis.Client

	Gateway *gateway.Client
	CRM     *crm.Client

	Orders        *service.OrderService
	Certificates  *service.CertificateService
	Confirmations *service.ConfirmationService
}

// New connects to Postgres and Redis, applies the schema and builds the
// services.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	// Initialize database
	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Migrate(ctx, models.IssuanceSchema, models.IssuanceStatusIndex); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// Initialize Redis
	redisClient := redis.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password)
	if err := redisClient.Ping(ctx); err != nil {
		log.Warn("redis not reachable at startup", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}

	// Upstream clients
	gatewayClient := gateway.NewClient(cfg.Gateway, log)
	crmClient := crm.NewClient(cfg.CRM, log)

	// Initialize repositories
	issuanceRepo := repository.NewIssuanceRepository(db.DB)

	// Initialize services
	certificates := service.NewCertificateService(crmClient, redisClient, cfg, log)

	return &App{
		Config:        cfg,
		Logger:        log,
		DB:            db,
		Redis:         redisClient,
		Gateway:       gatewayClient,
		CRM:           crmClient,
		Orders:        service.NewOrderService(gatewayClient, cfg, log),
		Certificates:  certificates,
		Confirmations: service.NewConfirmationService(gatewayClient, certificates, issuanceRepo, redisClient, cfg, log),
	}, nil
}

func (a *App) Close() {
	if err := a.Redis.Close(); err != nil {
		a.Logger.Warn("failed to close redis", zap.Error(err))
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Warn("failed to close database", zap.Error(err))
	}
}

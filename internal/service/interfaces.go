package service

import (
	"context"
	"time"

	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/models"
)

// Gateway is the acquiring API (implemented by gateway.Client).
type Gateway interface {
	Register(ctx context.Context, order *models.RegisterOrder) (*models.RegisterResult, error)
	OrderStatus(ctx context.Context, orderID string) (*models.OrderStatus, error)
}

// CRM is the loyalty platform API (implemented by crm.Client).
type CRM interface {
	CreateClient(ctx context.Context, client models.CRMClient) (*models.CreatedClient, error)
	CreateOrder(ctx context.Context, clientID string, order models.DepositOrder) (*models.CallResult, error)
	LookupClient(ctx context.Context, clientID string) *models.CallResult
	Ping(ctx context.Context) *models.CallResult
	Templates(ctx context.Context) *models.CallResult
	Clients(ctx context.Context) *models.CallResult
}

// IssuanceStore persists provisioning outcomes per gateway order
// (implemented by repository.IssuanceRepository).
type IssuanceStore interface {
	Create(ctx context.Context, issuance *models.Issuance) error
	GetByOrderID(ctx context.Context, orderID string) (*models.Issuance, error)
	UpdateStatus(ctx context.Context, issuance *models.Issuance) error
	ListByStatus(ctx context.Context, status models.IssuanceStatus, limit int) ([]*models.Issuance, error)
}

// Locker is a TTL lock keyed by string (implemented by redis.Client).
type Locker interface {
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// Cache is a TTL key/value cache (implemented by redis.Client).
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

package service

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/config"
	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/models"
	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/repository"
	"github.com/pr-poehali-dev/gift-certificate-sweep/pkg/redis"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Register(ctx context.Context, order *models.RegisterOrder) (*models.RegisterResult, error) {
	args := m.Called(ctx, order)
	res, _ := args.Get(0).(*models.RegisterResult)
	return res, args.Error(1)
}

func (m *MockGateway) OrderStatus(ctx context.Context, orderID string) (*models.OrderStatus, error) {
	args := m.Called(ctx, orderID)
	res, _ := args.Get(0).(*models.OrderStatus)
	return res, args.Error(1)
}

type MockCRM struct {
	mock.Mock
}

func (m *MockCRM) CreateClient(ctx context.Context, client models.CRMClient) (*models.CreatedClient, error) {
	args := m.Called(ctx, client)
	res, _ := args.Get(0).(*models.CreatedClient)
	return res, args.Error(1)
}

func (m *MockCRM) CreateOrder(ctx context.Context, clientID string, order models.DepositOrder) (*models.CallResult, error) {
	args := m.Called(ctx, clientID, order)
	res, _ := args.Get(0).(*models.CallResult)
	return res, args.Error(1)
}

func (m *MockCRM) LookupClient(ctx context.Context, clientID string) *models.CallResult {
	return m.Called(ctx, clientID).Get(0).(*models.CallResult)
}

func (m *MockCRM) Ping(ctx context.Context) *models.CallResult {
	return m.Called(ctx).Get(0).(*models.CallResult)
}

func (m *MockCRM) Templates(ctx context.Context) *models.CallResult {
	return m.Called(ctx).Get(0).(*models.CallResult)
}

func (m *MockCRM) Clients(ctx context.Context) *models.CallResult {
	return m.Called(ctx).Get(0).(*models.CallResult)
}

// memoryStore is an in-memory IssuanceStore.
type memoryStore struct {
	mu      sync.Mutex
	rows    map[string]*models.Issuance
	updates int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rows: map[string]*models.Issuance{}}
}

func (s *memoryStore) Create(_ context.Context, issuance *models.Issuance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[issuance.OrderID]; ok {
		return repository.ErrAlreadyRecorded
	}
	cp := *issuance
	s.rows[issuance.OrderID] = &cp
	return nil
}

func (s *memoryStore) GetByOrderID(_ context.Context, orderID string) (*models.Issuance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[orderID]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (s *memoryStore) UpdateStatus(_ context.Context, issuance *models.Issuance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	row := s.rows[issuance.OrderID]
	row.Status = issuance.Status
	row.LastError = issuance.LastError
	row.UpdatedAt = issuance.UpdatedAt
	return nil
}

func (s *memoryStore) ListByStatus(_ context.Context, status models.IssuanceStatus, limit int) ([]*models.Issuance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Issuance
	for _, row := range s.rows {
		if row.Status == status && len(out) < limit {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

// memoryLocker is an in-memory Locker.
type memoryLocker struct {
	mu    sync.Mutex
	locks map[string]string
}

func newMemoryLocker() *memoryLocker {
	return &memoryLocker{locks: map[string]string{}}
}

func (l *memoryLocker) AcquireLock(_ context.Context, key, token string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.locks[key]; held {
		return false, nil
	}
	l.locks[key] = token
	return true, nil
}

func (l *memoryLocker) ReleaseLock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks[key] == token {
		delete(l.locks, key)
	}
	return nil
}

// memoryCache is an in-memory Cache.
type memoryCache struct {
	data map[string]string
}

func (c *memoryCache) Get(_ context.Context, key string) (string, error) {
	v, ok := c.data[key]
	if !ok {
		return "", redis.ErrNotFound
	}
	return v, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	switch v := value.(type) {
	case []byte:
		c.data[key] = string(v)
	case string:
		c.data[key] = v
	}
	return nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Certificate.TemplateID = 15852
	cfg.Certificate.MinNominal = 500
	cfg.Certificate.LockTTL = time.Minute
	cfg.TemplatesCacheTTL = 5 * time.Minute
	return cfg
}

func intPtr(v int) *int { return &v }

func okResult(data string) *models.CallResult {
	return &models.CallResult{OK: true, Status: 200, Data: []byte(data)}
}

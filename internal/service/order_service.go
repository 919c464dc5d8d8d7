package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/config"
	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/models"
)

// OrderService registers certificate purchases with the payment gateway.
type OrderService struct {
	gateway        Gateway
	validate       *validator.Validate
	minNominal     int64
	logger         *zap.Logger
	newOrderNumber func() string
}

func NewOrderService(gateway Gateway, cfg *config.Config, logger *zap.Logger) *OrderService {
	return &OrderService{
		gateway:        gateway,
		validate:       newValidator(cfg.Certificate.MinNominal),
		minNominal:     cfg.Certificate.MinNominal,
		logger:         logger,
		newOrderNumber: newOrderNumber,
	}
}

// CreateOrder registers a gateway order carrying the certificate request in
// its jsonParams and returns the payment page URL.
func (s *OrderService) CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.CreateOrderResponse, error) {
	req.RecipientName = strings.TrimSpace(req.RecipientName)
	req.SenderName = strings.TrimSpace(req.SenderName)
	req.ReturnURL = strings.TrimSpace(req.ReturnURL)

	if err := validateStruct(s.validate, s.minNominal, req); err != nil {
		return nil, err
	}

	params, err := json.Marshal(models.CertificateRequest{
		RecipientName: req.RecipientName,
		SenderName:    req.SenderName,
		Nominal:       req.Nominal,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode order params: %w", err)
	}

	order := &models.RegisterOrder{
		OrderNumber: s.newOrderNumber(),
		Amount:      req.Nominal * 100,
		ReturnURL:   req.ReturnURL,
		Description: orderDescription(req.Nominal, req.RecipientName),
		JSONParams:  string(params),
	}

	result, err := s.gateway.Register(ctx, order)
	if err != nil {
		s.logger.Error("failed to register payment",
			zap.String("order_number", order.OrderNumber),
			zap.Int64("amount", order.Amount),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("payment registered",
		zap.String("order_number", order.OrderNumber),
		zap.String("order_id", result.OrderID),
		zap.Int64("amount", order.Amount))

	return &models.CreateOrderResponse{
		OrderID:     result.OrderID,
		FormURL:     result.FormURL,
		OrderNumber: order.OrderNumber,
	}, nil
}

func orderDescription(nominal int64, recipient string) string {
	description := fmt.Sprintf("Подарочный сертификат Sweep GIFT на %d руб.", nominal)
	if recipient != "" {
		description += " для " + recipient
	}
	return description
}

// newOrderNumber returns SG- followed by 12 hex characters.
func newOrderNumber() string {
	return "SG-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

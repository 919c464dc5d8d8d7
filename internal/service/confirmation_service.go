package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/config"
	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/models"
	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/repository"
	"github.com/pr-poehali-dev/gift-certificate-sweep/pkg/metrics"
)

const (
	jsonParamsKey = "jsonParams"
	lockKeyPrefix = "certificate:lock:"

	MsgRecipientUnavailable = "recipient data unavailable"
)

// ConfirmationService checks payment status with the gateway and, once paid,
// issues the certificate at most once per gateway order.
type ConfirmationService struct {
	gateway      Gateway
	certificates *CertificateService
	store        IssuanceStore
	locker       Locker
	lockTTL      time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

func NewConfirmationService(gateway Gateway, certificates *CertificateService, store IssuanceStore, locker Locker, cfg *config.Config, logger *zap.Logger) *ConfirmationService {
	return &ConfirmationService{
		gateway:      gateway,
		certificates: certificates,
		store:        store,
		locker:       locker,
		lockTTL:      cfg.Certificate.LockTTL,
		logger:       logger,
		now:          time.Now,
	}
}

// Confirm reports the payment state of orderID. A pending payment is a normal
// outcome, not an error.
func (s *ConfirmationService) Confirm(ctx context.Context, orderID string) (*models.ConfirmPaymentResponse, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, &ValidationError{Field: "orderId", Message: "orderId is required"}
	}

	status, err := s.gateway.OrderStatus(ctx, orderID)
	if err != nil {
		s.logger.Error("failed to get order status", zap.String("order_id", orderID), zap.Error(err))
		return nil, err
	}

	if !status.IsPaid() {
		code := status.StatusCode()
		description := status.ActionCodeDescription
		return &models.ConfirmPaymentResponse{
			Paid:                  false,
			OrderStatus:           &code,
			StatusText:            models.StatusLabel(code),
			ActionCodeDescription: &description,
		}, nil
	}

	release, err := s.lock(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer release()

	existing, err := s.store.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.resume(ctx, existing)
	}

	req := RecoverRequest(status)
	if req.RecipientName == "" {
		s.logger.Warn("paid order without recipient data", zap.String("order_id", orderID))
		return &models.ConfirmPaymentResponse{Paid: true, Error: MsgRecipientUnavailable}, nil
	}

	provisioned, err := s.certificates.issue(ctx, SourceConfirmation, req)
	if err != nil {
		var depositErr *DepositError
		if errors.As(err, &depositErr) {
			s.record(ctx, orderID, depositErr.Certificate, models.IssuanceStatusPendingDeposit, err.Error())
		}
		return nil, err
	}

	s.record(ctx, orderID, provisioned.Certificate, models.IssuanceStatusIssued, "")

	return &models.ConfirmPaymentResponse{
		Paid:        true,
		Success:     true,
		Certificate: provisioned.Certificate,
	}, nil
}

// ReconcileDeposits retries the deposit for up to limit issuances whose
// client exists without balance.
func (s *ConfirmationService) ReconcileDeposits(ctx context.Context, limit int) (*models.ReconcileReport, error) {
	pending, err := s.store.ListByStatus(ctx, models.IssuanceStatusPendingDeposit, limit)
	if err != nil {
		return nil, err
	}

	report := &models.ReconcileReport{Failures: []string{}}
	for _, issuance := range pending {
		report.Checked++

		release, err := s.lock(ctx, issuance.OrderID)
		if err != nil {
			report.Skipped++
			continue
		}

		// the listed row may have been finished while the lock was free
		current, err := s.store.GetByOrderID(ctx, issuance.OrderID)
		if err != nil || current == nil || current.Status != models.IssuanceStatusPendingDeposit {
			release()
			if err != nil {
				report.Failed++
				report.Failures = append(report.Failures, fmt.Sprintf("%s: %v", issuance.OrderID, err))
			} else {
				report.Skipped++
			}
			continue
		}

		_, err = s.resume(ctx, current)
		release()

		if err != nil {
			report.Failed++
			report.Failures = append(report.Failures, fmt.Sprintf("%s: %v", issuance.OrderID, err))
			continue
		}
		report.Issued++
	}

	s.logger.Info("deposit reconciliation complete",
		zap.Int("checked", report.Checked),
		zap.Int("issued", report.Issued),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped))

	return report, nil
}

// resume finishes an order that already has an issuance row: issued ones are
// returned as they are, pending ones get their deposit retried.
func (s *ConfirmationService) resume(ctx context.Context, issuance *models.Issuance) (*models.ConfirmPaymentResponse, error) {
	cert := issuance.Certificate()

	if issuance.Status == models.IssuanceStatusIssued {
		s.logger.Info("certificate already issued", zap.String("order_id", issuance.OrderID), zap.String("client_id", cert.ClientID))
		return &models.ConfirmPaymentResponse{Paid: true, Success: true, AlreadyIssued: true, Certificate: cert}, nil
	}

	result, err := s.certificates.deposit(ctx, cert)
	issuance.UpdatedAt = s.now()
	if err != nil {
		metrics.CertificateIssued(SourceConfirmation, "deposit_failed")
		issuance.LastError = err.Error()
		if uerr := s.store.UpdateStatus(ctx, issuance); uerr != nil {
			s.logger.Error("failed to update issuance", zap.String("order_id", issuance.OrderID), zap.Error(uerr))
		}
		return nil, &DepositError{Certificate: cert, Result: result, Err: err}
	}

	metrics.CertificateIssued(SourceConfirmation, "issued")
	issuance.Status = models.IssuanceStatusIssued
	issuance.LastError = ""
	if err := s.store.UpdateStatus(ctx, issuance); err != nil {
		s.logger.Error("failed to update issuance", zap.String("order_id", issuance.OrderID), zap.Error(err))
	}

	s.logger.Info("pending deposit completed", zap.String("order_id", issuance.OrderID), zap.String("client_id", cert.ClientID))
	return &models.ConfirmPaymentResponse{Paid: true, Success: true, Certificate: cert}, nil
}

// record stores the outcome right after the CRM calls. A failure here is
// logged, the buyer still gets the certificate.
func (s *ConfirmationService) record(ctx context.Context, orderID string, cert *models.Certificate, status models.IssuanceStatus, lastError string) {
	now := s.now()
	err := s.store.Create(ctx, &models.Issuance{
		OrderID:       orderID,
		Status:        status,
		ClientID:      cert.ClientID,
		CardNumber:    cert.CardNumber,
		CardBarcode:   cert.CardBarcode,
		CardHash:      cert.CardHash,
		RecipientName: cert.RecipientName,
		SenderName:    cert.SenderName,
		Nominal:       cert.Nominal,
		LastError:     lastError,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if errors.Is(err, repository.ErrAlreadyRecorded) {
		s.logger.Warn("issuance recorded concurrently", zap.String("order_id", orderID))
		return
	}
	if err != nil {
		s.logger.Error("failed to record issuance",
			zap.String("order_id", orderID),
			zap.String("client_id", cert.ClientID),
			zap.Error(err))
	}
}

// lock takes the per-order provisioning lock and returns its release func.
func (s *ConfirmationService) lock(ctx context.Context, orderID string) (func(), error) {
	key := lockKeyPrefix + orderID
	token := uuid.New().String()

	ok, err := s.locker.AcquireLock(ctx, key, token, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire provisioning lock: %w", err)
	}
	if !ok {
		return nil, ErrProvisioningInProgress
	}

	return func() {
		// release even when the request context is already done
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.locker.ReleaseLock(ctx, key, token); err != nil {
			s.logger.Warn("failed to release provisioning lock", zap.String("order_id", orderID), zap.Error(err))
		}
	}, nil
}

type orderParams struct {
	RecipientName string            `json:"recipientName"`
	SenderName    string            `json:"senderName"`
	Nominal       models.FlexString `json:"nominal"`
}

// RecoverRequest rebuilds the certificate request from the gateway order.
// The embedded jsonParams entry wins over individually named params; the
// nominal falls back to the captured amount.
func RecoverRequest(status *models.OrderStatus) *models.CertificateRequest {
	named := make(map[string]string, len(status.MerchantOrderParams))
	for _, p := range status.MerchantOrderParams {
		named[p.Name] = p.Value
	}

	var params orderParams
	if raw, ok := named[jsonParamsKey]; ok {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			params = orderParams{}
		}
	}

	req := &models.CertificateRequest{
		RecipientName: strings.TrimSpace(params.RecipientName),
		SenderName:    strings.TrimSpace(params.SenderName),
	}
	if req.RecipientName == "" {
		req.RecipientName = strings.TrimSpace(named["recipientName"])
	}
	if req.SenderName == "" {
		req.SenderName = strings.TrimSpace(named["senderName"])
	}

	nominal, ok := params.Nominal.Int()
	if !ok {
		nominal, ok = models.FlexString(named["nominal"]).Int()
	}
	if (!ok || nominal == 0) && status.Amount > 0 {
		nominal = status.Amount / 100
	}
	req.Nominal = nominal

	return req
}

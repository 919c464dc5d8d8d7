package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/crm"
	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/gateway"
	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/models"
	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/service"
)

const (
	serviceName             = "Sweep GIFT"
	defaultReconcileLimit   = 50
	maxRequestBodyBytes     = 1 << 20
	msgInvalidBody          = "invalid JSON body"
	msgInternalServerError  = "Internal server error"
	msgPaymentCreateFailed  = "failed to create payment"
	msgPaymentStatusFailed  = "failed to check payment status"
	msgCertificateFailed    = "failed to create certificate"
	msgDepositFailed        = "failed to credit certificate balance"
	msgUnknownDiagnosticArg = "unknown action"
)

type OrderCreator interface {
	CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.CreateOrderResponse, error)
}

type PaymentConfirmer interface {
	Confirm(ctx context.Context, orderID string) (*models.ConfirmPaymentResponse, error)
	ReconcileDeposits(ctx context.Context, limit int) (*models.ReconcileReport, error)
}

type CertificateProvisioner interface {
	Provision(ctx context.Context, req *models.CertificateRequest) (*models.Provisioned, error)
	Diagnose(ctx context.Context, action string) (*models.CallResult, bool)
}

type CertificateHandler struct {
	orders        OrderCreator
	confirmations PaymentConfirmer
	certificates  CertificateProvisioner
	logger        *zap.Logger
}

func NewCertificateHandler(orders OrderCreator, confirmations PaymentConfirmer, certificates CertificateProvisioner, logger *zap.Logger) *CertificateHandler {
	return &CertificateHandler{
		orders:        orders,
		confirmations: confirmations,
		certificates:  certificates,
		logger:        logger,
	}
}

// CreatePayment handles POST /api/v1/payments
func (h *CertificateHandler) CreatePayment(c *gin.Context) {
	var req models.CreateOrderRequest
	if err := bindBody(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindErrorMessage(err)})
		return
	}

	resp, err := h.orders.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		status, body := h.errorResponse(err, msgPaymentCreateFailed)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ConfirmPayment handles POST /api/v1/payments/confirm
func (h *CertificateHandler) ConfirmPayment(c *gin.Context) {
	var req models.ConfirmPaymentRequest
	if err := bindBody(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindErrorMessage(err)})
		return
	}

	resp, err := h.confirmations.Confirm(c.Request.Context(), req.OrderID)
	if err != nil {
		status, body := h.errorResponse(err, msgPaymentStatusFailed)
		if paidFailure(err) {
			body["paid"] = true
		}
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CreateCertificate handles POST /api/v1/certificates
func (h *CertificateHandler) CreateCertificate(c *gin.Context) {
	var req models.CertificateRequest
	if err := bindBody(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindErrorMessage(err)})
		return
	}

	out, err := h.certificates.Provision(c.Request.Context(), &req)
	if err != nil {
		status, body := h.errorResponse(err, msgCertificateFailed)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"certificate":   out.Certificate,
		"depositResult": out.DepositResult,
	})
}

// CertificateDiagnostics handles GET /api/v1/certificates
func (h *CertificateHandler) CertificateDiagnostics(c *gin.Context) {
	action := c.Query("action")
	if action == "" {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": serviceName,
			"actions": service.DiagnosticActions,
		})
		return
	}

	result, ok := h.certificates.Diagnose(c.Request.Context(), action)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   msgUnknownDiagnosticArg,
			"actions": service.DiagnosticActions,
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Reconcile handles POST /api/v1/certificates/reconcile
func (h *CertificateHandler) Reconcile(c *gin.Context) {
	limit := defaultReconcileLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	report, err := h.confirmations.ReconcileDeposits(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("deposit reconciliation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternalServerError})
		return
	}

	c.JSON(http.StatusOK, report)
}

// errorResponse maps a service error onto a status code and JSON body.
func (h *CertificateHandler) errorResponse(err error, gatewayMsg string) (int, gin.H) {
	var (
		validationErr *service.ValidationError
		depositErr    *service.DepositError
		crmErr        *crm.Error
		gatewayErr    *gateway.Error
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, gin.H{"error": validationErr.Message}

	case errors.Is(err, service.ErrProvisioningInProgress):
		return http.StatusConflict, gin.H{"error": err.Error()}

	case errors.As(err, &depositErr):
		h.logger.Error("certificate deposit failed",
			zap.String("client_id", depositErr.Certificate.ClientID),
			zap.Error(err))
		return http.StatusBadGateway, gin.H{
			"error":       msgDepositFailed,
			"details":     depositDetails(depositErr),
			"certificate": depositErr.Certificate,
		}

	case errors.As(err, &crmErr):
		h.logger.Error("crm request failed", zap.String("op", crmErr.Op), zap.Error(err))
		body := gin.H{"error": msgCertificateFailed + ": " + crmErr.Message}
		if crmErr.Result != nil {
			body["details"] = crmErr.Result
		}
		if len(crmErr.APIErrors) > 0 {
			body["apiErrors"] = crmErr.APIErrors
		}
		return http.StatusBadGateway, body

	case errors.As(err, &gatewayErr):
		h.logger.Error("gateway request failed", zap.String("code", gatewayErr.Code), zap.Error(err))
		return http.StatusBadGateway, gin.H{
			"error":   gatewayMsg + ": " + gatewayErr.Message,
			"details": gin.H{
				"errorCode":    gatewayErr.Code,
				"errorMessage": gatewayErr.Message,
			},
		}

	default:
		h.logger.Error("request failed", zap.Error(err))
		return http.StatusInternalServerError, gin.H{"error": msgInternalServerError}
	}
}

func depositDetails(err *service.DepositError) interface{} {
	if err.Result != nil {
		return err.Result
	}
	return err.Err.Error()
}

// paidFailure reports errors that can only happen after the gateway
// confirmed the payment.
func paidFailure(err error) bool {
	var (
		depositErr *service.DepositError
		crmErr     *crm.Error
	)
	return errors.Is(err, service.ErrProvisioningInProgress) ||
		errors.As(err, &depositErr) ||
		errors.As(err, &crmErr)
}

// bindErrorMessage names the offending field when the body is valid JSON
// with a value of the wrong type.
func bindErrorMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	if !errors.As(err, &typeErr) || typeErr.Field == "" {
		return msgInvalidBody
	}
	switch typeErr.Type.Kind() {
	case reflect.Int, reflect.Int32, reflect.Int64:
		return typeErr.Field + " must be a whole number"
	case reflect.String:
		return typeErr.Field + " must be a string"
	default:
		return typeErr.Field + " has an invalid value"
	}
}

// bindBody decodes a JSON object body. Empty bodies decode as {} and a JSON
// string holding an object is unwrapped first.
func bindBody(c *gin.Context, dst interface{}) error {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBodyBytes))
	if err != nil {
		return err
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return err
		}
		raw = bytes.TrimSpace([]byte(inner))
		if len(raw) == 0 {
			raw = []byte("{}")
		}
	}

	return json.Unmarshal(raw, dst)
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/config"
	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/models"
	"github.com/pr-poehali-dev/gift-certificate-sweep/pkg/metrics"
)

const (
	lastNamePlaceholder = "Сертификат"
	clientBirthday      = "2000-01-01"
	crmDateLayout       = "2006-01-02 15:04:05"
	maxPhoneLength      = 13
	templatesCacheKey   = "crm:templates"

	SourceDirect       = "direct"
	SourceConfirmation = "confirmation"
)

// DiagnosticActions are the GET actions proxied to the CRM.
var DiagnosticActions = []string{"ping", "templates", "clients"}

// CertificateService provisions certificates: a CRM client carrying the
// recipient plus a deposit order crediting the nominal to its balance.
type CertificateService struct {
	crm          CRM
	cache        Cache
	validate     *validator.Validate
	templateID   int
	minNominal   int64
	templatesTTL time.Duration
	logger       *zap.Logger
	now          func() time.Time
	randomPhone  func() string
}

func NewCertificateService(crm CRM, cache Cache, cfg *config.Config, logger *zap.Logger) *CertificateService {
	return &CertificateService{
		crm:          crm,
		cache:        cache,
		validate:     newValidator(cfg.Certificate.MinNominal),
		templateID:   cfg.Certificate.TemplateID,
		minNominal:   cfg.Certificate.MinNominal,
		templatesTTL: cfg.TemplatesCacheTTL,
		logger:       logger,
		now:          time.Now,
		randomPhone:  randomPhone,
	}
}

// Provision validates a direct request and issues the certificate without any
// payment check.
func (s *CertificateService) Provision(ctx context.Context, req *models.CertificateRequest) (*models.Provisioned, error) {
	req.RecipientName = strings.TrimSpace(req.RecipientName)
	req.SenderName = strings.TrimSpace(req.SenderName)
	req.Phone = strings.TrimSpace(req.Phone)

	if err := validateStruct(s.validate, s.minNominal, req); err != nil {
		return nil, err
	}

	return s.issue(ctx, SourceDirect, req)
}

func (s *CertificateService) issue(ctx context.Context, source string, req *models.CertificateRequest) (*models.Provisioned, error) {
	cert, err := s.createClient(ctx, req)
	if err != nil {
		metrics.CertificateIssued(source, "client_failed")
		return nil, err
	}

	s.verifyClient(ctx, cert.ClientID)

	result, err := s.deposit(ctx, cert)
	if err != nil {
		metrics.CertificateIssued(source, "deposit_failed")
		return nil, &DepositError{Certificate: cert, Result: result, Err: err}
	}

	metrics.CertificateIssued(source, "issued")
	s.logger.Info("certificate issued",
		zap.String("source", source),
		zap.String("client_id", cert.ClientID),
		zap.Int64("nominal", cert.Nominal))

	return &models.Provisioned{Certificate: cert, DepositResult: result}, nil
}

// createClient registers the recipient in the CRM and returns the
// certificate without a balance yet.
func (s *CertificateService) createClient(ctx context.Context, req *models.CertificateRequest) (*models.Certificate, error) {
	first, last, patronymic := SplitName(req.RecipientName)

	phone := s.randomPhone()
	if req.Phone != "" {
		phone = NormalizePhone(req.Phone)
	}

	client := models.CRMClient{
		LastName:   last,
		FirstName:  first,
		Patronymic: patronymic,
		Birthday:   clientBirthday,
		Phone:      phone,
		TemplateID: s.templateID,
		Comment:    clientComment(req.Nominal, req.SenderName),
		Tags:       []string{},
	}

	created, err := s.crm.CreateClient(ctx, client)
	if err != nil {
		s.logger.Error("failed to create crm client", zap.Error(err))
		return nil, err
	}

	return models.NewCertificate(
		created.ClientID.String(),
		created.CardNumber.String(),
		created.CardBarcode.String(),
		created.Hash.String(),
		req.RecipientName,
		req.SenderName,
		req.Nominal,
	), nil
}

// verifyClient reads the new client back. Only logged.
func (s *CertificateService) verifyClient(ctx context.Context, clientID string) {
	result := s.crm.LookupClient(ctx, clientID)
	if !result.OK {
		s.logger.Warn("crm client lookup failed", zap.String("client_id", clientID), zap.Int("status", result.Status))
	}
}

// deposit credits cert.Nominal onto the client's balance through a zero-sum
// order.
func (s *CertificateService) deposit(ctx context.Context, cert *models.Certificate) (*models.CallResult, error) {
	guid := newOrderGUID()
	nominal := float64(cert.Nominal)

	order := models.DepositOrder{
		GUID:       guid,
		Number:     "SG-" + guid[:8],
		Date:       s.now().Format(crmDateLayout),
		DepositAdd: nominal,
		Cart: []models.CartItem{{
			Name:              fmt.Sprintf("Подарочный сертификат %d руб.", cert.Nominal),
			NID:               guid,
			GroupID:           "certificates",
			GroupName:         "Сертификаты",
			Price:             nominal,
			PriceWithDiscount: nominal,
			Amount:            1,
		}},
	}

	result, err := s.crm.CreateOrder(ctx, cert.ClientID, order)
	if err != nil {
		s.logger.Error("failed to create deposit order",
			zap.String("client_id", cert.ClientID),
			zap.String("guid", guid),
			zap.Error(err))
		return result, err
	}
	return result, nil
}

// Diagnose proxies a diagnostic action to the CRM. It reports false for an
// unknown action.
func (s *CertificateService) Diagnose(ctx context.Context, action string) (*models.CallResult, bool) {
	switch action {
	case "ping":
		return s.crm.Ping(ctx), true
	case "templates":
		return s.templates(ctx), true
	case "clients":
		return s.crm.Clients(ctx), true
	default:
		return nil, false
	}
}

func (s *CertificateService) templates(ctx context.Context) *models.CallResult {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, templatesCacheKey); err == nil {
			var cached models.CallResult
			if err := json.Unmarshal([]byte(data), &cached); err == nil {
				s.logger.Debug("cache hit for crm templates")
				return &cached
			}
		}
	}

	result := s.crm.Templates(ctx)

	if s.cache != nil && result.OK {
		data, _ := json.Marshal(result)
		if err := s.cache.Set(ctx, templatesCacheKey, data, s.templatesTTL); err != nil {
			s.logger.Warn("failed to cache crm templates", zap.Error(err))
		}
	}

	return result
}

// SplitName splits a recipient name into first name, last name and
// patronymic. A missing last name becomes the placeholder; anything past the
// third word stays in the patronymic.
func SplitName(name string) (first, last, patronymic string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return strings.TrimSpace(name), lastNamePlaceholder, ""
	case 1:
		return parts[0], lastNamePlaceholder, ""
	case 2:
		return parts[0], parts[1], ""
	default:
		return parts[0], parts[1], strings.Join(parts[2:], " ")
	}
}

// NormalizePhone brings a phone number to the 7XXXXXXXXXX form the CRM
// expects, capped at 13 characters.
func NormalizePhone(phone string) string {
	phone = strings.TrimLeft(strings.TrimSpace(phone), "+")
	if !strings.HasPrefix(phone, "7") {
		phone = "7" + strings.TrimLeft(phone, "8")
	}
	if len(phone) > maxPhoneLength {
		phone = phone[:maxPhoneLength]
	}
	return phone
}

// randomPhone synthesizes a unique-enough phone for recipients who gave none;
// the CRM requires one per client.
func randomPhone() string {
	return "7" + strconv.FormatInt(9000000000+rand.Int63n(1000000000), 10)
}

func newOrderGUID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
}

func clientComment(nominal int64, sender string) string {
	comment := fmt.Sprintf("Сертификат Sweep GIFT на %d руб.", nominal)
	if sender != "" {
		comment += " от " + sender
	}
	return comment
}

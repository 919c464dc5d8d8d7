package models

import "time"

// CertificateRequest is what the buyer asked for. It travels through the
// gateway order as jsonParams and comes back on confirmation.
type CertificateRequest struct {
	RecipientName string `json:"recipientName" validate:"required"`
	SenderName    string `json:"senderName"`
	Nominal       int64  `json:"nominal" validate:"min_nominal"`
	Phone         string `json:"phone,omitempty"`
}

// CreateOrderRequest is the body of the order initiation call.
type CreateOrderRequest struct {
	Nominal       int64  `json:"nominal" validate:"min_nominal"`
	RecipientName string `json:"recipientName" validate:"required"`
	SenderName    string `json:"senderName"`
	ReturnURL     string `json:"returnUrl" validate:"required"`
}

type CreateOrderResponse struct {
	OrderID     string `json:"orderId"`
	FormURL     string `json:"formUrl"`
	OrderNumber string `json:"orderNumber"`
}

type ConfirmPaymentRequest struct {
	OrderID string `json:"orderId" validate:"required"`
}

// ConfirmPaymentResponse covers every 200/4xx/5xx shape of the confirmation
// call; unused fields are omitted.
type ConfirmPaymentResponse struct {
	Paid                  bool         `json:"paid"`
	OrderStatus           *int         `json:"orderStatus,omitempty"`
	StatusText            string       `json:"statusText,omitempty"`
	ActionCodeDescription *string      `json:"actionCodeDescription,omitempty"`
	Success               bool         `json:"success,omitempty"`
	AlreadyIssued         bool         `json:"alreadyIssued,omitempty"`
	Certificate           *Certificate `json:"certificate,omitempty"`
	Error                 string       `json:"error,omitempty"`
	Details               interface{}  `json:"details,omitempty"`
}

// Certificate is the CRM client plus its deposit, as shown to the buyer.
type Certificate struct {
	ClientID      string `json:"clientId"`
	CardNumber    string `json:"cardNumber"`
	CardBarcode   string `json:"cardBarcode"`
	CardHash      string `json:"cardHash"`
	RecipientName string `json:"recipientName"`
	SenderName    string `json:"senderName"`
	Nominal       int64  `json:"nominal"`
	QRURL         string `json:"qrUrl"`
}

// Provisioned is the outcome of a successful provisioning run.
type Provisioned struct {
	Certificate   *Certificate `json:"certificate"`
	DepositResult *CallResult  `json:"depositResult"`
}

type IssuanceStatus string

const (
	IssuanceStatusIssued         IssuanceStatus = "issued"
	IssuanceStatusPendingDeposit IssuanceStatus = "pending_deposit"
)

// Issuance records what was provisioned for a paid gateway order.
type Issuance struct {
	OrderID       string         `json:"order_id" db:"order_id"`
	Status        IssuanceStatus `json:"status" db:"status"`
	ClientID      string         `json:"client_id" db:"client_id"`
	CardNumber    string         `json:"card_number" db:"card_number"`
	CardBarcode   string         `json:"card_barcode" db:"card_barcode"`
	CardHash      string         `json:"card_hash" db:"card_hash"`
	RecipientName string         `json:"recipient_name" db:"recipient_name"`
	SenderName    string         `json:"sender_name" db:"sender_name"`
	Nominal       int64          `json:"nominal" db:"nominal"`
	LastError     string         `json:"last_error,omitempty" db:"last_error"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
}

// Certificate rebuilds the buyer-facing record from the stored issuance.
func (i *Issuance) Certificate() *Certificate {
	return NewCertificate(i.ClientID, i.CardNumber, i.CardBarcode, i.CardHash, i.RecipientName, i.SenderName, i.Nominal)
}

// NewCertificate fills QRURL from the card number, or the barcode when the
// CRM assigned no number.
func NewCertificate(clientID, cardNumber, cardBarcode, cardHash, recipient, sender string, nominal int64) *Certificate {
	qr := cardNumber
	if qr == "" {
		qr = cardBarcode
	}
	return &Certificate{
		ClientID:      clientID,
		CardNumber:    cardNumber,
		CardBarcode:   cardBarcode,
		CardHash:      cardHash,
		RecipientName: recipient,
		SenderName:    sender,
		Nominal:       nominal,
		QRURL:         qr,
	}
}

// Database schema
const IssuanceSchema = `
CREATE TABLE IF NOT EXISTS certificate_issuances (
    order_id VARCHAR(64) PRIMARY KEY,
    status VARCHAR(20) NOT NULL,
    client_id VARCHAR(64) NOT NULL,
    card_number VARCHAR(64),
    card_barcode VARCHAR(64),
    card_hash VARCHAR(128),
    recipient_name TEXT NOT NULL,
    sender_name TEXT,
    nominal BIGINT NOT NULL,
    last_error TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW()
);
`

const IssuanceStatusIndex = `CREATE INDEX IF NOT EXISTS idx_certificate_issuances_status ON certificate_issuances (status);`

// ReconcileReport summarizes one pass over issuances still waiting for their
// deposit.
type ReconcileReport struct {
	Checked  int      `json:"checked"`
	Issued   int      `json:"issued"`
	Failed   int      `json:"failed"`
	Skipped  int      `json:"skipped"`
	Failures []string `json:"failures"`
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/models"
)

// ErrAlreadyRecorded is returned by Create when the order already has an
// issuance row.
var ErrAlreadyRecorded = errors.New("issuance already recorded")

const uniqueViolation = "23505"

type IssuanceRepository struct {
	db *sql.DB
}

func NewIssuanceRepository(db *sql.DB) *IssuanceRepository {
	return &IssuanceRepository{db: db}
}

func (r *IssuanceRepository) Create(ctx context.Context, issuance *models.Issuance) error {
	query := `
		INSERT INTO certificate_issuances (
			order_id, status, client_id, card_number, card_barcode, card_hash,
			recipient_name, sender_name, nominal, last_error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		issuance.OrderID,
		issuance.Status,
		issuance.ClientID,
		issuance.CardNumber,
		issuance.CardBarcode,
		issuance.CardHash,
		issuance.RecipientName,
		issuance.SenderName,
		issuance.Nominal,
		issuance.LastError,
		issuance.CreatedAt,
		issuance.UpdatedAt,
	)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrAlreadyRecorded
	}
	if err != nil {
		return fmt.Errorf("failed to insert issuance: %w", err)
	}
	return nil
}

// GetByOrderID returns nil, nil when the order has no issuance yet.
func (r *IssuanceRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Issuance, error) {
	query := `
		SELECT order_id, status, client_id, card_number, card_barcode, card_hash,
			   recipient_name, sender_name, nominal, last_error, created_at, updated_at
		FROM certificate_issuances WHERE order_id = $1
	`

	issuance, err := scanIssuance(r.db.QueryRowContext(ctx, query, orderID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load issuance: %w", err)
	}
	return issuance, nil
}

// UpdateStatus moves an issuance to status, recording lastError.
func (r *IssuanceRepository) UpdateStatus(ctx context.Context, issuance *models.Issuance) error {
	query := `
		UPDATE certificate_issuances
		SET status = $1, last_error = $2, updated_at = $3
		WHERE order_id = $4
	`

	_, err := r.db.ExecContext(ctx, query,
		issuance.Status,
		issuance.LastError,
		issuance.UpdatedAt,
		issuance.OrderID,
	)
	if err != nil {
		return fmt.Errorf("failed to update issuance: %w", err)
	}
	return nil
}

// ListByStatus returns issuances in status, oldest first. Used to find
// clients left without a deposit.
func (r *IssuanceRepository) ListByStatus(ctx context.Context, status models.IssuanceStatus, limit int) ([]*models.Issuance, error) {
	query := `
		SELECT order_id, status, client_id, card_number, card_barcode, card_hash,
			   recipient_name, sender_name, nominal, last_error, created_at, updated_at
		FROM certificate_issuances WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list issuances: %w", err)
	}
	defer rows.Close()

	var out []*models.Issuance
	for rows.Next() {
		issuance, err := scanIssuance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issuance: %w", err)
		}
		out = append(out, issuance)
	}

	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanIssuance reads one row in column order. Card fields, sender and
// last_error are nullable.
func scanIssuance(row scanner) (*models.Issuance, error) {
	issuance := &models.Issuance{}
	var cardNumber, cardBarcode, cardHash, senderName, lastError sql.NullString
	err := row.Scan(
		&issuance.OrderID,
		&issuance.Status,
		&issuance.ClientID,
		&cardNumber,
		&cardBarcode,
		&cardHash,
		&issuance.RecipientName,
		&senderName,
		&issuance.Nominal,
		&lastError,
		&issuance.CreatedAt,
		&issuance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	issuance.CardNumber = cardNumber.String
	issuance.CardBarcode = cardBarcode.String
	issuance.CardHash = cardHash.String
	issuance.SenderName = senderName.String
	issuance.LastError = lastError.String
	return issuance, nil
}

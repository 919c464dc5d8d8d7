package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/models"
)

var issuanceColumns = []string{
	"order_id", "status", "client_id", "card_number", "card_barcode", "card_hash",
	"recipient_name", "sender_name", "nominal", "last_error", "created_at", "updated_at",
}

func newMockRepo(t *testing.T) (*IssuanceRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewIssuanceRepository(db), mock
}

func sampleIssuance() *models.Issuance {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.Issuance{
		OrderID:       "70906e55-7114-41d6-8332-4609dc6590f4",
		Status:        models.IssuanceStatusIssued,
		ClientID:      "987654",
		CardNumber:    "1000123",
		CardBarcode:   "2900001001234",
		CardHash:      "a1b2c3",
		RecipientName: "Иван Петров",
		SenderName:    "Мария",
		Nominal:       1500,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestCreate(t *testing.T) {
	repo, mock := newMockRepo(t)
	is := sampleIssuance()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO certificate_issuances")).
		WithArgs(is.OrderID, is.Status, is.ClientID, is.CardNumber, is.CardBarcode, is.CardHash,
			is.RecipientName, is.SenderName, is.Nominal, is.LastError, is.CreatedAt, is.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), is))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDuplicate(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO certificate_issuances")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := repo.Create(context.Background(), sampleIssuance())
	assert.ErrorIs(t, err, ErrAlreadyRecorded)
}

func TestCreateOtherError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO certificate_issuances")).
		WillReturnError(errors.New("connection reset"))

	err := repo.Create(context.Background(), sampleIssuance())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAlreadyRecorded)
}

func TestGetByOrderID(t *testing.T) {
	repo, mock := newMockRepo(t)
	is := sampleIssuance()

	rows := sqlmock.NewRows(issuanceColumns).AddRow(
		is.OrderID, string(is.Status), is.ClientID, is.CardNumber, is.CardBarcode, is.CardHash,
		is.RecipientName, is.SenderName, is.Nominal, nil, is.CreatedAt, is.UpdatedAt)
	mock.ExpectQuery(regexp.QuoteMeta("FROM certificate_issuances WHERE order_id = $1")).
		WithArgs(is.OrderID).
		WillReturnRows(rows)

	got, err := repo.GetByOrderID(context.Background(), is.OrderID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, is, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByOrderIDNullColumns(t *testing.T) {
	repo, mock := newMockRepo(t)
	is := sampleIssuance()

	rows := sqlmock.NewRows(issuanceColumns).AddRow(
		is.OrderID, string(is.Status), is.ClientID, nil, nil, nil,
		is.RecipientName, nil, is.Nominal, nil, is.CreatedAt, is.UpdatedAt)
	mock.ExpectQuery(regexp.QuoteMeta("FROM certificate_issuances WHERE order_id = $1")).
		WithArgs(is.OrderID).
		WillReturnRows(rows)

	got, err := repo.GetByOrderID(context.Background(), is.OrderID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "", got.CardNumber)
	assert.Equal(t, "", got.CardBarcode)
	assert.Equal(t, "", got.CardHash)
	assert.Equal(t, "", got.SenderName)
	assert.Equal(t, is.RecipientName, got.RecipientName)
}

func TestGetByOrderIDMissing(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM certificate_issuances WHERE order_id = $1")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(issuanceColumns))

	got, err := repo.GetByOrderID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateStatus(t *testing.T) {
	repo, mock := newMockRepo(t)
	is := sampleIssuance()
	is.Status = models.IssuanceStatusPendingDeposit
	is.LastError = "crm createOrder: failed to create deposit order (status 500)"

	mock.ExpectExec(regexp.QuoteMeta("UPDATE certificate_issuances")).
		WithArgs(is.Status, is.LastError, is.UpdatedAt, is.OrderID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), is))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByStatus(t *testing.T) {
	repo, mock := newMockRepo(t)
	is := sampleIssuance()

	rows := sqlmock.NewRows(issuanceColumns).
		AddRow(is.OrderID, "pending_deposit", is.ClientID, is.CardNumber, is.CardBarcode, is.CardHash,
			is.RecipientName, is.SenderName, is.Nominal, "timeout", is.CreatedAt, is.UpdatedAt).
		AddRow("second", "pending_deposit", "1", "", "", "",
			"Анна", "", int64(500), nil, is.CreatedAt, is.UpdatedAt)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = $1")).
		WithArgs(models.IssuanceStatusPendingDeposit, 10).
		WillReturnRows(rows)

	got, err := repo.ListByStatus(context.Background(), models.IssuanceStatusPendingDeposit, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "timeout", got[0].LastError)
	assert.Equal(t, "second", got[1].OrderID)
	assert.Empty(t, got[1].LastError)
}

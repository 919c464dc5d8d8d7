package service

import (
	"errors"
	"fmt"

	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/models"
)

// ErrProvisioningInProgress means another request holds the provisioning lock
// for the same gateway order.
var ErrProvisioningInProgress = errors.New("certificate provisioning in progress")

// ValidationError is a rejected caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// DepositError is returned when the CRM client exists but its balance could
// not be credited. Certificate identifies the client for follow-up.
type DepositError struct {
	Certificate *models.Certificate
	Result      *models.CallResult
	Err         error
}

func (e *DepositError) Error() string {
	return fmt.Sprintf("deposit for client %s failed: %v", e.Certificate.ClientID, e.Err)
}

func (e *DepositError) Unwrap() error {
	return e.Err
}

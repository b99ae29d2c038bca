package domain

import (
	"context"
	"errors"

	paymentdomain "github.com/smallbiznis/loadpass/internal/providers/payment/domain"
)

type ProvisionRequest struct {
	UserID string
	Email  string
}

type Service interface {
	// Provision creates the Square customer for a new user and stores its id on user_metadata.
	Provision(ctx context.Context, req ProvisionRequest) (paymentdomain.Customer, error)
}

var (
	ErrInvalidUserID     = errors.New("invalid_user_id")
	ErrInvalidEmail      = errors.New("invalid_email")
	ErrMissingCustomerID = errors.New("missing_customer_id")
)

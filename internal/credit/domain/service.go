package domain

import (
	"context"
	"errors"
)

type GrantRequest struct {
	CustomerID  string
	UserID      string
	VariationID string
	PaymentID   string
	OrderID     string
	Source      string
}

type GrantResult struct {
	UserID        string
	PackageHandle string
	LoadsGranted  int64
	Balance       int64
	PaymentID     string
}

type ConsumeRequest struct {
	UserID string
}

type ConsumeResult struct {
	UserID  string
	Balance int64
}

type Service interface {
	Grant(ctx context.Context, req GrantRequest) (GrantResult, error)
	Consume(ctx context.Context, req ConsumeRequest) (ConsumeResult, error)
}

var (
	ErrMissingGrantFields = errors.New("missing_grant_fields")
	ErrMissingUserID      = errors.New("missing_user_id")
	ErrAlreadyGranted     = errors.New("payment_already_granted")
	ErrInsufficientLoads  = errors.New("insufficient_loads")
	ErrInvalidSource      = errors.New("invalid_grant_source")
)

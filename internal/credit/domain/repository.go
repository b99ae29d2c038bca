package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	PaymentRecorded(ctx context.Context, db *gorm.DB, paymentID string) (bool, error)
	InsertHistory(ctx context.Context, db *gorm.DB, item *PaymentHistory) error
}

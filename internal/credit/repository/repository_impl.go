package repository

import (
	"context"

	"github.com/smallbiznis/loadpass/internal/credit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) PaymentRecorded(ctx context.Context, db *gorm.DB, paymentID string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM payment_history
		 WHERE square_payment_id = ?`,
		paymentID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) InsertHistory(ctx context.Context, db *gorm.DB, item *domain.PaymentHistory) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_history (
			id, user_id, package_handle, square_variation_id, user_received_loads,
			square_payment_id, square_order_id, source, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.UserID,
		item.PackageHandle,
		item.SquareVariationID,
		item.UserReceivedLoads,
		item.SquarePaymentID,
		item.SquareOrderID,
		item.Source,
		item.CreatedAt,
	).Error
}

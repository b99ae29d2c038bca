package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/loadpass/internal/checkout/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, item *domain.PendingTransaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO pending_transactions (
			id, square_order_id, user_id, package_handle, square_variation_id,
			payment_link_id, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.SquareOrderID,
		item.UserID,
		item.PackageHandle,
		item.SquareVariationID,
		item.PaymentLinkID,
		item.Status,
		item.CreatedAt,
	).Error
}

func (r *repo) FindByOrderID(ctx context.Context, db *gorm.DB, orderID string) (*domain.PendingTransaction, error) {
	var item domain.PendingTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, square_order_id, user_id, package_handle, square_variation_id,
			payment_link_id, status, created_at, completed_at
		 FROM pending_transactions
		 WHERE square_order_id = ?
		 LIMIT 1`,
		orderID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

// MarkCompleted reports false when the transaction was already completed.
func (r *repo) MarkCompleted(ctx context.Context, db *gorm.DB, orderID string, completedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE pending_transactions
		 SET status = ?, completed_at = ?
		 WHERE square_order_id = ? AND status = ?`,
		domain.StatusCompleted,
		completedAt,
		orderID,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

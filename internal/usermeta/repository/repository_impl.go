package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/loadpass/internal/usermeta/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*domain.UserMetadata, error) {
	var item domain.UserMetadata
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, square_customer_id, loads_available, created_at, updated_at
		 FROM user_metadata
		 WHERE user_id = ?
		 LIMIT 1`,
		userID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.UserID == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*domain.UserMetadata, error) {
	var item domain.UserMetadata
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, square_customer_id, loads_available, created_at, updated_at
		 FROM user_metadata
		 WHERE square_customer_id = ?
		 LIMIT 1`,
		customerID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.UserID == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) SetCustomerID(ctx context.Context, db *gorm.DB, userID, customerID string, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.UserMetadata{}).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"square_customer_id", "updated_at"}),
		}).
		Create(map[string]any{
			"user_id":            userID,
			"square_customer_id": customerID,
			"loads_available":    0,
			"created_at":         now,
			"updated_at":         now,
		}).Error
}

func (r *repo) AddLoads(ctx context.Context, db *gorm.DB, userID string, loads int64, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE user_metadata
		 SET loads_available = (CASE WHEN loads_available < 0 THEN 0 ELSE loads_available END) + ?,
			updated_at = ?
		 WHERE user_id = ?`,
		loads,
		now,
		userID,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) ConsumeLoad(ctx context.Context, db *gorm.DB, userID string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE user_metadata
		 SET loads_available = loads_available - 1,
			updated_at = ?
		 WHERE user_id = ? AND loads_available >= 1`,
		now,
		userID,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) Balance(ctx context.Context, db *gorm.DB, userID string) (int64, bool, error) {
	var rows []struct {
		LoadsAvailable int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT loads_available
		 FROM user_metadata
		 WHERE user_id = ?
		 LIMIT 1`,
		userID,
	).Scan(&rows).Error
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return rows[0].LoadsAvailable, true, nil
}

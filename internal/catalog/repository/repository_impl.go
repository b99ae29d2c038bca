package repository

import (
	"context"

	"github.com/smallbiznis/loadpass/internal/catalog/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const packageColumns = `id, handle, name, square_variation_id, price, currency, user_received_loads, active, created_at, updated_at`

func (r *repo) FindByHandle(ctx context.Context, db *gorm.DB, handle string) (*domain.Package, error) {
	var pkg domain.Package
	err := db.WithContext(ctx).Raw(
		`SELECT `+packageColumns+`
		 FROM purchasable_packages
		 WHERE handle = ?
		 LIMIT 1`,
		handle,
	).Scan(&pkg).Error
	if err != nil {
		return nil, err
	}
	if pkg.ID == 0 {
		return nil, nil
	}
	return &pkg, nil
}

func (r *repo) FindByVariationID(ctx context.Context, db *gorm.DB, variationID string) (*domain.Package, error) {
	var pkg domain.Package
	err := db.WithContext(ctx).Raw(
		`SELECT `+packageColumns+`
		 FROM purchasable_packages
		 WHERE square_variation_id = ?
		 LIMIT 1`,
		variationID,
	).Scan(&pkg).Error
	if err != nil {
		return nil, err
	}
	if pkg.ID == 0 {
		return nil, nil
	}
	return &pkg, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]*domain.Package, error) {
	var items []*domain.Package
	err := db.WithContext(ctx).
		Model(&domain.Package{}).
		Where("active = ?", true).
		Order("price asc, handle asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Upsert keys on handle. The stored id and created_at survive a re-sync.
func (r *repo) Upsert(ctx context.Context, db *gorm.DB, pkg *domain.Package) error {
	return db.WithContext(ctx).
		Model(&domain.Package{}).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "handle"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "square_variation_id", "price", "currency",
				"user_received_loads", "active", "updated_at",
			}),
		}).
		Create(map[string]any{
			"id":                  pkg.ID,
			"handle":              pkg.Handle,
			"name":                pkg.Name,
			"square_variation_id": pkg.SquareVariationID,
			"price":               pkg.Price,
			"currency":            pkg.Currency,
			"user_received_loads": pkg.UserReceivedLoads,
			"active":              pkg.Active,
			"created_at":          pkg.CreatedAt,
			"updated_at":          pkg.UpdatedAt,
		}).Error
}

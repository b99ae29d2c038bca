package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindByHandle(ctx context.Context, db *gorm.DB, handle string) (*Package, error)
	FindByVariationID(ctx context.Context, db *gorm.DB, variationID string) (*Package, error)
	ListActive(ctx context.Context, db *gorm.DB) ([]*Package, error)
	Upsert(ctx context.Context, db *gorm.DB, pkg *Package) error
}

package domain

import (
	"context"
	"errors"
)

type SyncEntry struct {
	Handle            string
	Name              string
	SquareVariationID string
	Price             int64
	Currency          string
	UserReceivedLoads int64
}

type Service interface {
	GetByHandle(ctx context.Context, handle string) (Package, error)
	GetByVariationID(ctx context.Context, variationID string) (Package, error)
	List(ctx context.Context) ([]Package, error)
	Sync(ctx context.Context, entries []SyncEntry) (int, error)
}

var (
	ErrInvalidHandle      = errors.New("invalid_handle")
	ErrInvalidVariationID = errors.New("invalid_variation_id")
	ErrPackageNotFound    = errors.New("package_not_found")
	ErrInvalidEntry       = errors.New("invalid_catalog_entry")
)

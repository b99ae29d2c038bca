package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/loadpass/internal/catalog/domain"
	"github.com/smallbiznis/loadpass/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) GetByHandle(ctx context.Context, handle string) (domain.Package, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return domain.Package{}, domain.ErrInvalidHandle
	}

	pkg, err := s.repo.FindByHandle(ctx, s.db, handle)
	if err != nil {
		return domain.Package{}, err
	}
	if pkg == nil || !pkg.Active {
		return domain.Package{}, domain.ErrPackageNotFound
	}
	return *pkg, nil
}

func (s *Service) GetByVariationID(ctx context.Context, variationID string) (domain.Package, error) {
	variationID = strings.TrimSpace(variationID)
	if variationID == "" {
		return domain.Package{}, domain.ErrInvalidVariationID
	}

	pkg, err := s.repo.FindByVariationID(ctx, s.db, variationID)
	if err != nil {
		return domain.Package{}, err
	}
	if pkg == nil {
		return domain.Package{}, domain.ErrPackageNotFound
	}
	return *pkg, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Package, error) {
	items, err := s.repo.ListActive(ctx, s.db)
	if err != nil {
		return nil, err
	}

	packages := make([]domain.Package, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		packages = append(packages, *item)
	}
	return packages, nil
}

// Sync upserts every entry in a single transaction and returns the number written.
func (s *Service) Sync(ctx context.Context, entries []domain.SyncEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	now := s.clock.Now()
	packages := make([]*domain.Package, 0, len(entries))
	for _, entry := range entries {
		handle := strings.TrimSpace(entry.Handle)
		variationID := strings.TrimSpace(entry.SquareVariationID)
		if handle == "" || variationID == "" || entry.UserReceivedLoads <= 0 {
			return 0, domain.ErrInvalidEntry
		}
		currency := strings.ToUpper(strings.TrimSpace(entry.Currency))
		if currency == "" {
			currency = "USD"
		}
		packages = append(packages, &domain.Package{
			ID:                s.genID.Generate(),
			Handle:            handle,
			Name:              strings.TrimSpace(entry.Name),
			SquareVariationID: variationID,
			Price:             entry.Price,
			Currency:          currency,
			UserReceivedLoads: entry.UserReceivedLoads,
			Active:            true,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, pkg := range packages {
			if err := s.repo.Upsert(ctx, tx, pkg); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("catalog synced", zap.Int("packages", len(packages)))
	return len(packages), nil
}

package catalog

import (
	"context"

	"github.com/smallbiznis/loadpass/internal/catalog/domain"
	"github.com/smallbiznis/loadpass/internal/catalog/repository"
	"github.com/smallbiznis/loadpass/internal/catalog/service"
	"github.com/smallbiznis/loadpass/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("catalog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Invoke(syncFromFile),
)

// syncFromFile seeds packages from catalog.yml at startup and after every valid reload.
func syncFromFile(lc fx.Lifecycle, holder *config.CatalogHolder, svc domain.Service, log *zap.Logger) {
	log = log.Named("catalog.sync")

	apply := func(ctx context.Context, cfg config.CatalogConfig) error {
		if len(cfg.Packages) == 0 {
			return nil
		}
		_, err := svc.Sync(ctx, EntriesFromConfig(cfg))
		return err
	}

	holder.OnChange(func(cfg config.CatalogConfig) {
		if err := apply(context.Background(), cfg); err != nil {
			log.Error("catalog reload sync failed", zap.Error(err))
		}
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return apply(ctx, holder.Get())
		},
	})
}

func EntriesFromConfig(cfg config.CatalogConfig) []domain.SyncEntry {
	entries := make([]domain.SyncEntry, 0, len(cfg.Packages))
	for _, p := range cfg.Packages {
		entries = append(entries, domain.SyncEntry{
			Handle:            p.Handle,
			Name:              p.Name,
			SquareVariationID: p.SquareVariationID,
			Price:             p.Price,
			Currency:          p.Currency,
			UserReceivedLoads: p.UserReceivedLoads,
		})
	}
	return entries
}

package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/loadpass/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const eventColumns = `id, provider, provider_event_id, event_type, payload, received_at, processed_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// RecordDelivery stores a webhook delivery keyed by (provider, provider_event_id).
// A redelivery returns the stored row with fresh set to false.
func (r *repo) RecordDelivery(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (*domain.EventRecord, bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return event, true, nil
	}

	stored, err := r.findDelivery(ctx, db, event.Provider, event.ProviderEventID)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, domain.ErrInvalidEvent
	}
	return stored, false, nil
}

func (r *repo) findDelivery(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+eventColumns+` FROM payment_events
		 WHERE provider = ? AND provider_event_id = ?
		 LIMIT 1`,
		provider, providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

// MarkProcessed reports false when another worker already closed the delivery.
func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_events SET processed_at = ? WHERE id = ? AND processed_at IS NULL`,
		processedAt, id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListUnprocessed(ctx context.Context, db *gorm.DB, provider string, limit int) ([]domain.EventRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var items []domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+eventColumns+` FROM payment_events
		 WHERE provider = ? AND processed_at IS NULL
		 ORDER BY received_at ASC, id ASC
		 LIMIT ?`,
		provider, limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

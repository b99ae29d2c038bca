package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventRecord is one delivered provider webhook. (provider, provider_event_id) is unique.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"size:32;not null;uniqueIndex:ux_payment_events_provider_event"`
	ProviderEventID string         `json:"provider_event_id" gorm:"size:191;not null;uniqueIndex:ux_payment_events_provider_event"`
	EventType       string         `json:"event_type" gorm:"size:128;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	ProviderSquare = "square"

	PaymentStatusCompleted = "COMPLETED"
)

// PaymentEvent is the canonical completed-payment event parsed by adapters.
type PaymentEvent struct {
	Provider        string
	ProviderEventID string
	Type            string
	PaymentID       string
	OrderID         string
	CustomerID      string
	Status          string
	Amount          int64
	Currency        string
	OccurredAt      time.Time
	RawPayload      []byte
}

type AdapterConfig struct {
	Provider        string
	SignatureKey    string
	NotificationURL string
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}

type PaymentAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
}

type Repository interface {
	RecordDelivery(ctx context.Context, db *gorm.DB, event *EventRecord) (*EventRecord, bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) (bool, error)
	ListUnprocessed(ctx context.Context, db *gorm.DB, provider string, limit int) ([]EventRecord, error)
}

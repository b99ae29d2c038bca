package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	SourceCallback = "callback"
	SourceWebhook  = "webhook"
)

// PaymentHistory is the append-only audit row written for every grant.
type PaymentHistory struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID            string       `gorm:"size:191;not null;index" json:"user_id"`
	PackageHandle     string       `gorm:"not null" json:"package_handle"`
	SquareVariationID string       `gorm:"column:square_variation_id;not null" json:"square_variation_id"`
	UserReceivedLoads int64        `gorm:"column:user_received_loads;not null" json:"user_received_loads"`
	SquarePaymentID   *string      `gorm:"column:square_payment_id;size:191;uniqueIndex" json:"square_payment_id,omitempty"`
	SquareOrderID     *string      `gorm:"column:square_order_id" json:"square_order_id,omitempty"`
	Source            string       `gorm:"not null" json:"source"`
	CreatedAt         time.Time    `gorm:"not null" json:"created_at"`
}

func (PaymentHistory) TableName() string {
	return "payment_history"
}

package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// PendingTransaction binds an issued Square order to the user who requested the link.
type PendingTransaction struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	SquareOrderID     string       `gorm:"column:square_order_id;size:191;not null;uniqueIndex" json:"square_order_id"`
	UserID            string       `gorm:"size:191;not null;index" json:"user_id"`
	PackageHandle     string       `gorm:"not null" json:"package_handle"`
	SquareVariationID string       `gorm:"column:square_variation_id;not null" json:"square_variation_id"`
	PaymentLinkID     string       `gorm:"not null;default:''" json:"payment_link_id"`
	Status            string       `gorm:"not null;default:'pending'" json:"status"`
	CreatedAt         time.Time    `gorm:"not null" json:"created_at"`
	CompletedAt       *time.Time   `json:"completed_at,omitempty"`
}

func (PendingTransaction) TableName() string {
	return "pending_transactions"
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, item *PendingTransaction) error
	FindByOrderID(ctx context.Context, db *gorm.DB, orderID string) (*PendingTransaction, error)
	MarkCompleted(ctx context.Context, db *gorm.DB, orderID string, completedAt time.Time) (bool, error)
}

type IssueRequest struct {
	UserID string
	Handle string
}

type IssueResult struct {
	URL           string
	OrderID       string
	PaymentLinkID string
}

type Service interface {
	Issue(ctx context.Context, req IssueRequest) (IssueResult, error)
}

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrRateLimited     = errors.New("checkout_rate_limited")
	ErrMissingOrderID  = errors.New("payment_link_missing_order")
)

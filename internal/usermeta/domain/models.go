package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// UserMetadata is the per-user row owned by the identity provider. This service
// only touches the Square customer id and the load balance.
type UserMetadata struct {
	UserID           string    `gorm:"column:user_id;size:191;primaryKey" json:"user_id"`
	SquareCustomerID *string   `gorm:"column:square_customer_id;size:191;uniqueIndex" json:"square_customer_id,omitempty"`
	LoadsAvailable   int64     `gorm:"column:loads_available;not null;default:0" json:"loads_available"`
	CreatedAt        time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time `gorm:"not null" json:"updated_at"`
}

func (UserMetadata) TableName() string {
	return "user_metadata"
}

type Repository interface {
	FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*UserMetadata, error)
	FindByCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*UserMetadata, error)
	// SetCustomerID stores the Square customer id, creating the row when the
	// identity trigger has not inserted it yet.
	SetCustomerID(ctx context.Context, db *gorm.DB, userID, customerID string, now time.Time) error
	// AddLoads credits loads in one statement, treating a legacy negative balance as zero.
	AddLoads(ctx context.Context, db *gorm.DB, userID string, loads int64, now time.Time) (int64, error)
	// ConsumeLoad debits one load only when the balance covers it.
	ConsumeLoad(ctx context.Context, db *gorm.DB, userID string, now time.Time) (int64, error)
	Balance(ctx context.Context, db *gorm.DB, userID string) (int64, bool, error)
}

var ErrUserNotFound = errors.New("user_not_found")

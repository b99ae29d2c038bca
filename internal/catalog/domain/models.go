package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Package is a purchasable bundle of loads backed by a Square catalog item variation.
type Package struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	Handle            string       `gorm:"size:191;not null;uniqueIndex" json:"handle"`
	Name              string       `gorm:"not null;default:''" json:"name"`
	SquareVariationID string       `gorm:"column:square_variation_id;size:191;not null;uniqueIndex" json:"square_variation_id"`
	Price             int64        `gorm:"not null;default:0" json:"price"`
	Currency          string       `gorm:"not null;default:'USD'" json:"currency"`
	UserReceivedLoads int64        `gorm:"column:user_received_loads;not null" json:"user_received_loads"`
	Active            bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt         time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time    `gorm:"not null" json:"updated_at"`
}

func (Package) TableName() string {
	return "purchasable_packages"
}

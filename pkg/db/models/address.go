package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultAddressIndex is the partial unique index allowing one default per owner.
const DefaultAddressIndex = "addresses_one_default_per_owner"

// Address is a saved shipping address in a shopper's address book.
type Address struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID   string    `gorm:"column:owner_id;type:text;not null;index:addresses_owner_id_idx;uniqueIndex:addresses_one_default_per_owner,where:is_default"`
	Name      string    `gorm:"column:name;type:text;not null;default:''"`
	FullName  string    `gorm:"column:full_name;type:text;not null"`
	Phone     string    `gorm:"column:phone;type:text;not null"`
	Address   string    `gorm:"column:address;type:text;not null"`
	City      string    `gorm:"column:city;type:text;not null"`
	State     string    `gorm:"column:state;type:text;not null"`
	ZipCode   string    `gorm:"column:zip_code;type:text;not null"`
	Country   string    `gorm:"column:country;type:text;not null"`
	IsDefault bool      `gorm:"column:is_default;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Address) TableName() string { return "addresses" }

package address

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/types"
)

// Input is the writable part of an address.
type Input struct {
	Name      string `json:"name" validate:"max=64"`
	FullName  string `json:"fullName" validate:"required,max=128"`
	Phone     string `json:"phone" validate:"required,max=32"`
	Address   string `json:"address" validate:"required,max=256"`
	City      string `json:"city" validate:"required,max=128"`
	State     string `json:"state" validate:"required,max=128"`
	ZipCode   string `json:"zipCode" validate:"required,max=16"`
	Country   string `json:"country" validate:"required,max=64"`
	IsDefault bool   `json:"isDefault"`
}

// Address is a saved address as returned to callers.
type Address struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	FullName  string    `json:"fullName"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	City      string    `json:"city"`
	State     string    `json:"state"`
	ZipCode   string    `json:"zipCode"`
	Country   string    `json:"country"`
	IsDefault bool      `json:"isDefault"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Shipping returns the address in checkout form.
func (a Address) Shipping() types.ShippingAddress {
	return types.ShippingAddress{
		FullName: a.FullName,
		Phone:    a.Phone,
		Address:  a.Address,
		City:     a.City,
		State:    a.State,
		ZipCode:  a.ZipCode,
		Country:  a.Country,
	}
}

// Suggestion is an autocomplete candidate.
type Suggestion struct {
	PlaceID     string `json:"placeId"`
	Description string `json:"description"`
}

func fromModel(m models.Address) Address {
	return Address{
		ID:        m.ID,
		Name:      m.Name,
		FullName:  m.FullName,
		Phone:     m.Phone,
		Address:   m.Address,
		City:      m.City,
		State:     m.State,
		ZipCode:   m.ZipCode,
		Country:   m.Country,
		IsDefault: m.IsDefault,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func (in Input) apply(m *models.Address) {
	m.Name = in.Name
	m.FullName = in.FullName
	m.Phone = in.Phone
	m.Address = in.Address
	m.City = in.City
	m.State = in.State
	m.ZipCode = in.ZipCode
	m.Country = in.Country
}

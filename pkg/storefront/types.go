package storefront

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/pkg/types"
)

// Product is the catalog read model returned by GET /products/:id.
type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stockQuantity"`
	Images        []string        `json:"images,omitempty"`
	Vendor        Vendor          `json:"vendor"`
	Variants      ProductVariants `json:"variants"`
}

type Vendor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProductVariants carries the variant price table. Entries are left raw so
// callers can tolerate numbers and numeric strings alike.
type ProductVariants struct {
	Prices map[string]json.RawMessage `json:"prices,omitempty"`
}

type CouponValidationRequest struct {
	Code      string          `json:"code"`
	CartTotal decimal.Decimal `json:"cartTotal"`
}

type Coupon struct {
	Code          string          `json:"code"`
	Type          string          `json:"type"`
	Value         decimal.Decimal `json:"value"`
	MinOrderValue decimal.Decimal `json:"minOrderValue"`
}

type CouponValidationResponse struct {
	Coupon   Coupon          `json:"coupon"`
	Discount decimal.Decimal `json:"discount"`
}

type ShippingItem struct {
	ProductID string          `json:"productId"`
	VendorID  string          `json:"vendorId,omitempty"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type ShippingAddress struct {
	Country string `json:"country"`
	ZipCode string `json:"zipCode,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
}

type ShippingEstimateRequest struct {
	Items           []ShippingItem  `json:"items"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	ShippingOption  string          `json:"shippingOption"`
	CouponType      string          `json:"couponType,omitempty"`
}

type ShippingEstimateResponse struct {
	Shipping decimal.Decimal `json:"shipping"`
}

type OrderItem struct {
	ProductID string            `json:"productId"`
	Name      string            `json:"name"`
	VendorID  string            `json:"vendorId"`
	Quantity  int               `json:"quantity"`
	Price     decimal.Decimal   `json:"price"`
	Variant   map[string]string `json:"variant,omitempty"`
}

type OrderRequest struct {
	Items           []OrderItem           `json:"items"`
	ShippingAddress types.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string                `json:"paymentMethod"`
	Subtotal        decimal.Decimal       `json:"subtotal"`
	Shipping        decimal.Decimal       `json:"shipping"`
	Tax             decimal.Decimal       `json:"tax"`
	Discount        decimal.Decimal       `json:"discount"`
	Total           decimal.Decimal       `json:"total"`
	CouponCode      string                `json:"couponCode,omitempty"`
	ShippingOption  string                `json:"shippingOption"`
}

type OrderResponse struct {
	ID string `json:"id"`
}

type Notification struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Type      string          `json:"type"`
	IsRead    bool            `json:"isRead"`
	CreatedAt time.Time       `json:"createdAt"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NotificationPage is one page of a scope's mailbox.
type NotificationPage struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unreadCount"`
	Pages         int            `json:"pages"`
}

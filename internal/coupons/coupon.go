package coupons

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/money"
	"github.com/angelmondragon/storefront/pkg/storefront"
)

// Coupon is the descriptor returned by the coupon service.
type Coupon struct {
	Code          string           `json:"code"`
	Type          enums.CouponType `json:"type"`
	Value         decimal.Decimal  `json:"value"`
	MinOrderValue decimal.Decimal  `json:"minOrderValue"`
}

// Application is a validated coupon priced against a specific cart total.
// FreeShipping coupons carry a zero merchandise discount.
type Application struct {
	Coupon       Coupon          `json:"coupon"`
	Discount     decimal.Decimal `json:"discount"`
	FreeShipping bool            `json:"freeShipping"`
	CartTotal    decimal.Decimal `json:"cartTotal"`
	ValidatedAt  time.Time       `json:"validatedAt"`
}

// Validator checks a normalized code against the cart total remotely.
type Validator interface {
	Validate(ctx context.Context, code string, cartTotal decimal.Decimal) (Coupon, error)
}

// NormalizeCode trims and uppercases a shopper-entered code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate normalizes code, asks the validator and prices the discount.
func Validate(ctx context.Context, v Validator, code string, cartTotal decimal.Decimal) (Application, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return Application{}, pkgerrors.FieldErrors("coupon code is required", map[string]string{"code": "required"})
	}
	coupon, err := v.Validate(ctx, normalized, cartTotal)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeValidation) || pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return Application{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid coupon")
		}
		return Application{}, err
	}
	if coupon.Code == "" {
		coupon.Code = normalized
	}
	return Price(coupon, cartTotal)
}

// Price computes the discount coupon grants at cartTotal.
func Price(coupon Coupon, cartTotal decimal.Decimal) (Application, error) {
	total := money.NonNegative(cartTotal)
	app := Application{Coupon: coupon, CartTotal: total, Discount: decimal.Zero}
	switch coupon.Type {
	case enums.CouponTypePercentage:
		app.Discount = money.Percent(total, coupon.Value)
	case enums.CouponTypeFixed:
		app.Discount = money.Round(decimal.Min(money.NonNegative(coupon.Value), total))
	case enums.CouponTypeFreeShip:
		app.FreeShipping = true
	default:
		return Application{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid coupon").WithDetails(map[string]string{"type": string(coupon.Type)})
	}
	return app, nil
}

type couponClient interface {
	ValidateCoupon(ctx context.Context, req storefront.CouponValidationRequest) (*storefront.CouponValidationResponse, error)
}

// RemoteValidator adapts the upstream storefront coupon endpoint.
type RemoteValidator struct {
	client couponClient
}

func NewRemoteValidator(client couponClient) (*RemoteValidator, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "storefront client required")
	}
	return &RemoteValidator{client: client}, nil
}

func (r *RemoteValidator) Validate(ctx context.Context, code string, cartTotal decimal.Decimal) (Coupon, error) {
	resp, err := r.client.ValidateCoupon(ctx, storefront.CouponValidationRequest{Code: code, CartTotal: cartTotal})
	if err != nil {
		return Coupon{}, err
	}
	kind, err := enums.ParseCouponType(resp.Coupon.Type)
	if err != nil {
		return Coupon{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid coupon")
	}
	return Coupon{
		Code:          NormalizeCode(resp.Coupon.Code),
		Type:          kind,
		Value:         resp.Coupon.Value,
		MinOrderValue: resp.Coupon.MinOrderValue,
	}, nil
}

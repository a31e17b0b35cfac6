package checkout

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/money"
	"github.com/angelmondragon/storefront/pkg/storefront"
	"github.com/angelmondragon/storefront/pkg/types"
)

// Totals is the priced summary of a checkout.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// ComputeTotals taxes the discounted subtotal and floors the total at zero.
func ComputeTotals(subtotal, shipping, discount, taxRate decimal.Decimal) Totals {
	subtotal = money.Round(money.NonNegative(subtotal))
	shipping = money.Round(money.NonNegative(shipping))
	discount = money.Round(money.NonNegative(discount))
	tax := money.Round(money.NonNegative(subtotal.Sub(discount)).Mul(taxRate))
	total := money.Round(money.NonNegative(money.Sum(subtotal, shipping, tax).Sub(discount)))
	return Totals{Subtotal: subtotal, Shipping: shipping, Tax: tax, Discount: discount, Total: total}
}

// OrderItem is a frozen copy of a cart line.
type OrderItem struct {
	ProductID  string            `json:"productId"`
	Name       string            `json:"name"`
	VendorID   string            `json:"vendorId"`
	VendorName string            `json:"vendorName"`
	Quantity   int               `json:"quantity"`
	Price      decimal.Decimal   `json:"price"`
	Variant    map[string]string `json:"variant,omitempty"`
	Image      string            `json:"image,omitempty"`
}

// Order is the snapshot submitted to the order service.
type Order struct {
	ID              string                `json:"id"`
	Items           []OrderItem           `json:"items"`
	ShippingAddress types.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   enums.PaymentMethod   `json:"paymentMethod"`
	Subtotal        decimal.Decimal       `json:"subtotal"`
	Shipping        decimal.Decimal       `json:"shipping"`
	Tax             decimal.Decimal       `json:"tax"`
	Discount        decimal.Decimal       `json:"discount"`
	Total           decimal.Decimal       `json:"total"`
	CouponCode      string                `json:"couponCode,omitempty"`
	ShippingOption  enums.ShippingTier    `json:"shippingOption"`
	Status          enums.OrderStatus     `json:"status"`
	PlacedAt        time.Time             `json:"placedAt"`
}

// Clone deep-copies the order.
func (o Order) Clone() Order {
	out := o
	out.Items = make([]OrderItem, len(o.Items))
	for i, it := range o.Items {
		out.Items[i] = it
		if it.Variant != nil {
			out.Items[i].Variant = make(map[string]string, len(it.Variant))
			for k, v := range it.Variant {
				out.Items[i].Variant[k] = v
			}
		}
	}
	return out
}

func snapshotItems(lines []cart.Line) []OrderItem {
	items := make([]OrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, OrderItem{
			ProductID:  l.ProductID,
			Name:       l.Name,
			VendorID:   l.VendorID,
			VendorName: l.VendorName,
			Quantity:   l.Quantity,
			Price:      l.Price,
			Variant:    l.Variant.Attributes(),
			Image:      l.Image,
		})
	}
	return items
}

// OrderPlacer creates orders remotely and returns the assigned id.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, idempotencyKey string, order Order) (string, error)
}

type orderClient interface {
	CreateOrder(ctx context.Context, idempotencyKey string, req storefront.OrderRequest) (*storefront.OrderResponse, error)
}

// RemotePlacer adapts the upstream order endpoint.
type RemotePlacer struct {
	client orderClient
}

func NewRemotePlacer(client orderClient) (*RemotePlacer, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "storefront client required")
	}
	return &RemotePlacer{client: client}, nil
}

func (p *RemotePlacer) PlaceOrder(ctx context.Context, idempotencyKey string, order Order) (string, error) {
	items := make([]storefront.OrderItem, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, storefront.OrderItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			VendorID:  it.VendorID,
			Quantity:  it.Quantity,
			Price:     it.Price,
			Variant:   it.Variant,
		})
	}
	resp, err := p.client.CreateOrder(ctx, idempotencyKey, storefront.OrderRequest{
		Items:           items,
		ShippingAddress: order.ShippingAddress,
		PaymentMethod:   string(order.PaymentMethod),
		Subtotal:        order.Subtotal,
		Shipping:        order.Shipping,
		Tax:             order.Tax,
		Discount:        order.Discount,
		Total:           order.Total,
		CouponCode:      order.CouponCode,
		ShippingOption:  string(order.ShippingOption),
	})
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

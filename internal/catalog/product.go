package catalog

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/internal/pricing"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/storefront"
)

// Product is the slice of catalog data the cart needs.
type Product struct {
	ID            string
	Name          string
	BasePrice     decimal.Decimal
	StockQuantity int
	Images        []string
	VendorID      string
	VendorName    string
	VariantPrices pricing.Table
}

// UnitPrice resolves the variant price for the selection.
func (p Product) UnitPrice(size, color string) decimal.Decimal {
	return pricing.ResolvePrice(p.BasePrice, p.VariantPrices, size, color)
}

func (p Product) InStock() bool {
	return pricing.InStock(p.StockQuantity)
}

// Image returns the first product image or an empty string.
func (p Product) Image() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// Loader fetches live product data.
type Loader interface {
	Product(ctx context.Context, id string) (Product, error)
}

type productFetcher interface {
	GetProduct(ctx context.Context, productID string) (*storefront.Product, error)
}

// RemoteLoader reads products from the upstream storefront API.
type RemoteLoader struct {
	client productFetcher
}

func NewRemoteLoader(client productFetcher) (*RemoteLoader, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "storefront client required")
	}
	return &RemoteLoader{client: client}, nil
}

func (l *RemoteLoader) Product(ctx context.Context, id string) (Product, error) {
	remote, err := l.client.GetProduct(ctx, id)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return Product{}, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "product not found")
		}
		return Product{}, err
	}
	return FromRemote(*remote), nil
}

// FromRemote maps the upstream wire model.
func FromRemote(p storefront.Product) Product {
	return Product{
		ID:            p.ID,
		Name:          p.Name,
		BasePrice:     p.Price,
		StockQuantity: p.StockQuantity,
		Images:        append([]string(nil), p.Images...),
		VendorID:      p.Vendor.ID,
		VendorName:    p.Vendor.Name,
		VariantPrices: pricing.Table(p.Variants.Prices),
	}
}

// StaticLoader serves products from memory.
type StaticLoader map[string]Product

func (s StaticLoader) Product(_ context.Context, id string) (Product, error) {
	p, ok := s[id]
	if !ok {
		return Product{}, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return p, nil
}

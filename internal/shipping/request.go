package shipping

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/money"
	"github.com/angelmondragon/storefront/pkg/storefront"
)

type Item struct {
	ProductID string
	VendorID  string
	Quantity  int
	Price     decimal.Decimal
}

type Destination struct {
	Country string
	ZipCode string
	City    string
	State   string
}

// Request is one estimate input.
type Request struct {
	Items       []Item
	Destination Destination
	Tier        enums.ShippingTier
	CouponType  enums.CouponType
	Subtotal    decimal.Decimal
}

// Key digests the request so results can be matched to the inputs that produced them.
func (r Request) Key() string {
	items := make([]string, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, it.ProductID+"@"+it.VendorID+"x"+strconv.Itoa(it.Quantity)+"="+it.Price.String())
	}
	sort.Strings(items)

	parts := []string{
		strings.Join(items, ","),
		strings.ToUpper(strings.TrimSpace(r.Destination.Country)),
		strings.ToUpper(strings.TrimSpace(r.Destination.ZipCode)),
		strings.ToLower(strings.TrimSpace(r.Destination.City)),
		strings.ToLower(strings.TrimSpace(r.Destination.State)),
		string(r.tier()),
		string(r.CouponType),
		money.Round(r.Subtotal).String(),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:12])
}

func (r Request) tier() enums.ShippingTier {
	if r.Tier == "" {
		return enums.ShippingTierStandard
	}
	return r.Tier
}

// Quoter returns a remote shipping cost.
type Quoter interface {
	Quote(ctx context.Context, req Request) (decimal.Decimal, error)
}

// Rates is the local heuristic used when the remote quote is unavailable.
// A zero FreeThreshold disables the threshold rule.
type Rates struct {
	FreeThreshold decimal.Decimal
	Standard      decimal.Decimal
	Express       decimal.Decimal
}

// Fallback prices req without a remote call.
func (r Rates) Fallback(req Request) decimal.Decimal {
	if req.CouponType == enums.CouponTypeFreeShip {
		return decimal.Zero
	}
	if r.FreeThreshold.IsPositive() && req.Subtotal.GreaterThanOrEqual(r.FreeThreshold) {
		return decimal.Zero
	}
	if req.tier() == enums.ShippingTierExpress {
		return money.Round(r.Express)
	}
	return money.Round(r.Standard)
}

type estimateClient interface {
	EstimateShipping(ctx context.Context, req storefront.ShippingEstimateRequest) (*storefront.ShippingEstimateResponse, error)
}

// RemoteQuoter adapts the upstream shipping estimate endpoint.
type RemoteQuoter struct {
	client estimateClient
}

func NewRemoteQuoter(client estimateClient) (*RemoteQuoter, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "storefront client required")
	}
	return &RemoteQuoter{client: client}, nil
}

func (q *RemoteQuoter) Quote(ctx context.Context, req Request) (decimal.Decimal, error) {
	items := make([]storefront.ShippingItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, storefront.ShippingItem{ProductID: it.ProductID, VendorID: it.VendorID, Quantity: it.Quantity, Price: it.Price})
	}
	resp, err := q.client.EstimateShipping(ctx, storefront.ShippingEstimateRequest{
		Items: items,
		ShippingAddress: storefront.ShippingAddress{
			Country: req.Destination.Country,
			ZipCode: req.Destination.ZipCode,
			City:    req.Destination.City,
			State:   req.Destination.State,
		},
		ShippingOption: string(req.tier()),
		CouponType:     string(req.CouponType),
	})
	if err != nil {
		return decimal.Zero, err
	}
	if resp.Shipping.IsNegative() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeDependency, "negative shipping estimate")
	}
	return resp.Shipping, nil
}

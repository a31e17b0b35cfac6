package cart

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/money"
)

const (
	defaultMaxLines = 100
	refreshFanOut   = 8
	keepStoredStock = -1
)

// TotalListener is invoked after a mutation moves the cart total.
type TotalListener func(old, new decimal.Decimal)

// AddInput is the add-to-cart request.
type AddInput struct {
	ProductID string
	Quantity  int
	Variant   Variant
}

// View is the read model served to the storefront.
type View struct {
	Items        []Line          `json:"items"`
	VendorGroups []VendorGroup   `json:"vendorGroups"`
	Total        decimal.Decimal `json:"total"`
	Count        int             `json:"count"`
}

// Service is one session's cart with catalog lookups and persistence.
type Service interface {
	Hydrate(ctx context.Context) error
	Add(ctx context.Context, input AddInput) (Result, error)
	Remove(ctx context.Context, productID string, variant Variant) (Result, error)
	UpdateQuantity(ctx context.Context, productID string, quantity int, variant Variant) (Result, error)
	Clear(ctx context.Context) error
	Refresh(ctx context.Context) ([]Warning, error)
	View() View
	Items() []Line
	Total() decimal.Decimal
	OnTotalChange(fn TotalListener)
}

// ServiceParams groups dependencies for the cart service.
type ServiceParams struct {
	SessionID string
	Loader    catalog.Loader
	Store     Store
	MaxLines  int
	Logger    *logger.Logger
}

type service struct {
	mu        sync.Mutex
	sessionID string
	cart      *Cart
	loader    catalog.Loader
	store     Store
	maxLines  int
	logg      *logger.Logger

	listenersMu sync.RWMutex
	listeners   []TotalListener
}

// NewService builds a cart service for one session.
func NewService(params ServiceParams) (Service, error) {
	if strings.TrimSpace(params.SessionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	if params.Loader == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "product loader is required")
	}
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart store is required")
	}
	maxLines := params.MaxLines
	if maxLines <= 0 {
		maxLines = defaultMaxLines
	}
	return &service{
		sessionID: params.SessionID,
		cart:      New(),
		loader:    params.Loader,
		store:     params.Store,
		maxLines:  maxLines,
		logg:      params.Logger,
	}, nil
}

func (s *service) OnTotalChange(fn TotalListener) {
	if fn == nil {
		return
	}
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.listenersMu.Unlock()
}

// Hydrate restores the persisted cart, replacing local state.
func (s *service) Hydrate(ctx context.Context) error {
	lines, found, err := s.store.Load(ctx, s.sessionID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	s.mutate(ctx, func(c *Cart) {
		c.Restore(lines)
	}, false)
	return nil
}

func (s *service) Add(ctx context.Context, input AddInput) (Result, error) {
	productID := strings.TrimSpace(input.ProductID)
	if productID == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	product, err := s.loader.Product(ctx, productID)
	if err != nil {
		return Result{}, err
	}

	line := Line{
		ProductID:     product.ID,
		Name:          product.Name,
		Price:         product.UnitPrice(input.Variant.Size, input.Variant.Color),
		Quantity:      input.Quantity,
		Variant:       input.Variant,
		Image:         product.Image(),
		VendorID:      product.VendorID,
		VendorName:    product.VendorName,
		StockQuantity: product.StockQuantity,
	}
	if line.ProductID == "" {
		line.ProductID = productID
	}

	var res Result
	var limitErr error
	s.mutate(ctx, func(c *Cart) {
		if c.index(line.key()) < 0 && c.Len() >= s.maxLines {
			limitErr = pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("cart cannot hold more than %d lines", s.maxLines))
			return
		}
		res = c.Add(line)
	}, true)
	if limitErr != nil {
		return Result{}, limitErr
	}
	if res.Rejected {
		return res, pkgerrors.New(pkgerrors.CodeConflict, "product is out of stock").WithDetails(res.Warnings)
	}
	return res, nil
}

func (s *service) Remove(ctx context.Context, productID string, variant Variant) (Result, error) {
	var res Result
	s.mutate(ctx, func(c *Cart) {
		res = c.Remove(productID, variant)
	}, true)
	return res, nil
}

// UpdateQuantity sets an absolute quantity against live stock.
func (s *service) UpdateQuantity(ctx context.Context, productID string, quantity int, variant Variant) (Result, error) {
	if quantity <= 0 {
		return s.Remove(ctx, productID, variant)
	}
	if !s.contains(productID, variant) {
		return Result{}, pkgerrors.New(pkgerrors.CodeNotFound, "item is not in the cart")
	}

	liveStock := keepStoredStock
	var price *decimal.Decimal
	product, err := s.loader.Product(ctx, productID)
	switch {
	case err == nil:
		liveStock = product.StockQuantity
		p := product.UnitPrice(variant.Size, variant.Color)
		price = &p
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		liveStock = 0
	default:
		return Result{}, err
	}

	var res Result
	s.mutate(ctx, func(c *Cart) {
		if price != nil {
			c.Reprice(productID, variant, *price)
		}
		res = c.UpdateQuantity(productID, quantity, variant, liveStock)
	}, true)
	if res.Rejected {
		return res, pkgerrors.New(pkgerrors.CodeNotFound, "item is not in the cart")
	}
	return res, nil
}

func (s *service) Clear(ctx context.Context) error {
	s.mutate(ctx, func(c *Cart) {
		c.Clear()
	}, true)
	return nil
}

// Refresh re-reads every product, re-resolving prices and re-clamping
// quantities to live stock. Nothing changes if any lookup fails outright.
func (s *service) Refresh(ctx context.Context) ([]Warning, error) {
	lines := s.Items()
	if len(lines) == 0 {
		return nil, nil
	}

	ids := distinctProductIDs(lines)
	products := make([]*catalog.Product, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshFanOut)
	for i, id := range ids {
		g.Go(func() error {
			product, err := s.loader.Product(gctx, id)
			if err != nil {
				if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
					return nil
				}
				return err
			}
			products[i] = &product
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refresh cart products")
	}

	byID := make(map[string]*catalog.Product, len(ids))
	for i, id := range ids {
		byID[id] = products[i]
	}

	var warnings []Warning
	s.mutate(ctx, func(c *Cart) {
		for _, snap := range lines {
			// Work from the line as it is now; it may have changed or gone
			// while the products were loading.
			idx := c.index(snap.key())
			if idx < 0 {
				continue
			}
			line := c.lines[idx].clone()
			product := byID[line.ProductID]
			if product == nil {
				c.Remove(line.ProductID, line.Variant)
				warnings = append(warnings, Warning{
					Type:      enums.CartWarningTypeUnavailable,
					ProductID: line.ProductID,
					Variant:   line.Variant.Signature(),
					Requested: line.Quantity,
					Message:   fmt.Sprintf("%s is no longer available and was removed", displayName(line)),
				})
				continue
			}
			price := money.Round(product.UnitPrice(line.Variant.Size, line.Variant.Color))
			if c.Reprice(line.ProductID, line.Variant, price) {
				warnings = append(warnings, Warning{
					Type:      enums.CartWarningTypePriceChanged,
					ProductID: line.ProductID,
					Variant:   line.Variant.Signature(),
					Requested: line.Quantity,
					Applied:   line.Quantity,
					Message:   fmt.Sprintf("price of %s changed from %s to %s", displayName(line), line.Price.StringFixed(2), price.StringFixed(2)),
				})
			}
			c.ReplaceDetails(line.ProductID, line.Variant, product.Name, product.Image(), product.VendorName)
			if res := c.UpdateQuantity(line.ProductID, line.Quantity, line.Variant, product.StockQuantity); !res.Rejected {
				warnings = append(warnings, res.Warnings...)
			}
		}
	}, true)
	return warnings, nil
}

func (s *service) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.cart.Items()
	count := 0
	for _, l := range items {
		count += l.Quantity
	}
	return View{
		Items:        items,
		VendorGroups: s.cart.ItemsByVendor(),
		Total:        s.cart.Total(),
		Count:        count,
	}
}

func (s *service) Items() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Items()
}

func (s *service) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Total()
}

func (s *service) contains(productID string, variant Variant) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.index(lineKey{productID: productID, signature: variant.Signature()}) >= 0
}

// mutate applies fn under the lock, optionally persists, then notifies
// total listeners outside the lock.
func (s *service) mutate(ctx context.Context, fn func(c *Cart), persist bool) {
	s.mu.Lock()
	before := s.cart.Total()
	fn(s.cart)
	after := s.cart.Total()
	if persist {
		if err := s.store.Save(ctx, s.sessionID, s.cart.Snapshot()); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "cart.persist.failed")
		}
	}
	s.mu.Unlock()

	if before.Equal(after) {
		return
	}
	s.listenersMu.RLock()
	listeners := append([]TotalListener(nil), s.listeners...)
	s.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(before, after)
	}
}

func distinctProductIDs(lines []Line) []string {
	seen := map[string]struct{}{}
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}
	return ids
}

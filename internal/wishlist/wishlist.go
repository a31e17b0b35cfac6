package wishlist

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/catalog"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

// Item is one saved product.
type Item struct {
	ProductID string    `json:"productId"`
	AddedAt   time.Time `json:"addedAt"`
}

// CartAdder is the slice of the cart the wishlist moves items into.
type CartAdder interface {
	Add(ctx context.Context, input cart.AddInput) (cart.Result, error)
}

// Service manages one session's wishlist.
type Service interface {
	Hydrate(ctx context.Context) error
	Add(ctx context.Context, productID string) (bool, error)
	Remove(ctx context.Context, productID string) (bool, error)
	List() []Item
	Contains(productID string) bool
	MoveToCart(ctx context.Context, productID string, target CartAdder) (cart.Result, error)
}

// ServiceParams groups dependencies for the wishlist service.
type ServiceParams struct {
	SessionID string
	Loader    catalog.Loader
	Store     Store
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	mu        sync.Mutex
	sessionID string
	items     []Item
	loader    catalog.Loader
	store     Store
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds a wishlist service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if strings.TrimSpace(params.SessionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	if params.Loader == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "product loader is required")
	}
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "wishlist store is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		sessionID: params.SessionID,
		loader:    params.Loader,
		store:     params.Store,
		logg:      params.Logger,
		now:       now,
	}, nil
}

func (s *service) Hydrate(ctx context.Context) error {
	items, found, err := s.store.Load(ctx, s.sessionID)
	if err != nil || !found {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = dedupe(items)
	return nil
}

// Add saves the product. Adding an existing product is a no-op.
func (s *service) Add(ctx context.Context, productID string) (bool, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if s.Contains(id) {
		return false, nil
	}
	if _, err := s.loader.Product(ctx, id); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(id) >= 0 {
		return false, nil
	}
	s.items = append(s.items, Item{ProductID: id, AddedAt: s.now().UTC()})
	s.persistLocked(ctx)
	return true, nil
}

func (s *service) Remove(ctx context.Context, productID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(strings.TrimSpace(productID))
	if idx < 0 {
		return false, nil
	}
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	s.persistLocked(ctx)
	return true, nil
}

func (s *service) List() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Item(nil), s.items...)
}

func (s *service) Contains(productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexLocked(strings.TrimSpace(productID)) >= 0
}

// MoveToCart adds one unit to target and drops the product from the
// wishlist only if the cart accepted it.
func (s *service) MoveToCart(ctx context.Context, productID string, target CartAdder) (cart.Result, error) {
	if target == nil {
		return cart.Result{}, pkgerrors.New(pkgerrors.CodeInternal, "cart is required")
	}
	id := strings.TrimSpace(productID)
	if !s.Contains(id) {
		return cart.Result{}, pkgerrors.New(pkgerrors.CodeNotFound, "product is not in the wishlist")
	}
	res, err := target.Add(ctx, cart.AddInput{ProductID: id, Quantity: 1})
	if err != nil {
		return res, err
	}
	if _, err := s.Remove(ctx, id); err != nil {
		return res, err
	}
	return res, nil
}

func (s *service) indexLocked(productID string) int {
	for i, item := range s.items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

func (s *service) persistLocked(ctx context.Context) {
	if err := s.store.Save(ctx, s.sessionID, append([]Item(nil), s.items...)); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "wishlist.persist.failed")
	}
}

func dedupe(items []Item) []Item {
	seen := map[string]struct{}{}
	out := make([]Item, 0, len(items))
	for _, item := range items {
		if item.ProductID == "" {
			continue
		}
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		out = append(out, item)
	}
	return out
}

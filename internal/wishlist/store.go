package wishlist

import (
	"context"
	"time"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

// Store persists a session's wishlist.
type Store interface {
	Load(ctx context.Context, sessionID string) ([]Item, bool, error)
	Save(ctx context.Context, sessionID string, items []Item) error
}

type jsonStore interface {
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	Del(ctx context.Context, keys ...string) error
	WishlistKey(sessionID string) string
}

// RedisStore keeps wishlists as JSON arrays.
type RedisStore struct {
	client jsonStore
	ttl    time.Duration
}

func NewRedisStore(client jsonStore, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "redis client required")
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) ([]Item, bool, error) {
	var items []Item
	found, err := s.client.GetJSON(ctx, s.client.WishlistKey(sessionID), &items)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wishlist")
	}
	return items, found, nil
}

func (s *RedisStore) Save(ctx context.Context, sessionID string, items []Item) error {
	key := s.client.WishlistKey(sessionID)
	if len(items) == 0 {
		if err := s.client.Del(ctx, key); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete wishlist")
		}
		return nil
	}
	if err := s.client.SetJSON(ctx, key, items, s.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save wishlist")
	}
	return nil
}

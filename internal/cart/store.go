package cart

import (
	"context"
	"time"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

// Store persists a session's cart lines.
type Store interface {
	Load(ctx context.Context, sessionID string) ([]Line, bool, error)
	Save(ctx context.Context, sessionID string, lines []Line) error
	Delete(ctx context.Context, sessionID string) error
}

type jsonStore interface {
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	Del(ctx context.Context, keys ...string) error
	CartKey(sessionID string) string
}

type persistedCart struct {
	Lines   []Line    `json:"lines"`
	SavedAt time.Time `json:"savedAt"`
}

// RedisStore keeps carts as JSON blobs with a sliding TTL.
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

func (s *RedisStore) Load(ctx context.Context, sessionID string) ([]Line, bool, error) {
	var blob persistedCart
	found, err := s.client.GetJSON(ctx, s.client.CartKey(sessionID), &blob)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if !found {
		return nil, false, nil
	}
	return blob.Lines, true, nil
}

func (s *RedisStore) Save(ctx context.Context, sessionID string, lines []Line) error {
	if len(lines) == 0 {
		return s.Delete(ctx, sessionID)
	}
	blob := persistedCart{Lines: lines, SavedAt: time.Now().UTC()}
	if err := s.client.SetJSON(ctx, s.client.CartKey(sessionID), blob, s.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.client.CartKey(sessionID)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart")
	}
	return nil
}

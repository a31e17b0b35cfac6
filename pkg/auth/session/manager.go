package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redisclient "github.com/angelmondragon/storefront/pkg/redis"
	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
)

var ErrSessionNotFound = errors.New("session not found")

type sessionStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type sessionKeyer interface {
	SessionKey(sessionID string) string
}

// Record is the registry entry kept for every live shopper session.
type Record struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	Guest     bool      `json:"guest"`
	CreatedAt time.Time `json:"created_at"`
}

// Manager tracks which session ids may be used with an access token. Entries
// expire after the idle TTL and every successful check slides the window.
type Manager struct {
	store sessionStore
	keyer sessionKeyer
	ttl   time.Duration
}

// AccessSessionChecker exposes the read-only surface needed by middleware.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, sessionID string) (bool, error)
}

// NewManager constructs a session registry backed by Redis.
func NewManager(client *redisclient.Client, idleTTL time.Duration) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if idleTTL <= 0 {
		return nil, fmt.Errorf("session idle ttl must be positive")
	}
	return &Manager{
		store: client,
		keyer: client,
		ttl:   idleTTL,
	}, nil
}

// Register stores rec, assigning a session id when none is set.
func (m *Manager) Register(ctx context.Context, rec Record) (Record, error) {
	if strings.TrimSpace(rec.SessionID) == "" {
		rec.SessionID = NewSessionID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("marshal session record: %w", err)
	}
	if err := m.store.Set(ctx, m.keyer.SessionKey(rec.SessionID), string(payload), m.ttl); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Lookup returns the record for sessionID or ErrSessionNotFound.
func (m *Manager) Lookup(ctx context.Context, sessionID string) (Record, error) {
	if strings.TrimSpace(sessionID) == "" {
		return Record{}, fmt.Errorf("session id is required")
	}
	raw, err := m.store.Get(ctx, m.keyer.SessionKey(sessionID))
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return Record{}, ErrSessionNotFound
		}
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Record{}, fmt.Errorf("decode session record: %w", err)
	}
	return rec, nil
}

// HasSession reports whether sessionID is registered and slides its TTL.
func (m *Manager) HasSession(ctx context.Context, sessionID string) (bool, error) {
	if strings.TrimSpace(sessionID) == "" {
		return false, fmt.Errorf("session id is required")
	}
	return m.store.Expire(ctx, m.keyer.SessionKey(sessionID), m.ttl)
}

// Revoke deletes the registry entry for sessionID.
func (m *Manager) Revoke(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	return m.store.Del(ctx, m.keyer.SessionKey(sessionID))
}

// NewSessionID produces the identifier used as the JWT jti and Redis key.
func NewSessionID() string {
	return uuid.NewString()
}

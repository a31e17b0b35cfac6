package cart

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	sfredis "github.com/angelmondragon/storefront/pkg/redis"
)

func newRedisStore(t *testing.T) (*RedisStore, *sfredis.Client, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	client := sfredis.NewWithClient(raw)
	store, err := NewRedisStore(client, time.Hour)
	require.NoError(t, err)
	return store, client, srv
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, client, srv := newRedisStore(t)
	ctx := context.Background()

	_, found, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	require.False(t, found)

	in := []Line{{
		ProductID:     "tee",
		Name:          "Tee",
		Price:         decimal.RequireFromString("25.50"),
		Quantity:      2,
		Variant:       Variant{Size: "m", Custom: map[string]string{"fit": "slim"}},
		VendorID:      "v1",
		StockQuantity: 4,
	}}
	require.NoError(t, store.Save(ctx, "sess-1", in))
	require.Equal(t, time.Hour, srv.TTL(client.CartKey("sess-1")))

	out, found, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, out, 1)
	require.True(t, out[0].Price.Equal(in[0].Price))
	require.Equal(t, in[0].Variant.Signature(), out[0].Variant.Signature())

	require.NoError(t, store.Save(ctx, "sess-1", nil))
	require.False(t, srv.Exists(client.CartKey("sess-1")))
}

func TestServicePersistsThroughRedis(t *testing.T) {
	store, _, _ := newRedisStore(t)
	loader := catalogWith(tee())

	first, err := NewService(ServiceParams{SessionID: "sess-9", Loader: loader, Store: store})
	require.NoError(t, err)
	_, err = first.Add(context.Background(), AddInput{ProductID: "tee", Quantity: 3})
	require.NoError(t, err)

	second, err := NewService(ServiceParams{SessionID: "sess-9", Loader: loader, Store: store})
	require.NoError(t, err)
	require.NoError(t, second.Hydrate(context.Background()))
	require.True(t, second.Total().Equal(decimal.NewFromInt(60)))
}

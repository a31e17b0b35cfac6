package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront/pkg/config"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewWithClient(rdb), srv
}

func TestIncrWithTTLArmsWindowOnce(t *testing.T) {
	client, srv := newTestClient(t)
	ctx := context.Background()
	k := client.RateLimitKey("session", "coupon", "sess-1")

	count, err := client.IncrWithTTL(ctx, k, time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Equal(t, time.Minute, srv.TTL(k))

	srv.FastForward(30 * time.Second)
	count, err = client.IncrWithTTL(ctx, k, time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
	require.Equal(t, 30*time.Second, srv.TTL(k))

	srv.FastForward(31 * time.Second)
	require.False(t, srv.Exists(k))

	count, err = client.IncrWithTTL(ctx, k, time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestIncrWithoutTTLNeverExpires(t *testing.T) {
	client, srv := newTestClient(t)
	_, err := client.IncrWithTTL(context.Background(), "plain", 0)
	require.NoError(t, err)
	require.Zero(t, srv.TTL("plain"))
}

func TestJSONRoundTrip(t *testing.T) {
	client, srv := newTestClient(t)
	ctx := context.Background()

	type blob struct {
		Lines []string `json:"lines"`
	}
	k := client.CartKey("sess-1")
	require.NoError(t, client.SetJSON(ctx, k, blob{Lines: []string{"a", "b"}}, time.Hour))
	require.Equal(t, time.Hour, srv.TTL(k))

	var got blob
	found, err := client.GetJSON(ctx, k, &got)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []string{"a", "b"}, got.Lines)

	found, err = client.GetJSON(ctx, client.CartKey("missing"), &got)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, srv.Set(client.WishlistKey("sess-1"), "{not json"))
	_, err = client.GetJSON(ctx, client.WishlistKey("sess-1"), &got)
	require.Error(t, err)

	require.NoError(t, client.Del(ctx, k))
	_, err = client.Get(ctx, k)
	require.ErrorIs(t, err, redis.Nil)
}

func TestSetNXAndExpire(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()
	k := client.IdempotencyKey("checkout", "abc")

	ok, err := client.SetNX(ctx, k, "pending", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = client.SetNX(ctx, k, "pending", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = client.Expire(ctx, client.SessionKey("ghost"), time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = client.Expire(ctx, k, time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, client.Ping(ctx))
}

func TestZeroClientFailsClosed(t *testing.T) {
	var client *Client
	ctx := context.Background()
	require.ErrorIs(t, client.Ping(ctx), errNoConnection)
	require.ErrorIs(t, client.Set(ctx, "k", "v", 0), errNoConnection)
	_, err := (&Client{}).IncrWithTTL(ctx, "k", time.Second)
	require.ErrorIs(t, err, errNoConnection)
	require.NoError(t, client.Close())
}

func TestKeys(t *testing.T) {
	client := &Client{}
	require.Equal(t, "sf:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	require.Equal(t, "sf:rate_limit:ip:coupon:1.2.3.4", client.RateLimitKey("ip", "coupon", "1.2.3.4"))
	require.Equal(t, "sf:session:abc", client.SessionKey(" abc "))
	require.Equal(t, "sf:cart:abc", client.CartKey("abc"))
	require.Equal(t, "sf:wishlist", client.WishlistKey(""))
}

func TestOptions(t *testing.T) {
	_, err := options(config.RedisConfig{})
	require.Error(t, err)

	opts, err := options(config.RedisConfig{URL: "redis://:secret@cache:6380/3", PoolSize: 8, DialTimeout: time.Second})
	require.NoError(t, err)
	require.Equal(t, "cache:6380", opts.Addr)
	require.Equal(t, 3, opts.DB)
	require.Equal(t, 8, opts.PoolSize)
	require.Equal(t, time.Second, opts.DialTimeout)

	opts, err = options(config.RedisConfig{Address: "localhost:6379", DB: 2})
	require.NoError(t, err)
	require.Equal(t, 2, opts.DB)
}

package redisx

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/inventorynest/shop-orders/internal/orders"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := New(mr.Addr())
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestSessions(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()
	s := NewSessions(rdb, time.Hour)

	ok, err := s.Touch(ctx, "")
	require.NoError(t, err)
	require.False(t, ok)

	token, err := s.Create(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.True(t, mr.Exists("session:"+token))

	ok, err = s.Touch(ctx, token)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Hour)
	ok, err = s.Touch(ctx, token)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStatusCache(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()
	c := &StatusCache{RDB: rdb}

	_, ok := c.Get(ctx, "o1")
	require.False(t, ok)

	o := orders.Order{ID: "o1", UserID: "u1", ProductID: "p1", Quantity: 2, Status: orders.StatusProcessing}
	gen, err := c.Generation(ctx, "o1")
	require.NoError(t, err)
	require.Zero(t, gen)
	stored, err := c.Set(ctx, o, gen)
	require.NoError(t, err)
	require.True(t, stored)
	require.Equal(t, TTLStatusCache, mr.TTL("order_status:o1"))

	got, ok := c.Get(ctx, "o1")
	require.True(t, ok)
	require.Equal(t, orders.StatusProcessing, got.Status)
	require.Equal(t, "u1", got.UserID)

	require.NoError(t, c.Invalidate(ctx, "o1"))
	_, ok = c.Get(ctx, "o1")
	require.False(t, ok)
	gen, err = c.Generation(ctx, "o1")
	require.NoError(t, err)
	require.Equal(t, int64(1), gen)

	var nilCache *StatusCache
	_, ok = nilCache.Get(ctx, "o1")
	require.False(t, ok)
	stored, err = nilCache.Set(ctx, o, 0)
	require.NoError(t, err)
	require.False(t, stored)
}

func TestStatusCacheSkipsStaleRefill(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()
	c := &StatusCache{RDB: rdb}

	// a reader misses and loads the pending order
	gen, err := c.Generation(ctx, "o1")
	require.NoError(t, err)
	stale := orders.Order{ID: "o1", Status: orders.StatusPending}

	// a writer commits and invalidates before the reader stores its copy
	require.NoError(t, c.Invalidate(ctx, "o1"))

	stored, err := c.Set(ctx, stale, gen)
	require.NoError(t, err)
	require.False(t, stored)
	_, ok := c.Get(ctx, "o1")
	require.False(t, ok)

	// the next reader sees the new generation and may fill the cache
	gen, err = c.Generation(ctx, "o1")
	require.NoError(t, err)
	stored, err = c.Set(ctx, orders.Order{ID: "o1", Status: orders.StatusProcessing}, gen)
	require.NoError(t, err)
	require.True(t, stored)
	got, ok := c.Get(ctx, "o1")
	require.True(t, ok)
	require.Equal(t, orders.StatusProcessing, got.Status)
}

func TestIdempotency(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()
	i := &Idempotency{RDB: rdb}

	_, ok, err := i.Lookup(ctx, "user:u1", "k1")
	require.NoError(t, err)
	require.False(t, ok)

	res := orders.BatchResult{BatchID: "b1", TotalCents: 500, Lines: []orders.BatchLine{{OrderID: "o1", Quantity: 1}}}
	require.NoError(t, i.Save(ctx, "user:u1", "k1", res))

	got, ok, err := i.Lookup(ctx, "user:u1", "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, res, got)

	// keys are scoped to the owner
	_, ok, err = i.Lookup(ctx, "user:u2", "k1")
	require.NoError(t, err)
	require.False(t, ok)

	// no key means no idempotency
	require.NoError(t, i.Save(ctx, "user:u1", "", res))
	_, ok, err = i.Lookup(ctx, "user:u1", "")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDedup(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()
	d := &Dedup{RDB: rdb, Service: "notifier"}

	first, err := d.First(ctx, "e1")
	require.NoError(t, err)
	require.True(t, first)
	require.Equal(t, TTLDedup, mr.TTL("dedup:notifier:e1"))

	first, err = d.First(ctx, "e1")
	require.NoError(t, err)
	require.False(t, first)

	require.NoError(t, d.Forget(ctx, "e1"))
	first, err = d.First(ctx, "e1")
	require.NoError(t, err)
	require.True(t, first)
}

package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/inventorynest/shop-orders/internal/orders"
)

// StatusCache keeps the public view of recently read orders. The database
// stays authoritative; every write path invalidates, which also bumps the
// order's generation so a read that started earlier cannot refill the cache.
type StatusCache struct {
	RDB *redis.Client
}

// setIfGen writes the cached order only while the generation still matches
// the one the reader saw before loading it.
var setIfGen = redis.NewScript(`
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[2] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

func (c *StatusCache) Get(ctx context.Context, id string) (orders.Order, bool) {
	if c == nil || c.RDB == nil {
		return orders.Order{}, false
	}
	b, err := c.RDB.Get(ctx, fmt.Sprintf(KeyOrderStatus, id)).Bytes()
	if err != nil {
		return orders.Order{}, false
	}
	var o orders.Order
	if err := json.Unmarshal(b, &o); err != nil {
		return orders.Order{}, false
	}
	return o, true
}

// Generation must be read before the order is loaded from the database and
// handed back to Set.
func (c *StatusCache) Generation(ctx context.Context, id string) (int64, error) {
	if c == nil || c.RDB == nil {
		return 0, nil
	}
	n, err := c.RDB.Get(ctx, fmt.Sprintf(KeyOrderGen, id)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Set caches o unless the order was written since gen was read. It reports
// whether the entry was stored.
func (c *StatusCache) Set(ctx context.Context, o orders.Order, gen int64) (bool, error) {
	if c == nil || c.RDB == nil {
		return false, nil
	}
	b, err := json.Marshal(o)
	if err != nil {
		return false, err
	}
	keys := []string{fmt.Sprintf(KeyOrderStatus, o.ID), fmt.Sprintf(KeyOrderGen, o.ID)}
	n, err := setIfGen.Run(ctx, c.RDB, keys, b, strconv.FormatInt(gen, 10), TTLStatusCache.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *StatusCache) Invalidate(ctx context.Context, id string) error {
	if c == nil || c.RDB == nil {
		return nil
	}
	genKey := fmt.Sprintf(KeyOrderGen, id)
	_, err := c.RDB.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, genKey)
		p.Expire(ctx, genKey, 2*TTLStatusCache)
		p.Del(ctx, fmt.Sprintf(KeyOrderStatus, id))
		return nil
	})
	return err
}

// Idempotency remembers checkout results per owner and client key.
type Idempotency struct {
	RDB *redis.Client
}

func (i *Idempotency) Lookup(ctx context.Context, owner, key string) (orders.BatchResult, bool, error) {
	var res orders.BatchResult
	if i == nil || i.RDB == nil || key == "" {
		return res, false, nil
	}
	b, err := i.RDB.Get(ctx, fmt.Sprintf(KeyIdemCheckout, owner, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return res, false, nil
	}
	if err != nil {
		return res, false, err
	}
	if err := json.Unmarshal(b, &res); err != nil {
		return res, false, fmt.Errorf("decode idempotent result: %w", err)
	}
	return res, true, nil
}

func (i *Idempotency) Save(ctx context.Context, owner, key string, res orders.BatchResult) error {
	if i == nil || i.RDB == nil || key == "" {
		return nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return i.RDB.Set(ctx, fmt.Sprintf(KeyIdemCheckout, owner, key), b, TTLIdempotency).Err()
}

// Dedup marks event ids as processed for one consuming service.
type Dedup struct {
	RDB     *redis.Client
	Service string
}

// First claims id and reports whether this is its first delivery.
func (d *Dedup) First(ctx context.Context, id string) (bool, error) {
	return d.RDB.SetNX(ctx, fmt.Sprintf(KeyDedup, d.Service, id), "1", TTLDedup).Result()
}

// Forget drops a claim so a failed delivery can be retried.
func (d *Dedup) Forget(ctx context.Context, id string) error {
	return d.RDB.Del(ctx, fmt.Sprintf(KeyDedup, d.Service, id)).Err()
}

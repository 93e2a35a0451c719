package redisx

import "time"

const (
	// Anonymous cart session: session:{token} -> "1"
	KeySession = "session:%s"

	// Checkout idempotency: idem:checkout:{owner}:{idempotency_key} -> batch result JSON
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// Order cache: order_status:{order_id} -> order JSON
	KeyOrderStatus = "order_status:%s"

	// Order cache generation: order_gen:{order_id} -> counter bumped on every write
	KeyOrderGen = "order_gen:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
	TTLSession     = 30 * 24 * time.Hour
)

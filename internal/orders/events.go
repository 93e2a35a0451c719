package orders

import (
	"encoding/json"
	"time"
)

const EventNotificationRequested = "NotificationRequested"

// notification kinds
const (
	NotifyOrderPlaced         = "order_placed"
	NotifyOrderBatchPlaced    = "order_batch_placed"
	NotifyOrderStatusChanged  = "order_status_changed"
	NotifyOrderCancelled      = "order_cancelled"
	NotifyOrderCancelledOwner = "order_cancelled_owner"
	NotifyOrderDeleted        = "order_deleted"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order or batch id
	Payload       json.RawMessage `json:"payload"`
}

type NotificationPayload struct {
	Recipient string          `json:"recipient"`
	Kind      string          `json:"kind"`
	Data      json.RawMessage `json:"data"`
}

type OrderPlacedData struct {
	OrderID     string `json:"order_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	TotalCents  int    `json:"total_cents"`
}

type BatchPlacedData struct {
	BatchResult
}

type StatusChangedData struct {
	OrderID     string `json:"order_id"`
	ProductName string `json:"product_name"`
	From        Status `json:"from"`
	To          Status `json:"to"`
}

type OrderCancelledData struct {
	OrderID     string `json:"order_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	CancelledBy string `json:"cancelled_by,omitempty"`
}

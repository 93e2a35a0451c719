package notify

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/inventorynest/shop-orders/internal/kafka"
	"github.com/inventorynest/shop-orders/internal/logging"
	"github.com/inventorynest/shop-orders/internal/metrics"
	"github.com/inventorynest/shop-orders/internal/orders"
)

// Sink is where envelopes go; *kafka.Producer in production.
type Sink interface {
	Publish(key, value []byte, headers ...kafkago.Header) error
}

// Publisher implements orders.Notifier by putting a NotificationRequested
// envelope on the notifications topic. Failures are logged and counted.
type Publisher struct {
	Sink    Sink
	Service string
	Metrics *metrics.Metrics
}

var _ orders.Notifier = (*Publisher)(nil)

func NewPublisher(sink Sink, service string, m *metrics.Metrics) *Publisher {
	return &Publisher{Sink: sink, Service: service, Metrics: m}
}

func (p *Publisher) Notify(ctx context.Context, recipient, kind string, payload any) {
	log := logging.FromContext(ctx)
	if strings.TrimSpace(recipient) == "" {
		p.Metrics.Notification(kind, "no_recipient")
		log.Debug("notification_skipped", zap.String("kind", kind))
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		p.Metrics.Notification(kind, "encode_failed")
		log.Error("notification_encode_failed", zap.String("kind", kind), zap.Error(err))
		return
	}
	corr := correlationID(payload)
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventNotificationRequested,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      p.Service,
		TraceID:       middleware.GetReqID(ctx),
		CorrelationID: corr,
		Payload: kafkax.MustMarshal(orders.NotificationPayload{
			Recipient: recipient,
			Kind:      kind,
			Data:      data,
		}),
	}

	err = p.Sink.Publish(orders.PartitionKey(corr), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventNotificationRequested)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	if err != nil {
		p.Metrics.Notification(kind, "publish_failed")
		log.Warn("notification_publish_failed",
			zap.String("kind", kind),
			zap.String("correlation_id", corr),
			zap.Error(err),
		)
		return
	}
	p.Metrics.Notification(kind, "queued")
}

func correlationID(payload any) string {
	switch v := payload.(type) {
	case orders.OrderPlacedData:
		return v.OrderID
	case orders.BatchPlacedData:
		return v.BatchID
	case orders.StatusChangedData:
		return v.OrderID
	case orders.OrderCancelledData:
		return v.OrderID
	}
	return ""
}

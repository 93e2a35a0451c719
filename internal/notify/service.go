package notify

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/inventorynest/shop-orders/internal/kafka"
	"github.com/inventorynest/shop-orders/internal/logging"
	"github.com/inventorynest/shop-orders/internal/metrics"
	"github.com/inventorynest/shop-orders/internal/orders"
)

// Deduper claims event ids; *redisx.Dedup in production.
type Deduper interface {
	First(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

// Service consumes NotificationRequested events and delivers them.
type Service struct {
	Dedup   Deduper
	Mailer  Mailer
	Metrics *metrics.Metrics
}

// HandleNotification is installed as the consumer handler. A failed send
// drops the dedup claim and returns an error, so the consumer's next attempt
// at the same message is not mistaken for a duplicate.
func (s *Service) HandleNotification(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		logging.FromContext(ctx).Warn("notification_envelope_invalid", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventNotificationRequested {
		return nil
	}
	log := logging.FromContext(ctx).With(
		zap.String("event_id", env.EventID),
		zap.String("correlation_id", env.CorrelationID),
	)

	first, err := s.Dedup.First(ctx, env.EventID)
	if err != nil {
		return fmt.Errorf("dedup %s: %w", env.EventID, err)
	}
	if !first {
		log.Debug("notification_duplicate")
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.NotificationPayload](env.Payload)
	if err != nil {
		log.Warn("notification_payload_invalid", zap.Error(err))
		return nil
	}
	msg, err := Render(p)
	if err != nil {
		s.Metrics.Notification(p.Kind, "render_failed")
		log.Warn("notification_render_failed", zap.String("kind", p.Kind), zap.Error(err))
		return nil
	}

	if err := s.Mailer.Send(ctx, msg); err != nil {
		s.Metrics.Notification(p.Kind, "send_failed")
		if ferr := s.Dedup.Forget(ctx, env.EventID); ferr != nil {
			log.Warn("dedup_forget_failed", zap.Error(ferr))
		}
		return fmt.Errorf("deliver %s: %w", p.Kind, err)
	}
	s.Metrics.Notification(p.Kind, "sent")
	log.Info("notification_sent", zap.String("kind", p.Kind), zap.String("to", p.Recipient))
	return nil
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/kpizzy812/TMAMARKET/internal/domain"
	kafkaPorts "github.com/kpizzy812/TMAMARKET/internal/ports/kafka"
	"github.com/kpizzy812/TMAMARKET/internal/ports/service"
)

const (
	headerEventType = "event_type"
	headerEventID   = "event_id"
)

// eventNamespace пространство имён для event_id: повторная публикация того же события даёт тот же id
var eventNamespace = uuid.MustParse("6f1c2a9e-4b7d-4c38-9a51-2f0d8e3b7c64")

// Publisher публикует события оплаты в Kafka.
// Без producer события только пишутся в лог.
type Publisher struct {
	producer kafkaPorts.IKafkaProducer
	log      *slog.Logger
}

func New(producer kafkaPorts.IKafkaProducer, log *slog.Logger) service.IEventPublisher {
	return &Publisher{
		producer: producer,
		log:      log,
	}
}

func (p *Publisher) PublishSettlement(ctx context.Context, event domain.SettlementEvent) error {
	return p.publish(ctx, domain.EventPaymentSettled, event.OrderID, event.PaymentRequestID.String(), event)
}

func (p *Publisher) PublishExpiry(ctx context.Context, event domain.ExpiryEvent) error {
	return p.publish(ctx, domain.EventPaymentExpired, event.OrderID, event.PaymentRequestID.String(), event)
}

func (p *Publisher) PublishCancellation(ctx context.Context, event domain.CancellationEvent) error {
	return p.publish(ctx, domain.EventPaymentCancelled, event.OrderID, event.PaymentRequestID.String(), event)
}

func (p *Publisher) PublishDegraded(ctx context.Context, signal domain.DegradedNetworkSignal) error {
	return p.publish(ctx, domain.EventNetworkDegraded, signal.Network.String(), signalSeed(signal), signal)
}

func (p *Publisher) PublishRecovered(ctx context.Context, signal domain.DegradedNetworkSignal) error {
	return p.publish(ctx, domain.EventNetworkRecovered, signal.Network.String(), signalSeed(signal), signal)
}

// EventID детерминированный id события по типу и его источнику
func EventID(eventType domain.EventType, seed string) string {
	return uuid.NewSHA1(eventNamespace, []byte(string(eventType)+":"+seed)).String()
}

func signalSeed(signal domain.DegradedNetworkSignal) string {
	return signal.Network.String() + ":" + signal.Since.UTC().Format(time.RFC3339Nano)
}

func (p *Publisher) publish(ctx context.Context, eventType domain.EventType, key, seed string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	eventID := EventID(eventType, seed)

	if p.producer == nil {
		p.log.Info("event published",
			"event_type", eventType,
			"event_id", eventID,
			"key", key,
			"payload", string(value),
		)
		return nil
	}

	headers := map[string]string{
		headerEventType: string(eventType),
		headerEventID:   eventID,
	}

	if err := p.producer.Send(ctx, key, value, headers); err != nil {
		p.log.Error("failed to publish event",
			"error", err,
			"event_type", eventType,
			"key", key,
		)
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}

	p.log.Debug("event published",
		"event_type", eventType,
		"event_id", eventID,
		"key", key,
	)
	return nil
}

package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/IBM/sarama"

	kafkaAdapter "github.com/kpizzy812/TMAMARKET/internal/adapters/secondary/kafka"
	"github.com/kpizzy812/TMAMARKET/internal/domain"
	kafkaPorts "github.com/kpizzy812/TMAMARKET/internal/ports/kafka"
)

const rejoinDelay = 5 * time.Second

// Consumer читает один топик в consumer group.
// Offset фиксируется только после успешной обработки или бизнес-ошибки.
type Consumer struct {
	group   sarama.ConsumerGroup
	topic   string
	handler *claimHandler
	log     *slog.Logger
}

func NewConsumer(cfg *kafkaAdapter.Config, handler kafkaPorts.MessageHandler, log *slog.Logger) (*Consumer, error) {
	config, err := cfg.SaramaConfig()
	if err != nil {
		return nil, err
	}
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Return.Errors = false

	group, err := sarama.NewConsumerGroup(cfg.GetBrokers(), cfg.ConsumerGroup, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer group: %w", err)
	}

	log = log.With("topic", cfg.Topic, "consumer_group", cfg.ConsumerGroup)
	return &Consumer{
		group: group,
		topic: cfg.Topic,
		handler: &claimHandler{
			handler: handler,
			retries: cfg.HandlerRetries,
			backoff: cfg.RetryBackoff,
			log:     log,
		},
		log: log,
	}, nil
}

// Start держит членство в группе до отмены ctx.
// После ошибки сессии группа пересобирается, необработанные сообщения приходят снова.
func (c *Consumer) Start(ctx context.Context) error {
	c.log.Info("kafka consumer started")
	defer c.log.Info("kafka consumer stopped")

	for {
		err := c.group.Consume(ctx, []string{c.topic}, c.handler)
		if ctx.Err() != nil {
			return c.group.Close()
		}
		if errors.Is(err, sarama.ErrClosedConsumerGroup) {
			return nil
		}
		if err != nil {
			c.log.Warn("kafka consumer session ended", "error", err, "rejoin_in", rejoinDelay)
			select {
			case <-ctx.Done():
				return c.group.Close()
			case <-time.After(rejoinDelay):
			}
		}
	}
}

func (c *Consumer) Close() error {
	if err := c.group.Close(); err != nil && !errors.Is(err, sarama.ErrClosedConsumerGroup) {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	return nil
}

// claimHandler реализует sarama.ConsumerGroupHandler
type claimHandler struct {
	handler kafkaPorts.MessageHandler
	retries int
	backoff time.Duration
	log     *slog.Logger
}

func (h *claimHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.log.Debug("kafka session setup", "claims", session.Claims())
	return nil
}

func (h *claimHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *claimHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if message == nil {
				continue
			}
			if err := h.handle(ctx, message); err != nil {
				// без MarkMessage: сессия закрывается, сообщение будет прочитано повторно
				return err
			}
			session.MarkMessage(message, "")
		}
	}
}

// handle повторяет инфраструктурные ошибки с линейной задержкой; бизнес-ошибка считается обработкой
func (h *claimHandler) handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	key := string(message.Key)
	headers := make(map[string]string, len(message.Headers))
	for _, hdr := range message.Headers {
		if hdr != nil {
			headers[string(hdr.Key)] = string(hdr.Value)
		}
	}

	var err error
	for attempt := 0; attempt <= h.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * h.backoff):
			}
		}

		err = h.handler.HandleMessage(ctx, key, message.Value, headers)
		if err == nil {
			return nil
		}
		if domain.IsBusinessError(err) {
			h.log.Info("kafka message rejected",
				"error", err,
				"key", key,
				"partition", message.Partition,
				"offset", message.Offset,
			)
			return nil
		}
		h.log.Warn("failed to handle kafka message",
			"error", err,
			"key", key,
			"partition", message.Partition,
			"offset", message.Offset,
			"attempt", attempt+1,
		)
	}
	return fmt.Errorf("message %s/%d/%d not handled: %w", message.Topic, message.Partition, message.Offset, err)
}

package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"conference-payments/internal/logger"
	"conference-payments/internal/models"
)

// ReceiptConsumer consumes receipt-email tasks published by the reconciler.
// Handler failures are logged and the message is marked anyway: receipt mail
// is best effort and must never feed back into the financial path.
type ReceiptConsumer struct {
	consumer sarama.ConsumerGroup
	topics   []string
	log      *logger.Logger
}

func NewReceiptConsumer(brokers []string, groupID string, log *logger.Logger) (*ReceiptConsumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	consumer, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &ReceiptConsumer{
		consumer: consumer,
		topics:   []string{TopicReceiptRequests},
		log:      log,
	}, nil
}

func (c *ReceiptConsumer) ConsumeReceiptTasks(ctx context.Context, handler func(context.Context, *models.PaymentEvent) error) error {
	consumerHandler := &ReceiptTaskHandler{Handler: handler, Log: c.log}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := c.consumer.Consume(ctx, c.topics, consumerHandler); err != nil {
				c.log.Error("KAFKA", fmt.Sprintf("Error consuming messages: %v", err))
				return err
			}
		}
	}
}

func (c *ReceiptConsumer) Close() error {
	return c.consumer.Close()
}

// ReceiptTaskHandler is exported for testing purposes.
type ReceiptTaskHandler struct {
	Handler func(context.Context, *models.PaymentEvent) error
	Log     *logger.Logger
}

func (h *ReceiptTaskHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *ReceiptTaskHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *ReceiptTaskHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		var event models.PaymentEvent
		if err := json.Unmarshal(message.Value, &event); err != nil {
			h.Log.Error("KAFKA", fmt.Sprintf("Failed to unmarshal receipt task: %v", err))
			session.MarkMessage(message, "")
			continue
		}

		if err := h.Handler(session.Context(), &event); err != nil {
			h.Log.Error("KAFKA", fmt.Sprintf("Receipt task failed for order %s: %v", event.OrderID, err))
		}

		session.MarkMessage(message, "")
	}

	return nil
}

package kafka_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conference-payments/internal/kafka"
	"conference-payments/internal/logger"
	"conference-payments/internal/models"
)

// TestReceiptPipelineIntegration publishes a receipt task and waits for the
// consumer group to deliver it. Requires a running Kafka broker.
func TestReceiptPipelineIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers == "" {
		kafkaBrokers = "localhost:29092"
	}

	log := logger.NewLogger()
	defer log.Close()

	producer, err := kafka.NewProducer([]string{kafkaBrokers}, false, log)
	if err != nil {
		t.Skip("Skipping test because Kafka is not available:", err)
		return
	}
	defer producer.Close()

	groupID := "receipt-test-group-" + time.Now().Format("20060102150405")
	consumer, err := kafka.NewReceiptConsumer([]string{kafkaBrokers}, groupID, log)
	require.NoError(t, err)
	defer consumer.Close()

	uniqueID := fmt.Sprintf("%d", time.Now().UnixNano())
	expectedOrderID := "test-order-" + uniqueID

	received := make(chan *models.PaymentEvent, 1)
	handler := func(ctx context.Context, event *models.PaymentEvent) error {
		if event.OrderID == expectedOrderID {
			received <- event
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := consumer.ConsumeReceiptTasks(ctx, handler); err != nil && err != context.Canceled {
			t.Logf("Consumer stopped: %v", err)
		}
	}()

	// Give the consumer group time to join before producing; OffsetNewest
	// would miss a message published before the subscription is live.
	time.Sleep(5 * time.Second)

	event := &models.PaymentEvent{
		Type:      models.EventReceiptRequested,
		OrderID:   expectedOrderID,
		PaymentID: "test-payment-" + uniqueID,
		Timestamp: time.Now(),
	}
	require.NoError(t, producer.PublishPaymentEvent(event))

	select {
	case got := <-received:
		assert.Equal(t, expectedOrderID, got.OrderID)
		assert.Equal(t, models.EventReceiptRequested, got.Type)
	case <-time.After(20 * time.Second):
		t.Fatalf("Timeout waiting for receipt task %s", expectedOrderID)
	}
}

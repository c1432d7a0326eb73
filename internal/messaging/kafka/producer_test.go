package kafka

import (
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func TestProducer_PublishEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	mockProducer.ExpectSendMessageAndSucceed()

	event := NewNotificationEvent(
		EventTypeOrderCreated,
		"order-123",
		"customer-1",
		map[string]interface{}{
			"amount_minor": 2500,
		},
	)

	if err := producer.PublishEvent(TopicOrderEvents, "order-123", event); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	event := NewNotificationEvent(EventTypeOrderCreated, "order-123", "customer-1", nil)

	if err := producer.PublishEvent(TopicOrderEvents, "order-123", event); err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewNotificationEvent(t *testing.T) {
	metadata := map[string]interface{}{
		"amount_minor": 500,
	}

	event := NewNotificationEvent(EventTypePaymentSucceeded, "order-123", "customer-1", metadata)

	if event.EventType != EventTypePaymentSucceeded {
		t.Errorf("expected event type %s, got %s", EventTypePaymentSucceeded, event.EventType)
	}
	if event.OrderID != "order-123" {
		t.Errorf("expected order id order-123, got %s", event.OrderID)
	}
	if event.CustomerID != "customer-1" {
		t.Errorf("expected customer id customer-1, got %s", event.CustomerID)
	}
	if event.Metadata["amount_minor"] != 500 {
		t.Error("metadata not set correctly")
	}
	if event.Timestamp.IsZero() {
		t.Error("timestamp should not be zero")
	}
	if time.Since(event.Timestamp) > time.Second {
		t.Error("timestamp should be close to current time")
	}
}

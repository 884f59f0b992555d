package kafka_test

import (
	"encoding/json"
	"errors"
	"testing"

	"ms-fulfillment/internal/config"
	"ms-fulfillment/internal/fulfillment/kafka"
	"ms-fulfillment/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingProducer struct {
	topic string
	key   string
	value []byte
	err   error
}

func (p *capturingProducer) Publish(topic, key string, value []byte) error {
	p.topic = topic
	p.key = key
	p.value = value
	return p.err
}

func testTopics() config.TopicConfig {
	return config.TopicConfig{
		OrderCaptured:   "storehouse.orders.captured",
		OrderDispatched: "storehouse.orders.dispatched",
		OrderCanceled:   "storehouse.orders.canceled",
	}
}

func TestPublishOrderCaptured(t *testing.T) {
	producer := &capturingProducer{}
	pub := kafka.NewPublisher(producer, testTopics())

	order := models.Order{OrderID: "order-1", StoreID: "store-1", PaymentIntentID: "pi_1"}
	require.NoError(t, pub.PublishOrderCaptured(order))

	assert.Equal(t, "storehouse.orders.captured", producer.topic)
	assert.Equal(t, "order-1", producer.key, "events partition by order ID")

	var event kafka.OrderEvent
	require.NoError(t, json.Unmarshal(producer.value, &event))
	assert.Equal(t, "order.captured", event.Type)
	assert.Equal(t, "order-1", event.OrderID)
	assert.Equal(t, "store-1", event.StoreID)
	assert.Equal(t, "pi_1", event.PaymentIntentID)
	assert.NotEmpty(t, event.EventID)
	assert.False(t, event.OccurredAt.IsZero())
}

func TestPublishRoutesPerTransition(t *testing.T) {
	producer := &capturingProducer{}
	pub := kafka.NewPublisher(producer, testTopics())
	order := models.Order{OrderID: "order-1", StoreID: "store-1"}

	require.NoError(t, pub.PublishOrderDispatched(order))
	assert.Equal(t, "storehouse.orders.dispatched", producer.topic)

	require.NoError(t, pub.PublishOrderCanceled(order))
	assert.Equal(t, "storehouse.orders.canceled", producer.topic)
}

func TestPublishPropagatesTransportErrors(t *testing.T) {
	producer := &capturingProducer{err: errors.New("broker unreachable")}
	pub := kafka.NewPublisher(producer, testTopics())

	err := pub.PublishOrderCaptured(models.Order{OrderID: "order-1"})
	assert.Error(t, err)
}

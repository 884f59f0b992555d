package kafka

import (
	"encoding/json"
	"time"

	"ms-fulfillment/internal/config"
	"ms-fulfillment/internal/models"
	"ms-fulfillment/internal/utils"
)

// MessagePublisher is the transport the event publisher writes through.
type MessagePublisher interface {
	Publish(topic, key string, value []byte) error
}

// OrderEvent is the payload streamed for every lifecycle transition.
type OrderEvent struct {
	EventID         string    `json:"event_id"`
	Type            string    `json:"type"`
	OrderID         string    `json:"order_id"`
	StoreID         string    `json:"store_id"`
	PaymentIntentID string    `json:"payment_intent_id,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Publisher streams order lifecycle events. Publish failures are the
// caller's to log; they never gate a transition.
type Publisher struct {
	Producer MessagePublisher
	Topics   config.TopicConfig
}

func NewPublisher(producer MessagePublisher, topics config.TopicConfig) *Publisher {
	return &Publisher{Producer: producer, Topics: topics}
}

func (p *Publisher) PublishOrderCaptured(order models.Order) error {
	return p.publish(p.Topics.OrderCaptured, "order.captured", order)
}

func (p *Publisher) PublishOrderDispatched(order models.Order) error {
	return p.publish(p.Topics.OrderDispatched, "order.dispatched", order)
}

func (p *Publisher) PublishOrderCanceled(order models.Order) error {
	return p.publish(p.Topics.OrderCanceled, "order.canceled", order)
}

func (p *Publisher) publish(topic, eventType string, order models.Order) error {
	event := OrderEvent{
		EventID:         utils.GenerateEventID(),
		Type:            eventType,
		OrderID:         order.OrderID,
		StoreID:         order.StoreID,
		PaymentIntentID: order.PaymentIntentID,
		OccurredAt:      time.Now().UTC(),
	}

	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.Producer.Publish(topic, order.OrderID, value)
}

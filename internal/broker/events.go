package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderEvent publishes an order lifecycle event keyed by order so all
// events of one order land on the same partition.
func (ep *EventPublisher) PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	err := ep.producer.PublishEvent(ctx, key, event)

	result := "ok"
	if err != nil {
		result = "error"
	}
	util.EventsPublishedTotal.WithLabelValues(event.EventType, result).Inc()
	return err
}

// OrderEventFunc handles one decoded order event.
type OrderEventFunc func(ctx context.Context, event *models.OrderEvent) error

// EventHandler routes incoming events by type
type EventHandler struct {
	handlers map[string]OrderEventFunc
	logger   *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{
		handlers: make(map[string]OrderEventFunc),
		logger:   util.GetLogger().Named("events"),
	}
}

// On registers handler for eventType, replacing any earlier registration.
func (eh *EventHandler) On(eventType string, handler OrderEventFunc) {
	eh.handlers[eventType] = handler
}

// HandleMessage routes messages to appropriate handlers. Unknown event types
// are acknowledged and dropped.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	handler, ok := eh.handlers[baseEvent.EventType]
	if !ok {
		eh.logger.Debug("Unhandled event type", zap.String("event_type", baseEvent.EventType))
		return nil
	}

	var event models.OrderEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal %s event: %w", baseEvent.EventType, err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", event.EventType),
		zap.String("event_id", event.EventID))
	return handler(ctx, &event)
}

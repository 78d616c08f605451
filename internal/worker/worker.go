package worker

import (
	"context"
	"fmt"
	"strings"

	"storefront/internal/broker"
	"storefront/internal/mailer"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// EventLog remembers which events have already been handled.
type EventLog interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

type Mailer interface {
	Send(ctx context.Context, msg mailer.Message) error
}

type Consumer interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// NotificationWorker turns order events into customer emails.
type NotificationWorker struct {
	consumer Consumer
	events   EventLog
	mailer   Mailer
	handler  *broker.EventHandler
	logger   *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer Consumer, events EventLog, mail Mailer) *NotificationWorker {
	w := &NotificationWorker{
		consumer: consumer,
		events:   events,
		mailer:   mail,
		handler:  broker.NewEventHandler(),
		logger:   util.GetLogger().Named("notifications"),
	}

	w.handler.On(models.EventTypeOrderCreated, w.HandleEvent)
	w.handler.On(models.EventTypeOrderCancelled, w.HandleEvent)
	w.handler.On(models.EventTypeOrderRefunded, w.HandleEvent)
	w.handler.On(models.EventTypeOrderStatusChanged, w.HandleEvent)

	return w
}

// Start consumes events until ctx is done
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.handler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

// HandleEvent emails the customer about event at most once per event id.
// A failed send is logged and the event still counts as handled.
func (w *NotificationWorker) HandleEvent(ctx context.Context, event *models.OrderEvent) error {
	ctx, span := util.StartSpan(ctx, "NotificationWorker.HandleEvent",
		attribute.String("event.type", event.EventType),
		attribute.Int64("order.id", event.OrderID),
	)
	defer span.End()

	processed, err := w.events.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return util.RecordError(span, fmt.Errorf("failed to check event processed: %w", err))
	}
	if processed {
		w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	if msg, ok := composeEmail(event); ok {
		result := "sent"
		if err := w.mailer.Send(ctx, msg); err != nil {
			result = "error"
			w.logger.Warn("Failed to send notification",
				zap.String("event_type", event.EventType),
				zap.String("order_number", event.OrderNumber),
				zap.Error(err))
		}
		util.NotificationsSentTotal.WithLabelValues(event.EventType, result).Inc()
	}

	if err := w.events.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		return util.RecordError(span, fmt.Errorf("failed to mark event processed: %w", err))
	}
	return nil
}

// composeEmail reports false when the event needs no customer email.
func composeEmail(event *models.OrderEvent) (mailer.Message, bool) {
	if event.CustomerEmail == "" {
		return mailer.Message{}, false
	}

	msg := mailer.Message{To: event.CustomerEmail}
	greeting := "Hi"
	if event.CustomerName != "" {
		greeting = "Hi " + event.CustomerName
	}

	switch event.EventType {
	case models.EventTypeOrderCreated:
		msg.Subject = "Order Confirmed: " + event.OrderNumber
		var b strings.Builder
		fmt.Fprintf(&b, "%s,\n\nThanks for your order %s.\n\n", greeting, event.OrderNumber)
		for _, item := range event.Items {
			fmt.Fprintf(&b, "- %d x %s @ %s\n", item.Quantity, item.ProductName, item.UnitPrice.StringFixed(2))
		}
		fmt.Fprintf(&b, "\nTotal: %s %s\n", event.Total.StringFixed(2), event.Currency)
		msg.Body = b.String()

	case models.EventTypeOrderCancelled:
		msg.Subject = "Order Cancelled: " + event.OrderNumber
		msg.Body = fmt.Sprintf("%s,\n\nYour order %s has been cancelled.\n", greeting, event.OrderNumber)

	case models.EventTypeOrderRefunded:
		amount := event.Total
		if event.RefundAmount != nil {
			amount = *event.RefundAmount
		}
		msg.Subject = "Refund Issued: " + event.OrderNumber
		msg.Body = fmt.Sprintf("%s,\n\nWe refunded %s %s for order %s.\n",
			greeting, amount.StringFixed(2), event.Currency, event.OrderNumber)

	case models.EventTypeOrderStatusChanged:
		switch event.Status {
		case models.OrderStatusShipped:
			msg.Subject = "Order Shipped: " + event.OrderNumber
			msg.Body = fmt.Sprintf("%s,\n\nYour order %s is on its way.\n", greeting, event.OrderNumber)
			if event.TrackingNumber != "" {
				msg.Body += "Tracking number: " + event.TrackingNumber + "\n"
			}
		case models.OrderStatusDelivered:
			msg.Subject = "Order Delivered: " + event.OrderNumber
			msg.Body = fmt.Sprintf("%s,\n\nYour order %s has been delivered.\n", greeting, event.OrderNumber)
		default:
			return mailer.Message{}, false
		}

	default:
		return mailer.Message{}, false
	}

	return msg, true
}

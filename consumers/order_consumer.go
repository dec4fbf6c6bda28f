package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"storefront-orders/config"
	"storefront-orders/models"
	"storefront-orders/notifier"
	"storefront-orders/utils"
)

const handleTimeout = 30 * time.Second

type OrderLookup interface {
	GetByID(ctx context.Context, orderID int64) (*models.Order, error)
}

// OrderConsumer reacts to order events: it mails a confirmation when an
// order is created and records status changes.
type OrderConsumer struct {
	orders OrderLookup
	mailer notifier.Mailer
}

// NewOrderConsumer returns a consumer. mailer may be nil, in which case
// confirmations are skipped.
func NewOrderConsumer(orders OrderLookup, mailer notifier.Mailer) *OrderConsumer {
	return &OrderConsumer{orders: orders, mailer: mailer}
}

// Start consumes the order queue and the dead letter queue until ctx is
// done or the channel closes.
func (oc *OrderConsumer) Start(ctx context.Context, ch *amqp.Channel, cfg *config.Config) error {
	if err := ch.Qos(10, 0, false); err != nil {
		return fmt.Errorf("consumers: set prefetch: %w", err)
	}

	msgs, err := ch.Consume(
		cfg.OrderQueue,
		"storefront-orders", // consumer tag
		false,               // auto-ack
		false,               // exclusive
		false,               // no-local
		false,               // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consumers: consume %s: %w", cfg.OrderQueue, err)
	}
	go drain(ctx, msgs, oc.processOrderMessage)

	dlqMsgs, err := ch.Consume(
		cfg.DeadLetterQueue,
		"storefront-orders-dlq", // consumer tag
		false,                   // auto-ack
		false,                   // exclusive
		false,                   // no-local
		false,                   // no-wait
		nil,
	)
	if err != nil {
		slog.Warn("dead letter consumer not started", "queue", cfg.DeadLetterQueue, "error", err)
		return nil
	}
	go drain(ctx, dlqMsgs, processDeadLetterMessage)
	return nil
}

func drain(ctx context.Context, msgs <-chan amqp.Delivery, handle func(context.Context, amqp.Delivery)) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			handle(ctx, msg)
		}
	}
}

// processOrderMessage acks handled events. Malformed events are rejected
// without requeue so they land on the dead letter queue; a failed handler
// is retried once.
func (oc *OrderConsumer) processOrderMessage(ctx context.Context, msg amqp.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while processing order event", "panic", r, "message_id", msg.MessageId)
			_ = msg.Nack(false, false)
		}
	}()

	var event models.OrderEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil || event.OrderID <= 0 {
		slog.Warn("rejecting malformed order event", "message_id", msg.MessageId, "body", string(msg.Body))
		_ = msg.Nack(false, false)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	var err error
	switch event.Type {
	case models.EventCreated:
		err = oc.handleOrderCreated(ctx, event)
	case models.EventStatusUpdated:
		handleStatusUpdated(event)
	default:
		slog.Warn("ignoring unknown order event", "type", event.Type, "order_id", event.OrderID)
	}

	if err != nil {
		requeue := !msg.Redelivered && !errors.Is(err, utils.ErrNotFound)
		slog.Error("order event handling failed",
			"type", event.Type,
			"order_id", event.OrderID,
			"requeue", requeue,
			"error", err,
		)
		_ = msg.Nack(false, requeue)
		return
	}
	_ = msg.Ack(false)
}

func (oc *OrderConsumer) handleOrderCreated(ctx context.Context, event models.OrderEvent) error {
	if oc.mailer == nil {
		slog.Debug("mailer disabled, skipping confirmation", "order_code", event.OrderCode)
		return nil
	}
	order, err := oc.orders.GetByID(ctx, event.OrderID)
	if err != nil {
		return fmt.Errorf("load order %d: %w", event.OrderID, err)
	}
	if err := oc.mailer.SendOrderConfirmation(ctx, order); err != nil {
		return err
	}
	slog.Info("order confirmation sent", "order_code", order.Code, "customer_id", order.CustomerID)
	return nil
}

func handleStatusUpdated(event models.OrderEvent) {
	slog.Info("order status changed",
		"order_id", event.OrderID,
		"order_code", event.OrderCode,
		"status", event.Status,
	)
}

func processDeadLetterMessage(_ context.Context, msg amqp.Delivery) {
	slog.Warn("dead-lettered order event",
		"message_id", msg.MessageId,
		"reason", deathReason(msg.Headers),
		"body", string(msg.Body),
	)
	_ = msg.Ack(false)
}

// deathReason reads the broker's reason for the most recent dead-lettering.
func deathReason(headers amqp.Table) string {
	deaths, ok := headers["x-death"].([]interface{})
	if !ok || len(deaths) == 0 {
		return ""
	}
	if death, ok := deaths[0].(amqp.Table); ok {
		if reason, ok := death["reason"].(string); ok {
			return reason
		}
	}
	return ""
}

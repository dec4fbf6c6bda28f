package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"storefront-orders/config"
	"storefront-orders/models"
)

type RabbitMQ struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
	Cfg     *config.Config

	// amqp channels must not be used for concurrent publishes.
	mu sync.Mutex
}

func NewRabbitMQ(cfg *config.Config) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}

	return &RabbitMQ{
		Conn:    conn,
		Channel: ch,
		Cfg:     cfg,
	}, nil
}

func deadLetterExchange(cfg *config.Config) string {
	return cfg.DeadLetterQueue + "_exchange"
}

// orderQueueArgs makes the order queue a priority queue whose rejected
// messages go to the dead letter exchange.
func orderQueueArgs(cfg *config.Config) amqp.Table {
	return amqp.Table{
		"x-max-priority":            int32(cfg.MaxPriority),
		"x-dead-letter-exchange":    deadLetterExchange(cfg),
		"x-dead-letter-routing-key": cfg.DeadLetterQueue,
	}
}

// SetupQueues declares the order exchange, the order queue and the dead
// letter exchange and queue. Declarations are idempotent.
func (r *RabbitMQ) SetupQueues() error {
	if err := r.Channel.ExchangeDeclare(
		deadLetterExchange(r.Cfg),
		"direct",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("rabbitmq: declare dead letter exchange: %w", err)
	}

	if _, err := r.Channel.QueueDeclare(
		r.Cfg.DeadLetterQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		amqp.Table{"x-queue-type": "classic"},
	); err != nil {
		return fmt.Errorf("rabbitmq: declare dead letter queue: %w", err)
	}

	if err := r.Channel.QueueBind(
		r.Cfg.DeadLetterQueue,
		r.Cfg.DeadLetterQueue,
		deadLetterExchange(r.Cfg),
		false,
		nil,
	); err != nil {
		return fmt.Errorf("rabbitmq: bind dead letter queue: %w", err)
	}

	if err := r.Channel.ExchangeDeclare(
		r.Cfg.OrderExchange,
		"fanout",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("rabbitmq: declare order exchange: %w", err)
	}

	if _, err := r.Channel.QueueDeclare(
		r.Cfg.OrderQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		orderQueueArgs(r.Cfg),
	); err != nil {
		return fmt.Errorf("rabbitmq: declare order queue: %w", err)
	}

	if err := r.Channel.QueueBind(
		r.Cfg.OrderQueue,
		"",
		r.Cfg.OrderExchange,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("rabbitmq: bind order queue: %w", err)
	}
	return nil
}

// newOrderPublishing encodes event as a persistent JSON message. The
// priority is capped at the queue's maximum.
func newOrderPublishing(event models.OrderEvent, priority uint8, maxPriority int) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("rabbitmq: encode %s event for order %d: %w", event.Type, event.OrderID, err)
	}
	if maxPriority > 0 && int(priority) > maxPriority {
		priority = uint8(maxPriority)
	}
	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		ContentType:  "application/json",
		MessageId:    uuid.NewString(),
		Type:         event.Type,
		Body:         body,
		Priority:     priority,
	}, nil
}

func (r *RabbitMQ) PublishOrderEvent(ctx context.Context, event models.OrderEvent, priority uint8) error {
	msg, err := newOrderPublishing(event, priority, r.Cfg.MaxPriority)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Channel.PublishWithContext(ctx,
		r.Cfg.OrderExchange,
		"",
		false, // mandatory
		false, // immediate
		msg,
	)
}

func (r *RabbitMQ) Close() {
	if r.Channel != nil {
		_ = r.Channel.Close()
	}
	if r.Conn != nil {
		_ = r.Conn.Close()
	}
}

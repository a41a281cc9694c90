package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const defaultExchange = "hr.notifications"

// AMQPNotifier publishes notifications to a RabbitMQ topic exchange. One
// message is published per recipient so downstream consumers can bind on
// their own routing keys.
type AMQPNotifier struct {
	url      string
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPNotifier connects to RabbitMQ and declares the exchange.
func NewAMQPNotifier(url, exchange string) (*AMQPNotifier, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("amqp url is required")
	}
	exchange = strings.TrimSpace(exchange)
	if exchange == "" {
		exchange = defaultExchange
	}
	n := &AMQPNotifier{url: url, exchange: exchange}
	if err := n.connect(); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *AMQPNotifier) connect() error {
	conn, err := amqp.Dial(n.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(n.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}
	n.conn = conn
	n.ch = ch
	return nil
}

// Enqueue publishes the notification, reconnecting once on a stale channel.
// Publishing is serialized; amqp channels are not safe for concurrent use.
func (n *AMQPNotifier) Enqueue(ctx context.Context, notification Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil || n.conn.IsClosed() {
		if err := n.connect(); err != nil {
			return err
		}
	}
	for _, recipient := range notification.Recipients {
		body, err := json.Marshal(struct {
			Recipient string    `json:"recipient"`
			Subject   string    `json:"subject"`
			Body      string    `json:"body"`
			SentAt    time.Time `json:"sentAt"`
		}{
			Recipient: recipient,
			Subject:   notification.Subject,
			Body:      notification.Body,
			SentAt:    time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("marshal notification: %w", err)
		}
		err = n.ch.PublishWithContext(ctx, n.exchange, routingKey(recipient), false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
		if err != nil {
			return fmt.Errorf("publish notification for %q: %w", recipient, err)
		}
	}
	return nil
}

// Close releases the channel and connection.
func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ch != nil {
		n.ch.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}

func routingKey(recipient string) string {
	recipient = strings.ToLower(strings.TrimSpace(recipient))
	recipient = strings.ReplaceAll(recipient, " ", "_")
	recipient = strings.ReplaceAll(recipient, ".", "_")
	if recipient == "" {
		recipient = "unknown"
	}
	return "notify." + recipient
}

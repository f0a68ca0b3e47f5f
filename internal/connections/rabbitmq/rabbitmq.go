package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"kitchen-display/internal/config"
)

// EventsExchange carries kitchen notifications, routed per screen with
// keys of the form kitchen.screen.<id>.
const EventsExchange = "kitchen_events"

// ScreenKey is the routing key a screen's events are published under.
func ScreenKey(screenID int) string { return fmt.Sprintf("kitchen.screen.%d", screenID) }

type Client struct {
	conn *amqp.Connection
	ch   *amqp.Channel

	mu sync.Mutex // serializes publishes on the shared channel
}

func Dial(cfg config.MQ) (*Client, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d/", cfg.User, cfg.Pass, cfg.Host, cfg.Port)
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	c := &Client{conn: conn, ch: ch}
	if err := c.declareTopology(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) declareTopology() error {
	return c.ch.ExchangeDeclare(EventsExchange, "topic", true, false, false, false, nil)
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (c *Client) Ping() error {
	if c == nil || c.conn == nil || c.conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	return nil
}

// PublishEvent publishes one screen-addressed event body. Transient
// delivery: the durable order row is the fallback of last resort, the bus
// only exists to wake screens up quickly.
func (c *Client) PublishEvent(ctx context.Context, screenID int, messageID, orderRef string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ch.PublishWithContext(
		ctx,
		EventsExchange,
		ScreenKey(screenID),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode:  amqp.Transient,
			ContentType:   "application/json",
			MessageId:     messageID,
			CorrelationId: orderRef,
			Timestamp:     time.Now().UTC(),
			Headers:       amqp.Table{"x-source": "dispatcher"},
			Body:          body,
		},
	)
}

// ConsumeScreen opens a session-scoped consumer for one screen. The queue
// is exclusive and auto-deleted so a closed display leaves nothing behind;
// missed messages are recovered by the polling fallback, not the broker.
func (c *Client) ConsumeScreen(screenID int, consumerTag string) (<-chan amqp.Delivery, func(), error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, nil, err
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, nil, err
	}
	if err := ch.QueueBind(q.Name, ScreenKey(screenID), EventsExchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, nil, err
	}
	msgs, err := ch.Consume(q.Name, consumerTag, true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, nil, err
	}
	cancel := func() {
		_ = ch.Cancel(consumerTag, false)
		_ = ch.Close()
	}
	return msgs, cancel, nil
}

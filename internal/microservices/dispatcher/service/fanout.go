package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"kitchen-display/internal/broadcast"
	"kitchen-display/internal/common/logger"
	"kitchen-display/internal/connections/rabbitmq"
	"kitchen-display/internal/domain"
)

// Channel is one delivery path for screen events. Channels are redundant
// and independent: receivers deduplicate, so delivering on several is the
// reliability strategy, not a bug.
type Channel interface {
	Name() string
	Publish(ctx context.Context, ev domain.Event) error
}

var errChannelUnavailable = errors.New("channel unavailable")

type AMQPChannel struct {
	client *rabbitmq.Client
}

func NewAMQPChannel(client *rabbitmq.Client) *AMQPChannel { return &AMQPChannel{client: client} }

func (c *AMQPChannel) Name() string { return "amqp" }

func (c *AMQPChannel) Publish(ctx context.Context, ev domain.Event) error {
	if c.client == nil {
		return errChannelUnavailable
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.client.PublishEvent(ctx, ev.ScreenID, ev.MessageID, ev.OrderRef, body)
}

type BusChannel struct {
	bus *broadcast.Bus
}

func NewBusChannel(bus *broadcast.Bus) *BusChannel { return &BusChannel{bus: bus} }

func (c *BusChannel) Name() string { return "broadcast" }

func (c *BusChannel) Publish(_ context.Context, ev domain.Event) error {
	if c.bus == nil {
		return errChannelUnavailable
	}
	c.bus.Publish(ev)
	return nil
}

// Fanout emits the same logical event to every target screen over every
// channel. Fire and forget: a failing channel is logged and skipped, and
// Dispatch itself never fails. Exactly-once is the receiver's problem.
type Fanout struct {
	channels []Channel
	log      *logger.Logger
}

func NewFanout(log *logger.Logger, channels ...Channel) *Fanout {
	return &Fanout{channels: channels, log: log}
}

func (f *Fanout) Dispatch(ctx context.Context, ev domain.Event, screens []domain.ScreenRef) {
	for _, screen := range screens {
		perScreen := ev
		perScreen.ScreenID = screen.ID
		perScreen.ScreenName = screen.Name
		perScreen.MessageID = uuid.NewString()
		if perScreen.Timestamp.IsZero() {
			perScreen.Timestamp = time.Now().UTC()
		}

		for _, ch := range f.channels {
			if err := ch.Publish(ctx, perScreen); err != nil {
				f.log.Warn("event_publish_failed", err, map[string]any{
					"channel":   ch.Name(),
					"type":      string(perScreen.Type),
					"screen_id": screen.ID,
					"order_ref": perScreen.OrderRef,
				})
				continue
			}
			f.log.Debug("event_published", map[string]any{
				"channel":   ch.Name(),
				"type":      string(perScreen.Type),
				"screen_id": screen.ID,
				"order_ref": perScreen.OrderRef,
			})
		}
	}
}

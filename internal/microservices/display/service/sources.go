package service

import (
	"encoding/json"
	"errors"
	"fmt"

	"kitchen-display/internal/broadcast"
	"kitchen-display/internal/common/logger"
	"kitchen-display/internal/connections/rabbitmq"
	"kitchen-display/internal/domain"
)

// EventSource is one realtime delivery channel feeding a screen session.
// A source that cannot start is logged once and skipped: the session
// degrades to the remaining channels plus polling.
type EventSource interface {
	Name() string
	Start(out chan<- domain.Event) (stop func(), err error)
}

var ErrChannelUnavailable = errors.New("delivery channel unavailable")

// AMQPSource consumes the screen's routing key from the events exchange.
type AMQPSource struct {
	client   *rabbitmq.Client
	screenID int
	log      *logger.Logger
}

func NewAMQPSource(client *rabbitmq.Client, screenID int, log *logger.Logger) *AMQPSource {
	return &AMQPSource{client: client, screenID: screenID, log: log}
}

func (s *AMQPSource) Name() string { return "amqp" }

func (s *AMQPSource) Start(out chan<- domain.Event) (func(), error) {
	if s.client == nil {
		return nil, ErrChannelUnavailable
	}
	tag := fmt.Sprintf("display-screen-%d", s.screenID)
	msgs, cancel, err := s.client.ConsumeScreen(s.screenID, tag)
	if err != nil {
		return nil, err
	}

	quit := make(chan struct{})
	go func() {
		for d := range msgs {
			var ev domain.Event
			if err := json.Unmarshal(d.Body, &ev); err != nil {
				s.log.Warn("event_decode_failed", err, map[string]any{"channel": s.Name()})
				continue
			}
			select {
			case out <- ev:
			case <-quit:
				return
			}
		}
	}()

	stop := func() {
		cancel()
		close(quit)
	}
	return stop, nil
}

// BusSource subscribes the session to the in-process broadcast bus.
type BusSource struct {
	bus      *broadcast.Bus
	screenID int
}

func NewBusSource(bus *broadcast.Bus, screenID int) *BusSource {
	return &BusSource{bus: bus, screenID: screenID}
}

func (s *BusSource) Name() string { return "broadcast" }

func (s *BusSource) Start(out chan<- domain.Event) (func(), error) {
	if s.bus == nil {
		return nil, ErrChannelUnavailable
	}
	id := fmt.Sprintf("screen-%d", s.screenID)
	if err := s.bus.Subscribe(id, out); err != nil {
		return nil, err
	}
	return func() { _ = s.bus.Unsubscribe(id) }, nil
}

package domain

import (
	"fmt"
	"time"
)

type EventType string

const (
	EventNewOrder     EventType = "new_order"
	EventStatusChange EventType = "order_status_change"
	EventLineUpdated  EventType = "order_line_updated"
)

// Event is the logical notification payload, identical on every delivery
// channel. Receivers must treat the persisted snapshot as ground truth;
// an event only says "something changed for you, go look".
type Event struct {
	Type        EventType   `json:"type"`
	MessageID   string      `json:"message_id"`
	ScreenID    int         `json:"screen_id"`
	ScreenName  string      `json:"screen_name,omitempty"`
	ConfigID    int         `json:"config_id"`
	OrderRef    string      `json:"order_ref"`
	OrderStatus OrderStatus `json:"order_status,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
	LinesCount  int         `json:"lines_count,omitempty"`
}

// DedupKey identifies a logical event regardless of which channel carried
// it: the same notification arriving over AMQP and over the broadcast bus
// maps to the same key.
func (e Event) DedupKey() string {
	return fmt.Sprintf("%s|%s|%d", e.Type, e.OrderRef, e.ScreenID)
}

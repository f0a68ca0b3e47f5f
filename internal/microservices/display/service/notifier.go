package service

import (
	"kitchen-display/internal/common/logger"
	"kitchen-display/internal/domain"
)

// SoundSettings is the screen's alert sound configuration at the moment
// an alert fires. Actual playback belongs to the UI layer.
type SoundSettings struct {
	Enabled   bool    `json:"enabled"`
	File      string  `json:"file"`
	Volume    float64 `json:"volume"`
	CustomURL string  `json:"custom_url,omitempty"`
}

// Notifier receives the alerts a screen session raises. The default
// implementation logs them; a UI layer plugs in its own to play sound and
// flash counters.
type Notifier interface {
	NewOrder(ev domain.Event, sound SoundSettings)
	StatusChange(ev domain.Event, sound SoundSettings)
	TimerExpired(orderID int, sound SoundSettings)
}

type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier { return &LogNotifier{log: log} }

func (n *LogNotifier) NewOrder(ev domain.Event, sound SoundSettings) {
	n.log.Info("alert_new_order", map[string]any{
		"order_ref": ev.OrderRef, "screen_id": ev.ScreenID,
		"sound": sound.Enabled, "sound_file": sound.File,
	})
}

func (n *LogNotifier) StatusChange(ev domain.Event, sound SoundSettings) {
	n.log.Info("alert_status_change", map[string]any{
		"order_ref": ev.OrderRef, "screen_id": ev.ScreenID,
		"status": string(ev.OrderStatus), "sound": sound.Enabled,
	})
}

func (n *LogNotifier) TimerExpired(orderID int, sound SoundSettings) {
	n.log.Info("alert_timer_expired", map[string]any{
		"order_id": orderID, "sound": sound.Enabled,
	})
}

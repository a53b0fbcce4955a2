package hub

import (
	"time"

	"cuecast/internal/models"
)

type EventKind string

const (
	EventDeviceConnected    EventKind = "deviceConnected"
	EventDeviceDisconnected EventKind = "deviceDisconnected"
	EventStatus             EventKind = "status"
	EventTransferProgress   EventKind = "transferProgress"
)

// Event is one hub-side occurrence, published to subscribers (SSE
// dashboards, tests). Exactly one of Device/Transfer is set.
type Event struct {
	Kind     EventKind        `json:"kind"`
	Device   *models.Device   `json:"device,omitempty"`
	Transfer *models.Transfer `json:"transfer,omitempty"`
	Time     time.Time        `json:"time"`
}

// Subscribe returns a channel of hub events. Delivery is best-effort:
// a subscriber that falls behind misses events rather than stalling the
// hub.
func (h *Hub) Subscribe() chan Event {
	ch := make(chan Event, 16)
	h.subMu.Lock()
	h.subscribers[ch] = struct{}{}
	h.subMu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan Event) {
	h.subMu.Lock()
	_, exists := h.subscribers[ch]
	delete(h.subscribers, ch)
	h.subMu.Unlock()
	if exists {
		close(ch)
	}
}

func (h *Hub) publish(ev Event) {
	ev.Time = time.Now().UTC()
	h.subMu.Lock()
	defer h.subMu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

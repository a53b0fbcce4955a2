package hub

import (
	"context"
	"time"

	"cuecast/internal/protocol"
)

// runHeartbeat is the single global liveness sweep: one ticker for all
// sessions rather than a timer per device.
func (h *Hub) runHeartbeat(ctx context.Context) {
	defer close(h.done)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sweep()
		}
	}
}

// sweep evicts every session whose previous probe went unanswered,
// then arms the next round. A missed heartbeat is a disconnect, not a
// retry: the session abstraction has no "slow but alive" state.
func (h *Hub) sweep() {
	ping := protocol.NewPing()
	for _, sess := range h.registry.Sessions() {
		if !sess.Alive() {
			h.dropSession(sess, "heartbeat timeout")
			continue
		}
		sess.clearAlive()
		sess.Send(ping)
	}
}

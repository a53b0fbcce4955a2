// Package hub is the relay control plane: it owns every live device
// session, routes addressed and broadcast commands from controllers to
// players, relays playback status the other way, and evicts silently
// dead connections via a single heartbeat sweep.
package hub

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cuecast/internal/models"
	"cuecast/internal/protocol"
	"cuecast/internal/store"
	"cuecast/internal/transfer"
)

const (
	// DefaultHeartbeatInterval is the probe period; one unanswered
	// probe evicts the session.
	DefaultHeartbeatInterval = 30 * time.Second

	// registerWait bounds how long a fresh connection may idle before
	// sending its register message.
	registerWait = 10 * time.Second
)

type Hub struct {
	registry  *Registry
	store     *store.Store
	transfers *transfer.Coordinator

	interval  time.Duration
	version   string
	publicURL string

	subMu       sync.Mutex
	subscribers map[chan Event]struct{}

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
	started   time.Time
}

type Option func(*Hub)

func WithStore(s *store.Store) Option {
	return func(h *Hub) { h.store = s }
}

func WithTransfers(c *transfer.Coordinator) Option {
	return func(h *Hub) { h.transfers = c }
}

func WithHeartbeatInterval(d time.Duration) Option {
	return func(h *Hub) { h.interval = d }
}

func WithVersion(v string) Option {
	return func(h *Hub) { h.version = v }
}

// WithPublicURL sets the base URL players use to reach the transfer
// endpoint.
func WithPublicURL(u string) Option {
	return func(h *Hub) { h.publicURL = u }
}

func New(opts ...Option) *Hub {
	h := &Hub{
		registry:    NewRegistry(),
		interval:    DefaultHeartbeatInterval,
		subscribers: make(map[chan Event]struct{}),
		started:     time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.transfers != nil {
		h.transfers.Notify(h.onTransferUpdate)
	}
	return h
}

func (h *Hub) Start(ctx context.Context) {
	h.startOnce.Do(func() {
		ctx, h.cancel = context.WithCancel(ctx)
		h.done = make(chan struct{})
		go h.runHeartbeat(ctx)
	})
}

func (h *Hub) Stop() {
	if h.cancel != nil && h.done != nil {
		h.cancel()
		<-h.done
	}
	for _, sess := range h.registry.Sessions() {
		sess.Close()
	}
}

func (h *Hub) Uptime() time.Duration {
	return time.Since(h.started)
}

// Devices returns a live snapshot, optionally filtered by role.
func (h *Hub) Devices(role models.DeviceRole) []models.Device {
	recs := h.registry.List(role)
	out := make([]models.Device, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].device())
	}
	return out
}

func (h *Hub) DeviceCount() int {
	return h.registry.Count()
}

func (h *Hub) Connected(deviceID string) bool {
	_, ok := h.registry.Find(deviceID)
	return ok
}

// HandleConnection runs the receive loop for one connection. It blocks
// until the peer goes away, the registration deadline passes, or ctx is
// cancelled. The first frame must be a valid register message.
func (h *Hub) HandleConnection(ctx context.Context, conn Conn) {
	reg, err := h.awaitRegister(conn)
	if err != nil {
		log.Printf("handshake failed: %v", err)
		if data, encErr := protocol.Encode(protocol.NewError(err.Error())); encErr == nil {
			conn.WriteMessage(websocket.TextMessage, data)
		}
		conn.Close()
		return
	}

	sess := newSession(conn, reg.DeviceID, reg.DeviceName, reg.DeviceType)
	if prev := h.registry.Register(sess); prev != nil {
		log.Printf("device %s re-registered, closing previous session", sess.DeviceID)
		prev.Close()
	}
	if h.store != nil {
		if err := h.store.UpsertDevice(sess.DeviceID, sess.Name, sess.Role); err != nil {
			log.Printf("persisting device %s: %v", sess.DeviceID, err)
		}
	}

	sess.Send(protocol.Welcome{
		Type:          protocol.TypeWelcome,
		Message:       "connected to cuecast hub",
		ServerVersion: h.version,
	})
	ack := protocol.Registered{
		Type:     protocol.TypeRegistered,
		DeviceID: sess.DeviceID,
		Message:  fmt.Sprintf("registered as %s", sess.Role),
	}
	if sess.Role == models.RoleController {
		ack.Devices = h.deviceSummaries()
	}
	sess.Send(ack)

	if sess.Role == models.RolePlayer {
		h.broadcastToControllers(protocol.DeviceEvent{
			Type:       protocol.TypeDeviceConnected,
			DeviceID:   sess.DeviceID,
			DeviceName: sess.Name,
		}, sess.DeviceID)
	}
	if rec, ok := h.registry.Find(sess.DeviceID); ok {
		d := rec.device()
		h.publish(Event{Kind: EventDeviceConnected, Device: &d})
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			sess.Close()
		case <-stop:
		}
	}()

	h.readLoop(sess, conn)
	h.dropSession(sess, "connection closed")
}

func (h *Hub) awaitRegister(conn Conn) (*protocol.Register, error) {
	conn.SetReadDeadline(time.Now().Add(registerWait))
	defer conn.SetReadDeadline(time.Time{})

	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("reading register message: %w", err)
	}
	env, err := protocol.Decode(data)
	if err != nil {
		return nil, err
	}
	if env.Type != protocol.TypeRegister {
		return nil, fmt.Errorf("expected register, got %q", env.Type)
	}
	var reg protocol.Register
	if err := env.Payload(&reg); err != nil {
		return nil, fmt.Errorf("decoding register: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (h *Hub) readLoop(sess *Session, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := protocol.Decode(data)
		if err != nil {
			// Protocol errors drop the frame, not the connection.
			log.Printf("from %s: %v", sess.DeviceID, err)
			sess.Send(protocol.NewError(err.Error()))
			continue
		}
		h.handleMessage(sess, env)
	}
}

func (h *Hub) handleMessage(sess *Session, env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypePong:
		sess.markPong()

	case protocol.TypePing:
		sess.Send(protocol.NewPong())

	case protocol.TypeStatus:
		var st protocol.Status
		if err := env.Payload(&st); err != nil {
			sess.Send(protocol.NewError("malformed status"))
			return
		}
		if err := st.Validate(); err != nil {
			sess.Send(protocol.NewError(err.Error()))
			return
		}
		h.handleStatus(sess, &st)

	case protocol.TypeCommand:
		if sess.Role != models.RoleController {
			sess.Send(protocol.NewError("only controllers issue commands"))
			return
		}
		var cmd protocol.Command
		if err := env.Payload(&cmd); err != nil {
			sess.Send(protocol.NewError("malformed command"))
			return
		}
		if err := cmd.Validate(); err != nil {
			sess.Send(protocol.NewError(err.Error()))
			return
		}
		h.handleCommand(sess, &cmd)

	case protocol.TypeTransferProgress:
		var tp protocol.TransferProgress
		if err := env.Payload(&tp); err != nil {
			return
		}
		tp.DeviceID = sess.DeviceID
		h.broadcastToControllers(tp, "")
		t := transferFromProgress(&tp)
		h.publish(Event{Kind: EventTransferProgress, Transfer: &t})

	case protocol.TypeDeleteMediaResult:
		var res protocol.DeleteMediaResult
		if err := env.Payload(&res); err != nil {
			return
		}
		res.DeviceID = sess.DeviceID
		h.broadcastToControllers(res, "")

	default:
		sess.Send(protocol.NewError(fmt.Sprintf("unsupported message type %q", env.Type)))
	}
}

func (h *Hub) handleStatus(sess *Session, st *protocol.Status) {
	st.DeviceID = sess.DeviceID
	if st.DeviceName == "" {
		st.DeviceName = sess.Name
	}
	snap := models.PlaybackSnapshot{
		State:           st.State,
		CurrentMedia:    st.CurrentMedia,
		ImmersiveMode:   st.ImmersiveMode,
		PositionSeconds: st.PositionSeconds,
		LastUpdate:      time.Now().UTC(),
	}
	h.registry.UpdateStatus(sess.DeviceID, snap)
	if h.store != nil {
		if err := h.store.UpdateDevicePlayback(sess.DeviceID, snap); err != nil {
			log.Printf("persisting status for %s: %v", sess.DeviceID, err)
		}
	}
	h.broadcastToControllers(*st, "")
	if rec, ok := h.registry.Find(sess.DeviceID); ok {
		d := rec.device()
		h.publish(Event{Kind: EventStatus, Device: &d})
	}
}

// dropSession tears a session down and, when it was still the
// registered one, emits the disconnect notifications. Safe against the
// eviction/read-loop race: whoever unregisters first notifies.
func (h *Hub) dropSession(sess *Session, reason string) {
	sess.Close()
	if !h.registry.Unregister(sess.DeviceID, sess) {
		return
	}
	log.Printf("device %s (%s) disconnected: %s", sess.DeviceID, sess.Role, reason)
	if h.store != nil {
		if err := h.store.MarkDeviceSeen(sess.DeviceID); err != nil {
			log.Printf("marking %s seen: %v", sess.DeviceID, err)
		}
	}
	if sess.Role == models.RolePlayer {
		h.broadcastToControllers(protocol.DeviceEvent{
			Type:       protocol.TypeDeviceDisconnected,
			DeviceID:   sess.DeviceID,
			DeviceName: sess.Name,
		}, "")
	}
	h.publish(Event{Kind: EventDeviceDisconnected, Device: &models.Device{
		DeviceID: sess.DeviceID,
		Name:     sess.Name,
		Role:     sess.Role,
		LastSeen: time.Now().UTC(),
	}})
}

func (h *Hub) deviceSummaries() []protocol.DeviceSummary {
	recs := h.registry.List(models.RolePlayer)
	out := make([]protocol.DeviceSummary, 0, len(recs))
	for i := range recs {
		state := recs[i].Playback.State
		if state == "" {
			state = models.PlaybackIdle
		}
		out = append(out, protocol.DeviceSummary{
			DeviceID:     recs[i].DeviceID,
			DeviceName:   recs[i].Name,
			Role:         recs[i].Role,
			State:        state,
			CurrentMedia: recs[i].Playback.CurrentMedia,
		})
	}
	return out
}

func (h *Hub) onTransferUpdate(t models.Transfer) {
	h.broadcastToControllers(protocol.TransferProgress{
		Type:             protocol.TypeTransferProgress,
		DeviceID:         t.DeviceID,
		Filename:         t.Filename,
		Status:           transferWireStatus(t.Status),
		Progress:         t.Progress(),
		BytesTransferred: t.BytesTransferred,
		TotalBytes:       t.TotalBytes,
	}, "")
	tc := t
	h.publish(Event{Kind: EventTransferProgress, Transfer: &tc})
}

func transferWireStatus(s models.TransferStatus) string {
	switch s {
	case models.TransferPending:
		return "started"
	case models.TransferDownloading:
		return "downloading"
	case models.TransferCompleted:
		return "completed"
	default:
		return "failed"
	}
}

func transferFromProgress(tp *protocol.TransferProgress) models.Transfer {
	status := models.TransferDownloading
	switch tp.Status {
	case "completed":
		status = models.TransferCompleted
	case "failed":
		status = models.TransferFailed
	}
	return models.Transfer{
		DeviceID:         tp.DeviceID,
		Filename:         tp.Filename,
		TotalBytes:       tp.TotalBytes,
		BytesTransferred: tp.BytesTransferred,
		Status:           status,
	}
}

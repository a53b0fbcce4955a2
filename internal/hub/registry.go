package hub

import (
	"sync"
	"time"

	"cuecast/internal/models"
)

// DeviceRecord tracks one registered device and its live session.
// Records are dropped when the session goes away; long-term identity
// lives in the store.
type DeviceRecord struct {
	DeviceID  string
	Name      string
	Role      models.DeviceRole
	Session   *Session
	Playback  models.PlaybackSnapshot
	FirstSeen time.Time
}

func (r *DeviceRecord) device() models.Device {
	return models.Device{
		DeviceID:  r.DeviceID,
		Name:      r.Name,
		Role:      r.Role,
		Connected: true,
		FirstSeen: r.FirstSeen,
		LastSeen:  time.Now().UTC(),
		Playback:  r.Playback,
	}
}

// Registry is the single source of truth for who is connected. The
// lock covers map mutation only; sends to sessions happen outside it on
// snapshots.
type Registry struct {
	mu      sync.Mutex
	devices map[string]*DeviceRecord
}

func NewRegistry() *Registry {
	return &Registry{devices: make(map[string]*DeviceRecord)}
}

// Register records a device's session. Re-registration with the same
// deviceId supersedes: the prior session is returned for the caller to
// close, and only the device name carries over when the new one is
// blank.
func (r *Registry) Register(sess *Session) (prev *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	if old, ok := r.devices[sess.DeviceID]; ok {
		prev = old.Session
		if sess.Name == "" {
			sess.Name = old.Name
		}
		r.devices[sess.DeviceID] = &DeviceRecord{
			DeviceID:  sess.DeviceID,
			Name:      sess.Name,
			Role:      sess.Role,
			Session:   sess,
			FirstSeen: old.FirstSeen,
		}
		return prev
	}
	r.devices[sess.DeviceID] = &DeviceRecord{
		DeviceID:  sess.DeviceID,
		Name:      sess.Name,
		Role:      sess.Role,
		Session:   sess,
		FirstSeen: now,
	}
	return nil
}

// Unregister removes the record for deviceID, but only while sess is
// still the registered session. A superseded session racing its own
// close must not evict its replacement.
func (r *Registry) Unregister(deviceID string, sess *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.devices[deviceID]
	if !ok || rec.Session != sess {
		return false
	}
	delete(r.devices, deviceID)
	return true
}

// UpdateStatus merges a playback snapshot into the device's record.
func (r *Registry) UpdateStatus(deviceID string, snap models.PlaybackSnapshot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.devices[deviceID]
	if !ok {
		return false
	}
	rec.Playback = snap
	return true
}

// Find returns a copy of the record for deviceID.
func (r *Registry) Find(deviceID string) (DeviceRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.devices[deviceID]
	if !ok {
		return DeviceRecord{}, false
	}
	return *rec, true
}

// List returns copies of all records, optionally filtered by role.
func (r *Registry) List(role models.DeviceRole) []DeviceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]DeviceRecord, 0, len(r.devices))
	for _, rec := range r.devices {
		if role != "" && rec.Role != role {
			continue
		}
		out = append(out, *rec)
	}
	return out
}

// Sessions returns the live sessions for the heartbeat sweep.
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.devices))
	for _, rec := range r.devices {
		out = append(out, rec.Session)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}

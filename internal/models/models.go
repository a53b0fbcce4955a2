package models

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

type DeviceRole string

const (
	RoleController DeviceRole = "controller"
	RolePlayer     DeviceRole = "player"
)

func (r DeviceRole) Valid() bool {
	switch r {
	case RoleController, RolePlayer:
		return true
	}
	return false
}

type PlaybackState string

const (
	PlaybackIdle    PlaybackState = "idle"
	PlaybackLoading PlaybackState = "loading"
	PlaybackPlaying PlaybackState = "playing"
	PlaybackPaused  PlaybackState = "paused"
	PlaybackStopped PlaybackState = "stopped"
	PlaybackError   PlaybackState = "error"
)

func (s PlaybackState) Valid() bool {
	switch s {
	case PlaybackIdle, PlaybackLoading, PlaybackPlaying, PlaybackPaused, PlaybackStopped, PlaybackError:
		return true
	}
	return false
}

// PlaybackSnapshot is a player's last self-reported playback state.
type PlaybackSnapshot struct {
	State           PlaybackState `json:"state"`
	CurrentMedia    string        `json:"current_media,omitempty"`
	ImmersiveMode   bool          `json:"immersive_mode"`
	PositionSeconds float64       `json:"position_seconds"`
	LastUpdate      time.Time     `json:"last_update"`
}

// Device is one registered participant, tracked across reconnects by a
// stable caller-supplied id.
type Device struct {
	DeviceID  string           `json:"device_id"`
	Name      string           `json:"name"`
	Role      DeviceRole       `json:"role"`
	Connected bool             `json:"connected"`
	FirstSeen time.Time        `json:"first_seen"`
	LastSeen  time.Time        `json:"last_seen"`
	Playback  PlaybackSnapshot `json:"playback"`
}

type CommandAction string

const (
	ActionPlay        CommandAction = "play"
	ActionPause       CommandAction = "pause"
	ActionResume      CommandAction = "resume"
	ActionChange      CommandAction = "change"
	ActionStop        CommandAction = "stop"
	ActionDownload    CommandAction = "download"
	ActionDeleteMedia CommandAction = "deleteMedia"
)

func (a CommandAction) Valid() bool {
	switch a {
	case ActionPlay, ActionPause, ActionResume, ActionChange, ActionStop, ActionDownload, ActionDeleteMedia:
		return true
	}
	return false
}

// TargetAll addresses every registered player.
const TargetAll = "all"

type TransferStatus string

const (
	TransferPending     TransferStatus = "pending"
	TransferDownloading TransferStatus = "downloading"
	TransferCompleted   TransferStatus = "completed"
	TransferFailed      TransferStatus = "failed"
)

// Transfer is one bulk file movement toward a target device. At most one
// transfer is active per device; a newer one supersedes the old.
type Transfer struct {
	ID               string         `json:"id"`
	DeviceID         string         `json:"device_id"`
	Filename         string         `json:"filename"`
	TotalBytes       int64          `json:"total_bytes"`
	BytesTransferred int64          `json:"bytes_transferred"`
	Status           TransferStatus `json:"status"`
	Error            string         `json:"error,omitempty"`
	StartedAt        time.Time      `json:"started_at"`
	EndedAt          time.Time      `json:"ended_at,omitempty"`
}

// Progress returns the delivered fraction in [0,1].
func (t *Transfer) Progress() float64 {
	if t.TotalBytes <= 0 {
		return 0
	}
	p := float64(t.BytesTransferred) / float64(t.TotalBytes)
	if p > 1 {
		p = 1
	}
	return p
}

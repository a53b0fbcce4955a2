// Package protocol defines the JSON messages exchanged between the hub
// and its controller/player clients. One message per WebSocket text
// frame, discriminated by the "type" field.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cuecast/internal/models"
)

type Type string

const (
	TypeRegister           Type = "register"
	TypeRegistered         Type = "registered"
	TypeWelcome            Type = "welcome"
	TypeCommand            Type = "command"
	TypeStatus             Type = "status"
	TypeDeviceConnected    Type = "deviceConnected"
	TypeDeviceDisconnected Type = "deviceDisconnected"
	TypePing               Type = "ping"
	TypePong               Type = "pong"
	TypeError              Type = "error"
	TypeDownload           Type = "download"
	TypeTransferProgress   Type = "transferProgress"
	TypeDeleteMedia        Type = "deleteMedia"
	TypeDeleteMediaResult  Type = "deleteMediaResult"
)

var knownTypes = map[Type]struct{}{
	TypeRegister: {}, TypeRegistered: {}, TypeWelcome: {}, TypeCommand: {},
	TypeStatus: {}, TypeDeviceConnected: {}, TypeDeviceDisconnected: {},
	TypePing: {}, TypePong: {}, TypeError: {}, TypeDownload: {},
	TypeTransferProgress: {}, TypeDeleteMedia: {}, TypeDeleteMediaResult: {},
}

var ErrUnknownType = errors.New("unknown message type")

// Envelope is a decoded frame: its type plus the raw bytes, so the
// receiver can unmarshal into the matching struct.
type Envelope struct {
	Type Type
	Raw  json.RawMessage
}

func (e *Envelope) Payload(v any) error {
	return json.Unmarshal(e.Raw, v)
}

// Decode peeks the type discriminator of a frame. Malformed JSON and
// unrecognized types are errors; per-connection handling drops the
// frame and keeps the connection open.
func Decode(data []byte) (*Envelope, error) {
	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}
	if _, ok := knownTypes[head.Type]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, head.Type)
	}
	return &Envelope{Type: head.Type, Raw: data}, nil
}

func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

type Register struct {
	Type       Type              `json:"type"`
	DeviceID   string            `json:"deviceId"`
	DeviceName string            `json:"deviceName"`
	DeviceType models.DeviceRole `json:"deviceType"`
}

func (m *Register) Validate() error {
	if m.DeviceID == "" {
		return errors.New("deviceId is required")
	}
	if !m.DeviceType.Valid() {
		return errors.New("deviceType must be controller or player")
	}
	return nil
}

// DeviceSummary is the per-device entry sent to controllers in the
// registered ack and on request.
type DeviceSummary struct {
	DeviceID     string               `json:"deviceId"`
	DeviceName   string               `json:"deviceName"`
	Role         models.DeviceRole    `json:"role"`
	State        models.PlaybackState `json:"state"`
	CurrentMedia string               `json:"currentMedia,omitempty"`
}

type Registered struct {
	Type     Type            `json:"type"`
	DeviceID string          `json:"deviceId"`
	Message  string          `json:"message"`
	Devices  []DeviceSummary `json:"devices,omitempty"`
}

type Welcome struct {
	Type          Type   `json:"type"`
	Message       string `json:"message"`
	ServerVersion string `json:"serverVersion"`
}

type Command struct {
	Type          Type                 `json:"type"`
	Action        models.CommandAction `json:"action"`
	TargetDevices []string             `json:"targetDevices"`
	MediaRef      string               `json:"mediaRef,omitempty"`
	URL           string               `json:"url,omitempty"`
	Format        string               `json:"format,omitempty"`
	Timestamp     time.Time            `json:"timestamp"`
}

func (m *Command) Validate() error {
	if !m.Action.Valid() {
		return fmt.Errorf("unknown action %q", m.Action)
	}
	if len(m.TargetDevices) == 0 {
		return errors.New("targetDevices is required")
	}
	return nil
}

type Status struct {
	Type            Type                 `json:"type"`
	DeviceID        string               `json:"deviceId"`
	DeviceName      string               `json:"deviceName"`
	State           models.PlaybackState `json:"state"`
	CurrentMedia    string               `json:"currentMedia,omitempty"`
	ImmersiveMode   bool                 `json:"immersiveMode"`
	PositionSeconds float64              `json:"positionSeconds"`
}

func (m *Status) Validate() error {
	if !m.State.Valid() {
		return fmt.Errorf("unknown playback state %q", m.State)
	}
	return nil
}

type DeviceEvent struct {
	Type       Type   `json:"type"`
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
}

type Ping struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func NewPing() Ping {
	return Ping{Type: TypePing, Timestamp: time.Now().UTC()}
}

type Pong struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func NewPong() Pong {
	return Pong{Type: TypePong, Timestamp: time.Now().UTC()}
}

type Error struct {
	Type      Type      `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func NewError(msg string) Error {
	return Error{Type: TypeError, Message: msg, Timestamp: time.Now().UTC()}
}

// Download tells a player to fetch a file from the hub's transfer
// endpoint.
type Download struct {
	Type        Type   `json:"type"`
	TransferID  string `json:"transferId"`
	DownloadURL string `json:"downloadUrl"`
	Filename    string `json:"filename"`
	FileSize    int64  `json:"fileSize"`
}

type TransferProgress struct {
	Type             Type    `json:"type"`
	DeviceID         string  `json:"deviceId"`
	Filename         string  `json:"filename"`
	Status           string  `json:"status"` // started|downloading|completed|failed
	Progress         float64 `json:"progress"`
	BytesTransferred int64   `json:"bytesTransferred"`
	TotalBytes       int64   `json:"totalBytes"`
}

type DeleteMedia struct {
	Type     Type   `json:"type"`
	Filename string `json:"filename"`
}

type DeleteMediaResult struct {
	Type     Type   `json:"type"`
	DeviceID string `json:"deviceId"`
	Filename string `json:"filename"`
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
}

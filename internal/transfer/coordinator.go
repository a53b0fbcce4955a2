// Package transfer tracks bulk file movements toward player devices
// and serves their bytes over HTTP with resumable range support.
package transfer

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"cuecast/internal/models"
	"cuecast/internal/store"
	"cuecast/internal/units"
)

const (
	// DefaultChunkSize bounds memory per transfer send loop regardless
	// of file size.
	DefaultChunkSize = 1 << 20

	// defaultLinger keeps terminal transfers visible in the active
	// table briefly before they drop to history only.
	defaultLinger = 30 * time.Second
)

var ErrNoSuchTransfer = errors.New("no such transfer")

type entry struct {
	mu       sync.Mutex
	t        models.Transfer
	path     string
	cancel   chan struct{}
	cancelMu sync.Once
}

func (e *entry) snapshot() models.Transfer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.t
}

func (e *entry) abort() {
	e.cancelMu.Do(func() { close(e.cancel) })
}

// Coordinator is the transfer table: at most one active transfer per
// device, last request wins. Starting a new transfer to a device fails
// the prior one before the new one exists, so two senders racing the
// same receiver cannot interleave chunk streams.
type Coordinator struct {
	mediaDir  string
	store     *store.Store
	limiter   *rate.Limiter
	chunkSize int
	linger    time.Duration
	notify    func(models.Transfer)

	mu       sync.Mutex
	byID     map[string]*entry
	byDevice map[string]string
}

type Option func(*Coordinator)

func WithStore(s *store.Store) Option {
	return func(c *Coordinator) { c.store = s }
}

// WithRateLimit caps serving throughput in bytes per second across all
// transfers. Zero or negative disables the cap.
func WithRateLimit(bytesPerSec int) Option {
	return func(c *Coordinator) {
		if bytesPerSec > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(bytesPerSec), bytesPerSec)
		}
	}
}

func WithChunkSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

func WithLinger(d time.Duration) Option {
	return func(c *Coordinator) { c.linger = d }
}

func NewCoordinator(mediaDir string, opts ...Option) *Coordinator {
	c := &Coordinator{
		mediaDir:  mediaDir,
		chunkSize: DefaultChunkSize,
		linger:    defaultLinger,
		byID:      make(map[string]*entry),
		byDevice:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Notify registers the sink for transfer state changes. The hub
// republishes these to controllers and event subscribers.
func (c *Coordinator) Notify(fn func(models.Transfer)) {
	c.notify = fn
}

// Start creates a transfer of the named media file to deviceID. Any
// transfer already active for that device is failed with a superseded
// cause first.
func (c *Coordinator) Start(deviceID, filename string) (models.Transfer, error) {
	clean, err := cleanFilename(filename)
	if err != nil {
		return models.Transfer{}, err
	}
	path := filepath.Join(c.mediaDir, clean)
	info, err := os.Stat(path)
	if err != nil {
		return models.Transfer{}, fmt.Errorf("source %s: %w", clean, err)
	}
	if info.IsDir() {
		return models.Transfer{}, fmt.Errorf("source %s is a directory", clean)
	}

	c.mu.Lock()
	// The prior transfer must be terminal before the new entry is
	// visible, all under one lock hold, or two racing Starts could
	// both leave a live entry behind.
	var superseded *models.Transfer
	if prevID, ok := c.byDevice[deviceID]; ok {
		if prev, ok := c.byID[prevID]; ok {
			if t, changed := markFailed(prev, "superseded by a newer transfer"); changed {
				superseded = &t
			}
		}
	}
	e := &entry{
		t: models.Transfer{
			ID:         newTransferID(),
			DeviceID:   deviceID,
			Filename:   clean,
			TotalBytes: info.Size(),
			Status:     models.TransferPending,
			StartedAt:  time.Now().UTC(),
		},
		path:   path,
		cancel: make(chan struct{}),
	}
	c.byID[e.t.ID] = e
	c.byDevice[deviceID] = e.t.ID
	c.mu.Unlock()

	if superseded != nil {
		c.finish(*superseded)
	}
	log.Printf("transfer %s: %s -> %s (%s)", e.t.ID, clean, deviceID, units.FormatBytes(info.Size()))
	c.emit(e.snapshot())
	return e.snapshot(), nil
}

// Cancel fails the active transfer for deviceID, if any.
func (c *Coordinator) Cancel(deviceID string) bool {
	c.mu.Lock()
	id, ok := c.byDevice[deviceID]
	if !ok {
		c.mu.Unlock()
		return false
	}
	e, ok := c.byID[id]
	c.mu.Unlock()
	if !ok || isTerminal(e.snapshot().Status) {
		return false
	}
	c.fail(e, "cancelled")
	return true
}

func (c *Coordinator) Get(id string) (models.Transfer, bool) {
	c.mu.Lock()
	e, ok := c.byID[id]
	c.mu.Unlock()
	if !ok {
		return models.Transfer{}, false
	}
	return e.snapshot(), true
}

// Active returns the transfer table, including recently finished
// entries still lingering.
func (c *Coordinator) Active() []models.Transfer {
	c.mu.Lock()
	entries := make([]*entry, 0, len(c.byID))
	for _, e := range c.byID {
		entries = append(entries, e)
	}
	c.mu.Unlock()
	out := make([]models.Transfer, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.snapshot())
	}
	return out
}

func (c *Coordinator) lookup(id string) (*entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byID[id]
	return e, ok
}

// markFailed flips a transfer to failed if it is not already terminal
// and returns the terminal snapshot. Side effects (archival, events)
// are the caller's to run via finish, outside any coordinator lock.
func markFailed(e *entry, cause string) (models.Transfer, bool) {
	e.abort()
	e.mu.Lock()
	defer e.mu.Unlock()
	if isTerminal(e.t.Status) {
		return models.Transfer{}, false
	}
	e.t.Status = models.TransferFailed
	e.t.Error = cause
	e.t.EndedAt = time.Now().UTC()
	return e.t, true
}

// fail moves a transfer to failed and archives it.
func (c *Coordinator) fail(e *entry, cause string) {
	if t, changed := markFailed(e, cause); changed {
		c.finish(t)
	}
}

func (c *Coordinator) complete(e *entry) {
	e.mu.Lock()
	if isTerminal(e.t.Status) {
		e.mu.Unlock()
		return
	}
	e.t.Status = models.TransferCompleted
	e.t.EndedAt = time.Now().UTC()
	t := e.t
	e.mu.Unlock()
	c.finish(t)
}

func (c *Coordinator) finish(t models.Transfer) {
	log.Printf("transfer %s to %s: %s at %s of %s (%s)", t.ID, t.DeviceID, t.Status,
		units.FormatBytes(t.BytesTransferred), units.FormatBytes(t.TotalBytes), units.FormatProgress(t.Progress()))
	if c.store != nil {
		if err := c.store.InsertTransfer(t); err != nil {
			log.Printf("archiving transfer %s: %v", t.ID, err)
		}
	}
	c.emit(t)
	time.AfterFunc(c.linger, func() { c.remove(t.ID) })
}

func (c *Coordinator) remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byID[id]
	if !ok {
		return
	}
	delete(c.byID, id)
	if c.byDevice[e.t.DeviceID] == id {
		delete(c.byDevice, e.t.DeviceID)
	}
}

func (c *Coordinator) emit(t models.Transfer) {
	if c.notify != nil {
		c.notify(t)
	}
}

func isTerminal(s models.TransferStatus) bool {
	return s == models.TransferCompleted || s == models.TransferFailed
}

func newTransferID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("t-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func cleanFilename(name string) (string, error) {
	if name == "" {
		return "", errors.New("filename is required")
	}
	clean := filepath.Base(filepath.Clean(name))
	if clean == "." || clean == ".." || strings.ContainsAny(clean, "\x00") {
		return "", fmt.Errorf("invalid filename %q", name)
	}
	return clean, nil
}

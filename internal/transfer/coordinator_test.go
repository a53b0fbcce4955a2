package transfer

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cuecast/internal/models"
)

// writeTestFile creates a file of n bytes with a position-dependent
// pattern so range assertions can verify offsets, not just lengths.
func writeTestFile(t *testing.T, dir, name string, n int) []byte {
	t.Helper()
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0644))
	return data
}

func newTestCoordinator(t *testing.T, opts ...Option) (*Coordinator, string) {
	t.Helper()
	dir := t.TempDir()
	opts = append(opts, WithLinger(time.Hour)) // keep terminal entries visible to assertions
	return NewCoordinator(dir, opts...), dir
}

func TestStartTransfer(t *testing.T) {
	c, dir := newTestCoordinator(t)
	writeTestFile(t, dir, "clip.mp4", 4096)

	tr, err := c.Start("vp-1", "clip.mp4")
	require.NoError(t, err)
	require.NotEmpty(t, tr.ID)
	require.Equal(t, "vp-1", tr.DeviceID)
	require.Equal(t, int64(4096), tr.TotalBytes)
	require.Equal(t, models.TransferPending, tr.Status)

	got, ok := c.Get(tr.ID)
	require.True(t, ok)
	require.Equal(t, tr.ID, got.ID)
}

func TestStartMissingSource(t *testing.T) {
	c, _ := newTestCoordinator(t)
	_, err := c.Start("vp-1", "ghost.mp4")
	require.Error(t, err)
}

func TestStartRejectsPathEscape(t *testing.T) {
	c, dir := newTestCoordinator(t)
	writeTestFile(t, dir, "clip.mp4", 64)

	// Path components are stripped; only the base name inside the
	// media dir is eligible.
	tr, err := c.Start("vp-1", "../../../etc/clip.mp4")
	if err == nil {
		require.Equal(t, "clip.mp4", tr.Filename)
	}

	_, err = c.Start("vp-1", "..")
	require.Error(t, err)
	_, err = c.Start("vp-1", "")
	require.Error(t, err)
}

func TestLastRequestWins(t *testing.T) {
	c, dir := newTestCoordinator(t)
	writeTestFile(t, dir, "a.mp4", 1024)
	writeTestFile(t, dir, "b.mp4", 2048)

	var events []models.Transfer
	c.Notify(func(tr models.Transfer) { events = append(events, tr) })

	a, err := c.Start("vp-1", "a.mp4")
	require.NoError(t, err)
	b, err := c.Start("vp-1", "b.mp4")
	require.NoError(t, err)

	aNow, ok := c.Get(a.ID)
	require.True(t, ok)
	require.Equal(t, models.TransferFailed, aNow.Status)
	require.Contains(t, aNow.Error, "superseded")

	bNow, ok := c.Get(b.ID)
	require.True(t, ok)
	require.Equal(t, models.TransferPending, bNow.Status)

	// A must fail before B exists: pending(A), failed(A), pending(B).
	require.Len(t, events, 3)
	require.Equal(t, a.ID, events[1].ID)
	require.Equal(t, models.TransferFailed, events[1].Status)
	require.Equal(t, b.ID, events[2].ID)
}

func TestConcurrentStartsLeaveOneLiveTransfer(t *testing.T) {
	c, dir := newTestCoordinator(t)
	writeTestFile(t, dir, "clip.mp4", 1024)

	const racers = 8
	errs := make(chan error, racers)
	var wg sync.WaitGroup
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func() {
			defer wg.Done()
			_, err := c.Start("vp-1", "clip.mp4")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var live int
	for _, tr := range c.Active() {
		if tr.Status != models.TransferFailed && tr.Status != models.TransferCompleted {
			live++
		}
	}
	require.Equal(t, 1, live)
}

func TestTransfersToDifferentDevicesCoexist(t *testing.T) {
	c, dir := newTestCoordinator(t)
	writeTestFile(t, dir, "clip.mp4", 1024)

	a, err := c.Start("vp-1", "clip.mp4")
	require.NoError(t, err)
	b, err := c.Start("vp-2", "clip.mp4")
	require.NoError(t, err)

	aNow, _ := c.Get(a.ID)
	bNow, _ := c.Get(b.ID)
	require.Equal(t, models.TransferPending, aNow.Status)
	require.Equal(t, models.TransferPending, bNow.Status)
}

func TestCancel(t *testing.T) {
	c, dir := newTestCoordinator(t)
	writeTestFile(t, dir, "clip.mp4", 1024)

	tr, err := c.Start("vp-1", "clip.mp4")
	require.NoError(t, err)
	require.True(t, c.Cancel("vp-1"))
	require.False(t, c.Cancel("vp-1"), "second cancel has nothing to do")

	now, _ := c.Get(tr.ID)
	require.Equal(t, models.TransferFailed, now.Status)
	require.Equal(t, "cancelled", now.Error)
}

func TestCleanFilename(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"clip.mp4", "clip.mp4", false},
		{"dir/clip.mp4", "clip.mp4", false},
		{"..", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := cleanFilename(tc.in)
		if tc.wantErr {
			require.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got)
	}
}

func TestProgressFraction(t *testing.T) {
	tr := models.Transfer{TotalBytes: 2000, BytesTransferred: 500}
	require.InDelta(t, 0.25, tr.Progress(), 1e-9)

	tr.BytesTransferred = 4000
	require.Equal(t, 1.0, tr.Progress())

	empty := models.Transfer{}
	require.Equal(t, 0.0, empty.Progress())
}

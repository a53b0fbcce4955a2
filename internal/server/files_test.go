package server

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cuecast/internal/models"
)

func TestFileDownloadRange(t *testing.T) {
	env := newTestEnv(t)
	writeMediaFile(t, env, "clip.mp4", 5000)

	tr, err := env.transfers.Start("vp-1", "clip.mp4")
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/files/"+tr.ID, nil)
	require.NoError(t, err)
	req.Header.Set("Range", "bytes=1000-1999")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusPartialContent, resp.StatusCode)
	require.Equal(t, "bytes 1000-1999/5000", resp.Header.Get("Content-Range"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Len(t, body, 1000)
	require.Equal(t, byte(1000%251), body[0])
}

func TestFileDownloadUnknownTransfer(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.srv.URL + "/files/nope")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEventStreamSnapshot(t *testing.T) {
	env := newTestEnv(t)
	connectClient(t, env, "vp-1", "Headset", models.RolePlayer)

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/api/events", nil)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := http.DefaultClient.Do(req.WithContext(ctx))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// First frame is the device snapshot.
	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data:"))
	require.Contains(t, line, `"snapshot"`)
	require.Contains(t, line, "vp-1")
}

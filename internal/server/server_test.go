package server

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cuecast/internal/client"
	"cuecast/internal/models"
	"cuecast/internal/protocol"
)

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp
}

func connectClient(t *testing.T, env *testEnv, id, name string, role models.DeviceRole) *client.Client {
	t.Helper()
	c := client.New(env.wsURL(), client.Identity{DeviceID: id, DeviceName: name, Role: role})
	c.Connect()
	require.Eventually(t, func() bool { return c.State() == client.StateConnected },
		5*time.Second, 10*time.Millisecond)
	t.Cleanup(c.Disconnect)
	return c
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	var health map[string]any
	resp := getJSON(t, env.srv.URL+"/api/health", &health)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", health["status"])
	require.Equal(t, float64(0), health["connected_devices"])
	require.Contains(t, health, "uptime_seconds")
}

func TestVersionEndpoint(t *testing.T) {
	env := newTestEnv(t)
	var v map[string]string
	resp := getJSON(t, env.srv.URL+"/api/version", &v)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, v["version"])
}

func TestDevicesEndpointTracksConnection(t *testing.T) {
	env := newTestEnv(t)
	c := connectClient(t, env, "vp-1", "Headset", models.RolePlayer)

	var devices []models.Device
	getJSON(t, env.srv.URL+"/api/devices", &devices)
	require.Len(t, devices, 1)
	require.Equal(t, "vp-1", devices[0].DeviceID)
	require.True(t, devices[0].Connected)

	c.Disconnect()
	require.Eventually(t, func() bool { return env.hub.DeviceCount() == 0 },
		5*time.Second, 10*time.Millisecond)

	// Known but offline: still listed, flagged disconnected.
	devices = nil
	getJSON(t, env.srv.URL+"/api/devices", &devices)
	require.Len(t, devices, 1)
	require.False(t, devices[0].Connected)

	var device models.Device
	resp := getJSON(t, env.srv.URL+"/api/devices/vp-1", &device)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Headset", device.Name)

	resp = getJSON(t, env.srv.URL+"/api/devices/ghost", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDevicesEndpointRoleFilter(t *testing.T) {
	env := newTestEnv(t)
	connectClient(t, env, "vp-1", "Headset", models.RolePlayer)
	connectClient(t, env, "c-1", "Tablet", models.RoleController)

	var players []models.Device
	getJSON(t, env.srv.URL+"/api/devices?role=player", &players)
	require.Len(t, players, 1)
	require.Equal(t, "vp-1", players[0].DeviceID)

	resp := getJSON(t, env.srv.URL+"/api/devices?role=spectator", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEndToEndCommandRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctrl := connectClient(t, env, "c-1", "Tablet", models.RoleController)
	player := connectClient(t, env, "vp-1", "Headset", models.RolePlayer)

	require.NoError(t, ctrl.SendCommand(models.ActionPlay, []string{"all"}, "clip.mp4"))

	// The player's message stream yields the exact command.
	var cmd protocol.Command
	requireMessage(t, player, protocol.TypeCommand, &cmd)
	require.Equal(t, models.ActionPlay, cmd.Action)
	require.Equal(t, "clip.mp4", cmd.MediaRef)

	require.NoError(t, player.SendStatus(models.PlaybackSnapshot{
		State:        models.PlaybackPlaying,
		CurrentMedia: "clip.mp4",
	}))

	var st protocol.Status
	requireMessage(t, ctrl, protocol.TypeStatus, &st)
	require.Equal(t, "vp-1", st.DeviceID)
	require.Equal(t, models.PlaybackPlaying, st.State)
	require.Equal(t, "clip.mp4", st.CurrentMedia)
}

// requireMessage drains the client's stream until a frame of the given
// type decodes into v.
func requireMessage(t *testing.T, c *client.Client, typ protocol.Type, v any) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case env := <-c.Messages():
			if env.Type != typ {
				continue
			}
			require.NoError(t, env.Payload(v))
			return
		case <-deadline:
			t.Fatalf("timed out waiting for %q", typ)
		}
	}
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	connectClient(t, env, "vp-1", "Headset", models.RolePlayer)
	connectClient(t, env, "c-1", "Tablet", models.RoleController)

	var stats statsResponse
	resp := getJSON(t, env.srv.URL+"/api/stats", &stats)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 2, stats.ConnectedDevices)
	require.Equal(t, 1, stats.KnownPlayers)
	require.Equal(t, 1, stats.KnownControllers)
}

func TestTransfersEndpoints(t *testing.T) {
	env := newTestEnv(t)
	writeMediaFile(t, env, "clip.mp4", 2048)

	tr, err := env.transfers.Start("vp-1", "clip.mp4")
	require.NoError(t, err)

	var active []models.Transfer
	getJSON(t, env.srv.URL+"/api/transfers", &active)
	require.Len(t, active, 1)
	require.Equal(t, tr.ID, active[0].ID)

	// Supersede it so something lands in the archive.
	_, err = env.transfers.Start("vp-1", "clip.mp4")
	require.NoError(t, err)

	var history []models.Transfer
	getJSON(t, env.srv.URL+"/api/transfers/history", &history)
	require.Len(t, history, 1)
	require.Equal(t, models.TransferFailed, history[0].Status)
	require.Contains(t, history[0].Error, "superseded")
}

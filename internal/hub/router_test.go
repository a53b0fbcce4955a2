package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cuecast/internal/models"
	"cuecast/internal/protocol"
)

func TestDispatchAllReachesOnlyPlayers(t *testing.T) {
	h := New()
	ctrl := connectPeer(t, h, "c-1", "Tablet", models.RoleController)
	p1 := connectPeer(t, h, "vp-1", "H1", models.RolePlayer)
	p2 := connectPeer(t, h, "vp-2", "H2", models.RolePlayer)

	report := h.Dispatch(&protocol.Command{
		Type:          protocol.TypeCommand,
		Action:        models.ActionPause,
		TargetDevices: []string{"all"},
	})
	require.Equal(t, 2, report.Targeted)
	require.Equal(t, 2, report.Delivered)

	p1.waitFor(protocol.TypeCommand)
	p2.waitFor(protocol.TypeCommand)
	ctrl.expectNone(protocol.TypeCommand, 100*time.Millisecond)
}

func TestDispatchExplicitList(t *testing.T) {
	h := New()
	p1 := connectPeer(t, h, "vp-1", "H1", models.RolePlayer)
	p2 := connectPeer(t, h, "vp-2", "H2", models.RolePlayer)

	report := h.Dispatch(&protocol.Command{
		Type:          protocol.TypeCommand,
		Action:        models.ActionStop,
		TargetDevices: []string{"vp-2", "vp-9"},
	})
	require.Equal(t, 1, report.Targeted, "absent ids resolve to nothing")
	require.Equal(t, 1, report.Delivered)

	p2.waitFor(protocol.TypeCommand)
	p1.expectNone(protocol.TypeCommand, 100*time.Millisecond)
}

func TestDispatchUnknownTargetDeliversZero(t *testing.T) {
	h := New()
	report := h.Dispatch(&protocol.Command{
		Type:          protocol.TypeCommand,
		Action:        models.ActionPlay,
		TargetDevices: []string{"ghost"},
	})
	require.Equal(t, 0, report.Targeted)
	require.Equal(t, 0, report.Delivered)
}

func TestCommandWithNoTargetsAcksZeroReached(t *testing.T) {
	h := New()
	ctrl := connectPeer(t, h, "c-1", "Tablet", models.RoleController)

	ctrl.send(protocol.Command{
		Type:          protocol.TypeCommand,
		Action:        models.ActionPlay,
		TargetDevices: []string{"all"},
		MediaRef:      "clip.mp4",
	})

	env := ctrl.waitFor(protocol.TypeError)
	var e protocol.Error
	require.NoError(t, env.Payload(&e))
	require.Equal(t, "0 devices reached", e.Message)
}

func TestFanOutSurvivesOneDeadTarget(t *testing.T) {
	h := New()
	p1 := connectPeer(t, h, "vp-1", "H1", models.RolePlayer)
	p2 := connectPeer(t, h, "vp-2", "H2", models.RolePlayer)

	// Kill vp-1's transport without letting the hub notice yet: a
	// closed session fails sends but stays registered until its read
	// loop unwinds.
	rec, ok := h.registry.Find("vp-1")
	require.True(t, ok)
	rec.Session.Close()

	report := h.Dispatch(&protocol.Command{
		Type:          protocol.TypeCommand,
		Action:        models.ActionStop,
		TargetDevices: []string{"vp-1", "vp-2"},
	})
	require.LessOrEqual(t, report.Delivered, 2)
	p2.waitFor(protocol.TypeCommand)
	_ = p1
}

func TestDeleteMediaFansOutToPlayers(t *testing.T) {
	h := New()
	ctrl := connectPeer(t, h, "c-1", "Tablet", models.RoleController)
	player := connectPeer(t, h, "vp-1", "H1", models.RolePlayer)
	ctrl.waitFor(protocol.TypeDeviceConnected)

	ctrl.send(protocol.Command{
		Type:          protocol.TypeCommand,
		Action:        models.ActionDeleteMedia,
		TargetDevices: []string{"vp-1"},
		MediaRef:      "old.mp4",
	})

	env := player.waitFor(protocol.TypeDeleteMedia)
	var del protocol.DeleteMedia
	require.NoError(t, env.Payload(&del))
	require.Equal(t, "old.mp4", del.Filename)

	player.send(protocol.DeleteMediaResult{
		Type:     protocol.TypeDeleteMediaResult,
		Filename: "old.mp4",
		Success:  true,
	})

	env = ctrl.waitFor(protocol.TypeDeleteMediaResult)
	var res protocol.DeleteMediaResult
	require.NoError(t, env.Payload(&res))
	require.Equal(t, "vp-1", res.DeviceID)
	require.True(t, res.Success)
}

package hub

import (
	"log"
	"time"

	"cuecast/internal/models"
	"cuecast/internal/protocol"
)

// DispatchReport summarizes one fan-out: how many targets resolved and
// how many sends were accepted. Per-target detail stays internal;
// commands are advisory, not transactional, across devices.
type DispatchReport struct {
	Targeted  int `json:"targeted"`
	Delivered int `json:"delivered"`
}

func (h *Hub) handleCommand(sess *Session, cmd *protocol.Command) {
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now().UTC()
	}

	var report DispatchReport
	switch cmd.Action {
	case models.ActionDownload:
		report = h.dispatchDownload(cmd)
	case models.ActionDeleteMedia:
		msg := protocol.DeleteMedia{Type: protocol.TypeDeleteMedia, Filename: cmd.MediaRef}
		report = h.fanOut(cmd, func(DeviceRecord) (any, bool) { return msg, true })
	default:
		out := *cmd
		report = h.fanOut(cmd, func(DeviceRecord) (any, bool) { return out, true })
	}

	log.Printf("command %s from %s: %d/%d delivered", cmd.Action, sess.DeviceID, report.Delivered, report.Targeted)
	if report.Delivered == 0 {
		sess.Send(protocol.NewError("0 devices reached"))
	}
}

// Dispatch resolves a command's targets and fans it out. Exposed for
// issuing commands from outside a controller session (tests, future
// admin surface).
func (h *Hub) Dispatch(cmd *protocol.Command) DispatchReport {
	out := *cmd
	return h.fanOut(cmd, func(DeviceRecord) (any, bool) { return out, true })
}

// fanOut sends build(target)'s message to every resolved target. A
// failed send to one target never aborts the rest.
func (h *Hub) fanOut(cmd *protocol.Command, build func(DeviceRecord) (any, bool)) DispatchReport {
	targets := h.resolveTargets(cmd)
	report := DispatchReport{Targeted: len(targets)}
	for i := range targets {
		msg, ok := build(targets[i])
		if !ok {
			continue
		}
		if err := targets[i].Session.Send(msg); err != nil {
			log.Printf("routing %s to %s: %v", cmd.Action, targets[i].DeviceID, err)
			continue
		}
		report.Delivered++
	}
	return report
}

// resolveTargets maps the command's target spec to registry records:
// "all" means every player; explicit ids are filtered to those present.
func (h *Hub) resolveTargets(cmd *protocol.Command) []DeviceRecord {
	for _, t := range cmd.TargetDevices {
		if t == models.TargetAll {
			return h.registry.List(models.RolePlayer)
		}
	}
	var out []DeviceRecord
	for _, id := range cmd.TargetDevices {
		if rec, ok := h.registry.Find(id); ok {
			out = append(out, rec)
		}
	}
	return out
}

// dispatchDownload creates one Transfer per resolved target and hands
// each player its own fetch URL.
func (h *Hub) dispatchDownload(cmd *protocol.Command) DispatchReport {
	if h.transfers == nil {
		return DispatchReport{}
	}
	source := cmd.MediaRef
	if source == "" {
		source = cmd.URL
	}
	return h.fanOut(cmd, func(rec DeviceRecord) (any, bool) {
		t, err := h.transfers.Start(rec.DeviceID, source)
		if err != nil {
			log.Printf("starting transfer of %s to %s: %v", source, rec.DeviceID, err)
			return nil, false
		}
		return protocol.Download{
			Type:        protocol.TypeDownload,
			TransferID:  t.ID,
			DownloadURL: h.publicURL + "/files/" + t.ID,
			Filename:    t.Filename,
			FileSize:    t.TotalBytes,
		}, true
	})
}

// broadcastToControllers delivers one message to every controller
// session, best effort, skipping excludeID.
func (h *Hub) broadcastToControllers(v any, excludeID string) {
	for _, rec := range h.registry.List(models.RoleController) {
		if excludeID != "" && rec.DeviceID == excludeID {
			continue
		}
		if err := rec.Session.Send(v); err != nil {
			log.Printf("notifying controller %s: %v", rec.DeviceID, err)
		}
	}
}

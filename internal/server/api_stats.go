package server

import (
	"net/http"

	"golang.org/x/sync/errgroup"

	"cuecast/internal/models"
	"cuecast/internal/store"
)

type statsResponse struct {
	ConnectedDevices int                 `json:"connected_devices"`
	KnownControllers int                 `json:"known_controllers"`
	KnownPlayers     int                 `json:"known_players"`
	ActiveTransfers  int                 `json:"active_transfers"`
	Transfers        store.TransferStats `json:"transfers"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		ConnectedDevices: s.hub.DeviceCount(),
	}
	if s.transfers != nil {
		for _, t := range s.transfers.Active() {
			if t.Status == models.TransferPending || t.Status == models.TransferDownloading {
				resp.ActiveTransfers++
			}
		}
	}

	if s.store != nil {
		g, _ := errgroup.WithContext(r.Context())
		g.Go(func() error {
			n, err := s.store.CountDevices(models.RoleController)
			resp.KnownControllers = n
			return err
		})
		g.Go(func() error {
			n, err := s.store.CountDevices(models.RolePlayer)
			resp.KnownPlayers = n
			return err
		})
		g.Go(func() error {
			st, err := s.store.GetTransferStats()
			resp.Transfers = st
			return err
		})
		if err := g.Wait(); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

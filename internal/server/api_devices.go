package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cuecast/internal/models"
)

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	role := models.DeviceRole(r.URL.Query().Get("role"))
	if role != "" && !role.Valid() {
		writeError(w, http.StatusBadRequest, "role must be controller or player")
		return
	}

	if s.store == nil {
		writeJSON(w, http.StatusOK, s.hub.Devices(role))
		return
	}

	devices, err := s.store.ListDevices(role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for i := range devices {
		devices[i].Connected = s.hub.Connected(devices[i].DeviceID)
	}
	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if s.store == nil {
		for _, d := range s.hub.Devices("") {
			if d.DeviceID == id {
				writeJSON(w, http.StatusOK, d)
				return
			}
		}
		writeError(w, http.StatusNotFound, "device not found")
		return
	}

	device, err := s.store.GetDevice(id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(w, http.StatusNotFound, "device not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	device.Connected = s.hub.Connected(device.DeviceID)
	writeJSON(w, http.StatusOK, device)
}

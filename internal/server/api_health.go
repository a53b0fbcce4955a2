package server

import (
	"net/http"

	"cuecast/internal/version"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status":            "ok",
		"uptime_seconds":    int64(s.hub.Uptime().Seconds()),
		"connected_devices": s.hub.DeviceCount(),
	}
	if s.store != nil {
		if err := s.store.Ping(); err != nil {
			health["status"] = "degraded"
			health["store_error"] = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": version.Current()})
}

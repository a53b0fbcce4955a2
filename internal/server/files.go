package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleServeFile is the bulk transfer boundary: full payload or a
// Range-selected window, streamed in bounded chunks by the coordinator.
func (s *Server) handleServeFile(w http.ResponseWriter, r *http.Request) {
	if s.transfers == nil {
		http.Error(w, "transfers not configured", http.StatusServiceUnavailable)
		return
	}
	s.transfers.ServeFile(w, r, chi.URLParam(r, "transferID"))
}

package server

import (
	"net/http"
	"strconv"

	"cuecast/internal/models"
)

func (s *Server) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	if s.transfers == nil {
		writeJSON(w, http.StatusOK, []models.Transfer{})
		return
	}
	writeJSON(w, http.StatusOK, s.transfers.Active())
}

func (s *Server) handleTransferHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, []models.Transfer{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	history, err := s.store.ListTransferHistory(limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, history)
}

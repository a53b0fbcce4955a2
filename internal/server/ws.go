package server

import (
	"log"
	"net/http"
)

// handleWS upgrades the connection and hands it to the hub, which owns
// the receive loop until the peer goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	s.hub.HandleConnection(r.Context(), conn)
}

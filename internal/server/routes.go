package server

import (
	"github.com/go-chi/chi/v5"
)

func (s *Server) routes() {
	s.router.Get("/ws", s.handleWS)
	s.router.Get("/files/{transferID}", s.handleServeFile)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.limiter.middleware)
		r.Use(limitBody)
		r.Use(jsonContentType)
		r.Use(corsMiddleware(s.corsOrigin))

		r.Get("/health", s.handleHealth)
		r.Get("/version", s.handleVersion)
		r.Get("/events", s.handleEventsSSE)

		r.Get("/devices", s.handleListDevices)
		r.Get("/devices/{id}", s.handleGetDevice)
		r.Get("/transfers", s.handleListTransfers)
		r.Get("/transfers/history", s.handleTransferHistory)
		r.Get("/stats", s.handleStats)
	})
}

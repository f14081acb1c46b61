package gateway

import (
	"context"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"
)

// Service runs the hub and serves its WebSocket endpoints
type Service struct {
	hub       *Hub
	wsHandler *WebSocketHandler

	wg sync.WaitGroup
}

// NewService creates a new hub service
func NewService(hub *Hub) *Service {
	return &Service{
		hub:       hub,
		wsHandler: NewWebSocketHandler(hub),
	}
}

// AddStats adds a section to the stats endpoint.
func (s *Service) AddStats(name string, fn StatsFunc) {
	s.wsHandler.AddStats(name, fn)
}

// Start launches the hub loop; it runs until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting sync hub service")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run(ctx)
	}()
}

// Stop closes every client connection and waits for the hub loop to exit.
// The caller cancels the context passed to Start first.
func (s *Service) Stop() {
	s.hub.Connections().CloseAll()
	s.wg.Wait()
	log.Info().Msg("sync hub service stopped")
}

// RegisterRoutes registers the WebSocket HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("sync hub routes registered")
}

// GetStats returns statistics about the hub service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.hub.Connections().GetConnectionStats()
	stats["service"] = "sync_hub"
	stats["hub"] = s.hub.Stats()
	return stats
}

package main

import (
	"context"
	"fmt"

	"github.com/mcdev12/ergsync/go/internal/ergrace"
	"github.com/mcdev12/ergsync/go/internal/events"
	"github.com/mcdev12/ergsync/go/internal/gateway"
	"github.com/mcdev12/ergsync/go/internal/race"
	"github.com/mcdev12/ergsync/go/internal/relay"
	"github.com/mcdev12/ergsync/go/internal/scoring"
	"github.com/mcdev12/ergsync/go/internal/wslink"
	"github.com/rs/zerolog/log"
)

// Services holds the wired components of the server.
type Services struct {
	Store     *race.App
	Engine    *scoring.Engine
	Relay     *relay.Forwarder
	Publisher events.Publisher
	Hub       *gateway.Service
	ErgRace   *ergrace.Source

	relayLink *wslink.Link
}

func setupServices(ctx context.Context, cfg *Config, repo race.Repository) (*Services, error) {
	// Wire up dependency injection chain
	// Repository → App → Hub → Service, with the relay, event bus and ErgRace around the hub

	strategy, err := scoring.StrategyByName(cfg.Scoring.Strategy)
	if err != nil {
		return nil, err
	}
	store := race.NewApp(repo, nil)
	engine := scoring.NewEngine(strategy)

	relayLink := wslink.New(wslink.Config{
		Name:           "relay",
		URL:            cfg.Relay.URL,
		ReconnectDelay: cfg.Relay.ReconnectDelay,
		WriteTimeout:   cfg.Relay.WriteTimeout,
		OnMessage:      relay.HandleMessage,
	})
	forwarder := relay.NewForwarder(relayLink, cfg.Relay.Game)

	publisher, err := setupPublisher(ctx, cfg)
	if err != nil {
		forwarder.Close()
		return nil, err
	}

	hub := gateway.NewHub(gateway.DefaultHubConfig(), store, engine, forwarder, publisher)
	service := gateway.NewService(hub)
	service.AddStats("relay", func() interface{} { return forwarder.Stats() })

	s := &Services{
		Store:     store,
		Engine:    engine,
		Relay:     forwarder,
		Publisher: publisher,
		Hub:       service,
		relayLink: relayLink,
	}

	if cfg.ErgRace.URL != "" {
		s.ErgRace = ergrace.NewSource(ergrace.Config{
			URL:  cfg.ErgRace.URL,
			Link: wslink.Config{ReconnectDelay: cfg.ErgRace.ReconnectDelay},
		}, hub)
		service.AddStats("ergrace", func() interface{} { return s.ErgRace.Stats() })
	}
	return s, nil
}

// Start launches the hub loop and the outbound links.
func (s *Services) Start(ctx context.Context) {
	s.Hub.Start(ctx)
	s.relayLink.Start(ctx)
	if s.ErgRace != nil {
		s.ErgRace.Start(ctx)
	}
}

// Close stops ingest first, then the hub, then the relay and the event bus.
// The caller cancels the context passed to Start first.
func (s *Services) Close() {
	if s.ErgRace != nil {
		if err := s.ErgRace.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close ergrace source")
		}
	}
	s.Hub.Stop()
	if err := s.Relay.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close relay link")
	}
	if err := s.Publisher.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close event publisher")
	}
}

func setupPublisher(ctx context.Context, cfg *Config) (events.Publisher, error) {
	if cfg.NATS.URL == "" {
		log.Info().Msg("NATS_URL not set; hub events are not mirrored")
		return events.NoopPublisher{}, nil
	}

	jsCfg := events.DefaultJetStreamConfig()
	jsCfg.URL = cfg.NATS.URL
	if cfg.NATS.StreamName != "" {
		jsCfg.StreamName = cfg.NATS.StreamName
	}
	if cfg.NATS.SubjectPrefix != "" {
		jsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
	}

	publisher, err := events.NewJetStreamPublisher(ctx, jsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup event publisher: %w", err)
	}
	return publisher, nil
}

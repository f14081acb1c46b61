package ergrace

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/ergsync/go/internal/telemetry"
	"github.com/mcdev12/ergsync/go/internal/wslink"
	"github.com/rs/zerolog/log"
)

// Sink accepts hub commands that have no originating client.
type Sink interface {
	Inject(data []byte) bool
}

// TelemetryCommand is the hub command built from one race_data frame.
type TelemetryCommand struct {
	Type    string                 `json:"type"`
	Source  string                 `json:"source"`
	Samples []telemetry.LaneSample `json:"samples"`
}

// RaceStatusCommand is the hub command built from a race_status change.
type RaceStatusCommand struct {
	Type      string `json:"type"`
	State     int    `json:"state"`
	StateDesc string `json:"state_desc"`
}

// Source reads ErgRace frames from one WebSocket and turns them into hub
// commands. Status frames are only forwarded when the state changes.
type Source struct {
	link  *wslink.Link
	sink  Sink
	clock clockwork.Clock

	mu        sync.Mutex
	lastState int
	frames    int64
	rejected  int64
}

// Config holds configuration for the ErgRace source
type Config struct {
	URL  string
	Link wslink.Config
}

// NewSource creates a source feeding sink; the link is dialed on Start
func NewSource(cfg Config, sink Sink) *Source {
	s := &Source{sink: sink, clock: cfg.Link.Clock, lastState: -1}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}

	linkCfg := cfg.Link
	linkCfg.Name = "ergrace"
	if cfg.URL != "" {
		linkCfg.URL = cfg.URL
	}
	linkCfg.OnMessage = s.handleFrame
	linkCfg.OnConnect = s.resetState
	s.link = wslink.New(linkCfg)
	return s
}

// Start dials ErgRace and keeps reconnecting until Close.
func (s *Source) Start(ctx context.Context) {
	s.link.Start(ctx)
}

// Close releases the ErgRace connection.
func (s *Source) Close() error {
	return s.link.Close()
}

// Stats is the ErgRace link counters plus frame counts.
type Stats struct {
	wslink.Stats
	Frames   int64 `json:"frames"`
	Rejected int64 `json:"rejected"`
}

// Stats returns the counters of the ErgRace connection.
func (s *Source) Stats() Stats {
	stats := Stats{Stats: s.link.Stats()}
	s.mu.Lock()
	stats.Frames = s.frames
	stats.Rejected = s.rejected
	s.mu.Unlock()
	return stats
}

func (s *Source) resetState() {
	s.mu.Lock()
	s.lastState = -1
	s.mu.Unlock()
}

func (s *Source) handleFrame(data []byte) {
	frame, err := telemetry.ParseFrame(data, s.clock.Now())
	s.mu.Lock()
	s.frames++
	if err != nil {
		s.rejected++
	}
	s.mu.Unlock()
	if err != nil {
		log.Warn().Err(err).Msg("dropping unreadable ergrace frame")
		return
	}

	if frame.Definition != nil {
		log.Info().
			Str("event", frame.Definition.EventName).
			Int("boats", len(frame.Definition.Boats)).
			Msg("ergrace race definition received")
	}

	if frame.Status != nil && s.stateChanged(frame.Status.State) {
		s.inject(RaceStatusCommand{
			Type:      "raceStatus",
			State:     frame.Status.State,
			StateDesc: frame.Status.StateDesc,
		})
	}

	if len(frame.Samples) > 0 {
		s.inject(TelemetryCommand{Type: "telemetry", Source: "ergrace", Samples: frame.Samples})
	}
}

func (s *Source) stateChanged(state int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state == s.lastState {
		return false
	}
	s.lastState = state
	return true
}

func (s *Source) inject(cmd interface{}) {
	data, err := json.Marshal(cmd)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal ergrace command")
		return
	}
	if !s.sink.Inject(data) {
		log.Warn().Msg("hub rejected ergrace command")
	}
}

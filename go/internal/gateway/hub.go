package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/ergsync/go/internal/events"
	"github.com/mcdev12/ergsync/go/internal/models"
	"github.com/mcdev12/ergsync/go/internal/race"
	"github.com/mcdev12/ergsync/go/internal/scoring"
	"github.com/rs/zerolog/log"
)

// RaceStore is what the hub needs from the race state store.
type RaceStore interface {
	CreateRace(ctx context.Context, req race.CreateRaceRequest) (*models.Race, error)
	GetRace(ctx context.Context, id string) (*models.Race, error)
	GetActiveRace(ctx context.Context) (*models.Race, error)
	ListRaces(ctx context.Context) ([]models.Race, error)
	UpdateRace(ctx context.Context, id string, patch race.RacePatch) (*models.Race, error)
	DeleteRace(ctx context.Context, id string) error

	CreateParticipant(ctx context.Context, req race.CreateParticipantRequest) (*models.Participant, error)
	ListParticipants(ctx context.Context, raceID string) ([]models.Participant, error)
	UpdateParticipant(ctx context.Context, id string, patch race.ParticipantPatch) (*models.Participant, error)
	DeleteParticipants(ctx context.Context, raceID string) error

	CreateCadenceEvent(ctx context.Context, req race.CreateCadenceEventRequest) (*models.CadenceEvent, error)
	ListCadenceEvents(ctx context.Context, raceID string) ([]models.CadenceEvent, error)
	RecordSample(ctx context.Context, rec race.SampleRecord) (*models.Participant, *models.CadenceEvent, error)
}

// Relay receives derived race state for the LED panels.
type Relay interface {
	SendGameData(race *models.Race, participants []models.Participant) bool
	SendGlobalCommand(command, message string) bool
}

type noopRelay struct{}

func (noopRelay) SendGameData(*models.Race, []models.Participant) bool { return false }
func (noopRelay) SendGlobalCommand(string, string) bool { return false }

// HubConfig holds configuration for the hub
type HubConfig struct {
	InboxSize  int
	Connection ConnectionConfig
	Clock      clockwork.Clock
}

// DefaultHubConfig returns default hub configuration
func DefaultHubConfig() HubConfig {
	return HubConfig{
		InboxSize:  1024,
		Connection: DefaultConnectionConfig(),
	}
}

type inbound struct {
	connID string
	data   []byte
}

type request struct {
	ConnID string
	Type   string
	Raw    []byte
}

// outcome is what a handler produced: replies for the sender and at most
// one broadcast for everyone else.
type outcome struct {
	Replies   []*Message
	Broadcast *Message
	RaceID    string
}

type handlerFunc func(ctx context.Context, req *request) (*outcome, error)

// Hub is the synchronization hub. A single goroutine (Run) handles one
// inbound message at a time, so store mutations never interleave and every
// client sees broadcasts in commit order.
type Hub struct {
	store     RaceStore
	engine    *scoring.Engine
	relay     Relay
	publisher events.Publisher
	conns     *ConnectionManager
	clock     clockwork.Clock

	handlers map[string]handlerFunc

	inbox    chan inbound
	done     chan struct{}
	doneOnce sync.Once

	processed atomic.Int64
	failed    atomic.Int64
}

// NewHub creates a hub. relay and publisher may be nil.
func NewHub(cfg HubConfig, store RaceStore, engine *scoring.Engine, relay Relay, publisher events.Publisher) *Hub {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 1024
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if engine == nil {
		engine = scoring.NewEngine(nil)
	}
	if relay == nil {
		relay = noopRelay{}
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}

	h := &Hub{
		store:     store,
		engine:    engine,
		relay:     relay,
		publisher: publisher,
		clock:     cfg.Clock,
		inbox:     make(chan inbound, cfg.InboxSize),
		done:      make(chan struct{}),
	}
	h.conns = NewConnectionManager(cfg.Connection, func(connID string, data []byte) {
		h.Submit(connID, data)
	})
	h.registerHandlers()
	return h
}

// Connections returns the hub's connection registry.
func (h *Hub) Connections() *ConnectionManager {
	return h.conns
}

// Run processes inbound messages until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	log.Info().Int("handlers", len(h.handlers)).Msg("hub started")
	defer h.doneOnce.Do(func() { close(h.done) })

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("hub shutting down")
			return
		case in := <-h.inbox:
			h.process(ctx, in.connID, in.data)
		}
	}
}

// Submit queues a client frame for processing. It blocks while the inbox is
// full and returns false once the hub has stopped.
func (h *Hub) Submit(connID string, data []byte) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.inbox <- inbound{connID: connID, data: data}:
		return true
	case <-h.done:
		return false
	}
}

// Inject queues a command with no originating client, such as ErgRace
// telemetry. Its broadcast reaches every connection.
func (h *Hub) Inject(data []byte) bool {
	return h.Submit("", data)
}

func (h *Hub) process(ctx context.Context, connID string, data []byte) {
	h.processed.Add(1)

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.failed.Add(1)
		log.Warn().Err(err).Str("connection_id", connID).Msg("malformed message")
		h.reply(connID, errorMessage("", msgInvalidFormat))
		return
	}

	handler, ok := h.handlers[env.Type]
	if !ok {
		h.failed.Add(1)
		log.Warn().Str("connection_id", connID).Str("message_type", env.Type).Msg("unknown message type")
		h.reply(connID, errorMessage(env.Type, msgUnknownType))
		return
	}

	out, err := h.invoke(ctx, handler, &request{ConnID: connID, Type: env.Type, Raw: data})
	if err != nil {
		h.failed.Add(1)
		log.Error().
			Err(err).
			Str("connection_id", connID).
			Str("message_type", env.Type).
			Msg("message handling failed")
		h.reply(connID, errorMessage(env.Type, err.Error()))
		return
	}

	for _, m := range out.Replies {
		h.reply(connID, m)
	}
	if out.Broadcast != nil {
		h.broadcast(ctx, connID, out.RaceID, out.Broadcast)
	}
}

// invoke runs a handler, turning a panic into an error for the sender.
func (h *Hub) invoke(ctx context.Context, handler handlerFunc, req *request) (out *outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("message_type", req.Type).Msg("handler panicked")
			out, err = nil, fmt.Errorf("internal error handling %s", req.Type)
		}
	}()
	out, err = handler(ctx, req)
	if err == nil && out == nil {
		out = &outcome{}
	}
	return out, err
}

func (h *Hub) reply(connID string, m *Message) {
	if connID == "" || m == nil {
		return
	}
	data, err := json.Marshal(m)
	if err != nil {
		log.Error().Err(err).Str("message_type", m.Type).Msg("failed to marshal reply")
		return
	}
	h.conns.SendTo(connID, data)
}

func (h *Hub) broadcast(ctx context.Context, originID, raceID string, m *Message) {
	data, err := json.Marshal(m)
	if err != nil {
		log.Error().Err(err).Str("message_type", m.Type).Msg("failed to marshal broadcast")
		return
	}
	n := h.conns.Broadcast(originID, data)
	log.Debug().
		Str("message_type", m.Type).
		Str("race_id", raceID).
		Int("connections", n).
		Msg("broadcast")

	if err := h.publisher.Publish(ctx, events.NewEvent(m.Type, raceID, m.Data, h.clock.Now())); err != nil {
		log.Warn().Err(err).Str("message_type", m.Type).Msg("failed to mirror broadcast")
	}
}

// Stats returns hub counters.
func (h *Hub) Stats() map[string]interface{} {
	return map[string]interface{}{
		"processed":        h.processed.Load(),
		"failed":           h.failed.Load(),
		"queued":           len(h.inbox),
		"scoring_strategy": h.engine.Strategy().Name(),
	}
}

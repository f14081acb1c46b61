package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mcdev12/ergsync/go/internal/models"
	"github.com/mcdev12/ergsync/go/internal/race"
)

func (h *Hub) registerHandlers() {
	h.handlers = map[string]handlerFunc{
		TypeGetRace:            h.handleGetRace,
		TypeGetActiveRace:      h.handleGetActiveRace,
		TypeGetState:           h.handleGetState,
		TypeGetAllRaces:        h.handleGetAllRaces,
		TypeCreateRace:         h.handleCreateRace,
		TypeUpdateRace:         h.handleUpdateRace,
		TypeDeleteRace:         h.handleDeleteRace,
		TypeGetParticipants:    h.handleGetParticipants,
		TypeCreateParticipant:  h.handleCreateParticipant,
		TypeUpdateParticipant:  h.handleUpdateParticipant,
		TypeDeleteParticipants: h.handleDeleteParticipants,
		TypeCreateCadenceEvent: h.handleCreateCadenceEvent,
		TypeGetCadenceEvents:   h.handleGetCadenceEvents,
		TypeTelemetry:          h.handleTelemetry,
		TypeRaceStatus:         h.handleRaceStatus,
		TypeRelayCommand:       h.handleRelayCommand,
	}
}

func decode(req *request, v interface{}) error {
	if err := json.Unmarshal(req.Raw, v); err != nil {
		return fmt.Errorf("%s: %w", msgInvalidFormat, err)
	}
	return nil
}

// reply builds an outcome with a single reply.
func reply(msgType string, data interface{}) (*outcome, error) {
	m, err := newMessage(msgType, data)
	if err != nil {
		return nil, err
	}
	return &outcome{Replies: []*Message{m}}, nil
}

// replyAndBroadcast builds an outcome whose reply and broadcast carry the same data.
func replyAndBroadcast(replyType, broadcastType, raceID string, data interface{}) (*outcome, error) {
	m, err := newMessage(replyType, data)
	if err != nil {
		return nil, err
	}
	return &outcome{
		Replies:   []*Message{m},
		Broadcast: &Message{Type: broadcastType, Data: m.Data},
		RaceID:    raceID,
	}, nil
}

func (h *Hub) handleGetRace(ctx context.Context, req *request) (*outcome, error) {
	var in idRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	r, err := h.store.GetRace(ctx, in.ID)
	if race.IsNotFound(err) {
		return reply(TypeRace, nil)
	}
	if err != nil {
		return nil, err
	}
	return reply(TypeRace, r)
}

func (h *Hub) handleGetActiveRace(ctx context.Context, _ *request) (*outcome, error) {
	r, err := h.activeRace(ctx)
	if err != nil {
		return nil, err
	}
	return reply(TypeActiveRace, r)
}

// handleGetState answers with the active race and its participants as two
// frames, race_state then participants_state.
func (h *Hub) handleGetState(ctx context.Context, _ *request) (*outcome, error) {
	r, err := h.activeRace(ctx)
	if err != nil {
		return nil, err
	}
	participants := []models.Participant{}
	if r != nil {
		if participants, err = h.store.ListParticipants(ctx, r.ID); err != nil {
			return nil, err
		}
	}

	raceMsg, err := newMessage(TypeRaceState, r)
	if err != nil {
		return nil, err
	}
	participantsMsg, err := newMessage(TypeParticipantsState, participants)
	if err != nil {
		return nil, err
	}
	return &outcome{Replies: []*Message{raceMsg, participantsMsg}}, nil
}

// activeRace returns nil without error when no race is active.
func (h *Hub) activeRace(ctx context.Context) (*models.Race, error) {
	r, err := h.store.GetActiveRace(ctx)
	if race.IsNotFound(err) {
		return nil, nil
	}
	return r, err
}

func (h *Hub) handleGetAllRaces(ctx context.Context, _ *request) (*outcome, error) {
	races, err := h.store.ListRaces(ctx)
	if err != nil {
		return nil, err
	}
	return reply(TypeAllRaces, races)
}

func (h *Hub) handleCreateRace(ctx context.Context, req *request) (*outcome, error) {
	var in createRaceRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if in.Race == nil {
		return nil, errors.New("race is required")
	}
	r, err := h.store.CreateRace(ctx, *in.Race)
	if err != nil {
		return nil, err
	}
	return replyAndBroadcast(TypeRaceCreated, TypeRaceUpdate, r.ID, r)
}

func (h *Hub) handleUpdateRace(ctx context.Context, req *request) (*outcome, error) {
	var in updateRaceRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	r, err := h.store.UpdateRace(ctx, in.ID, in.Updates)
	if race.IsNotFound(err) {
		return reply(TypeRaceUpdated, nil)
	}
	if err != nil {
		return nil, err
	}
	return replyAndBroadcast(TypeRaceUpdated, TypeRaceUpdate, r.ID, r)
}

func (h *Hub) handleDeleteRace(ctx context.Context, req *request) (*outcome, error) {
	var in idRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if err := h.forgetParticipants(ctx, in.ID); err != nil {
		return nil, err
	}
	if err := h.store.DeleteRace(ctx, in.ID); err != nil {
		return nil, err
	}
	return replyAndBroadcast(TypeRaceDeleted, TypeRaceDeleted, in.ID, deletedRace{ID: in.ID})
}

func (h *Hub) handleGetParticipants(ctx context.Context, req *request) (*outcome, error) {
	var in raceIDRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	participants, err := h.store.ListParticipants(ctx, in.RaceID)
	if err != nil {
		return nil, err
	}
	return reply(TypeParticipants, participants)
}

func (h *Hub) handleCreateParticipant(ctx context.Context, req *request) (*outcome, error) {
	var in createParticipantRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if in.Participant == nil {
		return nil, errors.New("participant is required")
	}
	p, err := h.store.CreateParticipant(ctx, *in.Participant)
	if race.IsNotFound(err) {
		return reply(TypeParticipantCreated, nil)
	}
	if err != nil {
		return nil, err
	}
	return replyAndBroadcast(TypeParticipantCreated, TypeParticipantUpdate, p.RaceID, p)
}

func (h *Hub) handleUpdateParticipant(ctx context.Context, req *request) (*outcome, error) {
	var in updateParticipantRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	p, err := h.store.UpdateParticipant(ctx, in.ID, in.Updates)
	if race.IsNotFound(err) {
		return reply(TypeParticipantUpdated, nil)
	}
	if err != nil {
		return nil, err
	}
	return replyAndBroadcast(TypeParticipantUpdated, TypeParticipantUpdate, p.RaceID, p)
}

func (h *Hub) handleDeleteParticipants(ctx context.Context, req *request) (*outcome, error) {
	var in raceIDRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if err := h.forgetParticipants(ctx, in.RaceID); err != nil {
		return nil, err
	}
	if err := h.store.DeleteParticipants(ctx, in.RaceID); err != nil {
		return nil, err
	}
	return replyAndBroadcast(TypeParticipantsDeleted, TypeParticipantsDeleted, in.RaceID, deletedParticipants{RaceID: in.RaceID})
}

// forgetParticipants drops the scoring streaks of a race's participants.
func (h *Hub) forgetParticipants(ctx context.Context, raceID string) error {
	participants, err := h.store.ListParticipants(ctx, raceID)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.ID)
	}
	h.engine.Forget(ids...)
	return nil
}

func (h *Hub) handleCreateCadenceEvent(ctx context.Context, req *request) (*outcome, error) {
	var in createCadenceEventRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if in.Event == nil {
		return nil, errors.New("event is required")
	}
	e, err := h.store.CreateCadenceEvent(ctx, *in.Event)
	if race.IsNotFound(err) {
		return reply(TypeCadenceEventCreated, nil)
	}
	if err != nil {
		return nil, err
	}
	return replyAndBroadcast(TypeCadenceEventCreated, TypeCadenceEventUpdate, e.RaceID, e)
}

func (h *Hub) handleGetCadenceEvents(ctx context.Context, req *request) (*outcome, error) {
	var in raceIDRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	events, err := h.store.ListCadenceEvents(ctx, in.RaceID)
	if err != nil {
		return nil, err
	}
	return reply(TypeCadenceEvents, events)
}

func (h *Hub) handleRelayCommand(_ context.Context, req *request) (*outcome, error) {
	var in relayCommandRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if in.Command == "" {
		return nil, errors.New("command is required")
	}
	return reply(TypeRelayCommandSent, relayCommandResult{Forwarded: h.relay.SendGlobalCommand(in.Command, in.Message)})
}

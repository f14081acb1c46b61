package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/mcdev12/ergsync/go/internal/models"
	"github.com/mcdev12/ergsync/go/internal/race"
	"github.com/mcdev12/ergsync/go/internal/telemetry"
)

// Request types accepted from clients.
const (
	TypeGetRace            = "getRace"
	TypeGetActiveRace      = "getActiveRace"
	TypeGetState           = "get_state"
	TypeGetAllRaces        = "getAllRaces"
	TypeCreateRace         = "createRace"
	TypeUpdateRace         = "updateRace"
	TypeDeleteRace         = "deleteRace"
	TypeGetParticipants    = "getParticipants"
	TypeCreateParticipant  = "createParticipant"
	TypeUpdateParticipant  = "updateParticipant"
	TypeDeleteParticipants = "deleteParticipants"
	TypeCreateCadenceEvent = "createCadenceEvent"
	TypeGetCadenceEvents   = "getCadenceEvents"
	TypeTelemetry          = "telemetry"
	TypeRaceStatus         = "raceStatus"
	TypeRelayCommand       = "relayCommand"
)

// Response and broadcast types sent to clients.
const (
	TypeConnected           = "connected"
	TypeError               = "error"
	TypeRace                = "race"
	TypeActiveRace          = "activeRace"
	TypeRaceState           = "race_state"
	TypeParticipantsState   = "participants_state"
	TypeAllRaces            = "allRaces"
	TypeRaceCreated         = "raceCreated"
	TypeRaceUpdated         = "raceUpdated"
	TypeRaceUpdate          = "raceUpdate"
	TypeRaceDeleted         = "raceDeleted"
	TypeParticipants        = "participants"
	TypeParticipantCreated  = "participantCreated"
	TypeParticipantUpdated  = "participantUpdated"
	TypeParticipantUpdate   = "participantUpdate"
	TypeParticipantsDeleted = "participantsDeleted"
	TypeParticipantsUpdate  = "participantsUpdate"
	TypeCadenceEventCreated = "cadenceEventCreated"
	TypeCadenceEventUpdate  = "cadenceEventUpdate"
	TypeCadenceEvents       = "cadenceEvents"
	TypeTelemetryProcessed  = "telemetryProcessed"
	TypeRaceStatusHandled   = "raceStatusHandled"
	TypeRelayCommandSent    = "relayCommandSent"
)

const (
	msgUnknownType   = "Unknown message type"
	msgInvalidFormat = "Invalid message format"
)

// Message is the envelope of every frame the hub sends. Data is kept raw so
// an explicit null survives encoding.
type Message struct {
	Type         string          `json:"type"`
	Data         json.RawMessage `json:"data,omitempty"`
	Message      string          `json:"message,omitempty"`
	RequestType  string          `json:"request_type,omitempty"`
	ConnectionID string          `json:"connection_id,omitempty"`
}

func newMessage(msgType string, data interface{}) (*Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", msgType, err)
	}
	return &Message{Type: msgType, Data: raw}, nil
}

func errorMessage(requestType, text string) *Message {
	return &Message{Type: TypeError, Message: text, RequestType: requestType}
}

// envelope is the common shape of inbound frames. Handlers decode the fields they need.
type envelope struct {
	Type string `json:"type"`
}

type idRequest struct {
	ID string `json:"id"`
}

type raceIDRequest struct {
	RaceID string `json:"raceId"`
}

type createRaceRequest struct {
	Race *race.CreateRaceRequest `json:"race"`
}

type updateRaceRequest struct {
	ID      string         `json:"id"`
	Updates race.RacePatch `json:"updates"`
}

type createParticipantRequest struct {
	Participant *race.CreateParticipantRequest `json:"participant"`
}

type updateParticipantRequest struct {
	ID      string                `json:"id"`
	Updates race.ParticipantPatch `json:"updates"`
}

type createCadenceEventRequest struct {
	Event *race.CreateCadenceEventRequest `json:"event"`
}

type telemetryRequest struct {
	RaceID  string                 `json:"raceId"`
	Source  string                 `json:"source"`
	Samples []telemetry.LaneSample `json:"samples"`
}

type raceStatusRequest struct {
	State     int    `json:"state"`
	StateDesc string `json:"state_desc"`
}

type relayCommandRequest struct {
	Command string `json:"command"`
	Message string `json:"message"`
}

// RaceState is the get_state answer: the active race and its participants.
type RaceState struct {
	Race         *models.Race         `json:"race"`
	Participants []models.Participant `json:"participants"`
}

// TelemetrySummary reports what one telemetry batch did.
type TelemetrySummary struct {
	RaceID       string                `json:"race_id"`
	Accepted     int                   `json:"accepted"`
	Skipped      int                   `json:"skipped"`
	Failed       int                   `json:"failed"`
	Error        string                `json:"error,omitempty"`
	Participants []models.Participant  `json:"participants"`
	Standings    []models.TeamStanding `json:"standings,omitempty"`
	Relayed      bool                  `json:"relayed"`
}

type deletedRace struct {
	ID string `json:"id"`
}

type deletedParticipants struct {
	RaceID string `json:"raceId"`
}

type relayCommandResult struct {
	Forwarded bool `json:"forwarded"`
}

package relay

import (
	"encoding/json"
	"math"

	"github.com/mcdev12/ergsync/go/internal/models"
	"github.com/mcdev12/ergsync/go/internal/wslink"
	"github.com/rs/zerolog/log"
)

// DefaultGame is the LED game the relay renders.
const DefaultGame = "nomatrouver"

// Link is the outbound connection the forwarder writes to.
type Link interface {
	Send(data []byte) error
	Connected() bool
	Stats() wslink.Stats
	Close() error
}

// Player is one lane on the LED panels.
type Player struct {
	ID         int     `json:"id"`
	Rate       float64 `json:"rate"`
	TargetRate bool    `json:"target-rate"`
	Distance   float64 `json:"distance"`
}

// GameData is the payload of a send_game_data message.
type GameData struct {
	Game       string   `json:"game"`
	TargetRate int      `json:"target-rate"`
	Players    []Player `json:"players"`
}

type gameDataMessage struct {
	Type    string   `json:"type"`
	Payload GameData `json:"payload"`
}

type globalCommandMessage struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Message string `json:"message"`
}

// Forwarder pushes derived race state to the LED relay. Delivery is at most
// once: anything sent while the relay is unreachable is dropped and logged.
type Forwarder struct {
	link Link
	game string
}

// NewForwarder creates a forwarder writing to link
func NewForwarder(link Link, game string) *Forwarder {
	if game == "" {
		game = DefaultGame
	}
	return &Forwarder{link: link, game: game}
}

// Forward sends payload as one JSON frame. It reports whether the frame was
// written; failures are logged and never returned.
func (f *Forwarder) Forward(payload interface{}) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal relay payload")
		return false
	}
	return f.link.Send(data) == nil
}

// SendGameData forwards the participants' live state for race.
func (f *Forwarder) SendGameData(race *models.Race, participants []models.Participant) bool {
	return f.Forward(gameDataMessage{
		Type:    "send_game_data",
		Payload: BuildGameData(f.game, race, participants),
	})
}

// SendGlobalCommand forwards a free-form command to every panel.
func (f *Forwarder) SendGlobalCommand(command, message string) bool {
	return f.Forward(globalCommandMessage{
		Type:    "send_global_command",
		Command: command,
		Message: message,
	})
}

// Connected reports whether the relay link is open.
func (f *Forwarder) Connected() bool {
	return f.link.Connected()
}

// Stats returns the relay link counters.
func (f *Forwarder) Stats() wslink.Stats {
	return f.link.Stats()
}

// Close releases the relay link and any pending reconnect.
func (f *Forwarder) Close() error {
	return f.link.Close()
}

// BuildGameData maps participants to LED players. Player ids are lane
// numbers: the participant's 1-based position in insertion order.
func BuildGameData(game string, race *models.Race, participants []models.Participant) GameData {
	data := GameData{
		Game:    game,
		Players: make([]Player, 0, len(participants)),
	}
	if race != nil {
		data.TargetRate = race.TargetCadence
	}
	for i, p := range participants {
		data.Players = append(data.Players, Player{
			ID:         i + 1,
			Rate:       round2(float64(p.CurrentCadence)),
			TargetRate: p.IsInCadence,
			Distance:   round2(p.TotalDistanceInCadence),
		})
	}
	return data
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// HandleMessage logs what the relay reports back.
func HandleMessage(data []byte) {
	var msg struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn().Err(err).Msg("unreadable relay message")
		return
	}
	switch msg.Type {
	case "error":
		log.Warn().Str("message", msg.Message).Msg("relay reported an error")
	case "game_data_processed":
		log.Debug().Msg("relay processed game data")
	default:
		log.Debug().Str("type", msg.Type).Msg("relay message")
	}
}

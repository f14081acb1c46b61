package models

import (
	"encoding/json"
	"time"
)

// CadenceEvent is one accepted telemetry sample in the append-only audit ledger.
type CadenceEvent struct {
	ID             string          `json:"id"`
	ParticipantID  string          `json:"participant_id"`
	RaceID         string          `json:"race_id"`
	Cadence        int             `json:"cadence"`
	WasInCadence   bool            `json:"was_in_cadence"`
	DistanceGained float64         `json:"distance_gained"`
	Timestamp      time.Time       `json:"timestamp"`
	Sample         json.RawMessage `json:"sample,omitempty"` // raw device fields kept for replay
}

package models

import (
	"time"
)

// Participant is a rower taking part in a race. Participants are owned by
// their race and removed with it.
type Participant struct {
	ID                     string    `json:"id"`
	RaceID                 string    `json:"race_id"`
	Name                   string    `json:"name"`
	TeamID                 *int      `json:"team_id"`
	TotalDistanceInCadence float64   `json:"total_distance_in_cadence"`
	CurrentCadence         int       `json:"current_cadence"`
	IsInCadence            bool      `json:"is_in_cadence"`
	CreatedAt              time.Time `json:"created_at"`
}

package models

import (
	"time"
)

// RaceMode defines how participants are ranked.
type RaceMode string

const (
	RaceModeSolo RaceMode = "solo"
	RaceModeTeam RaceMode = "team"
)

// Valid reports whether m is one of the known modes.
func (m RaceMode) Valid() bool {
	switch m {
	case RaceModeSolo, RaceModeTeam:
		return true
	default:
		return false
	}
}

// RaceStatus defines the lifecycle state of a race.
type RaceStatus string

const (
	RaceStatusSetup     RaceStatus = "setup"
	RaceStatusActive    RaceStatus = "active"
	RaceStatusCompleted RaceStatus = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s RaceStatus) Valid() bool {
	_, ok := raceStatusOrder[s]
	return ok
}

var raceStatusOrder = map[RaceStatus]int{
	RaceStatusSetup:     0,
	RaceStatusActive:    1,
	RaceStatusCompleted: 2,
}

// CanTransitionTo reports whether a race may move from s to next.
// Transitions only go forward (setup -> active -> completed); staying put is allowed.
func (s RaceStatus) CanTransitionTo(next RaceStatus) bool {
	from, ok := raceStatusOrder[s]
	if !ok {
		return false
	}
	to, ok := raceStatusOrder[next]
	if !ok {
		return false
	}
	return to >= from
}

// Race represents one rowing event with its target cadence band.
type Race struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Mode              RaceMode   `json:"mode"`
	TargetCadence     int        `json:"target_cadence"`
	CadenceTolerance  int        `json:"cadence_tolerance"`
	DurationSeconds   int        `json:"duration_seconds"`
	Status            RaceStatus `json:"status"`
	StartedAt         *time.Time `json:"started_at"`
	EndedAt           *time.Time `json:"ended_at"`
	LastCadenceChange *time.Time `json:"last_cadence_change"`
	CreatedAt         time.Time  `json:"created_at"`
}

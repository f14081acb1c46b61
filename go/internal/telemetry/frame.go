package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// ErgRace race_status states the hub reacts to.
const (
	StateRaceRunning  = 9
	StateRaceAborted  = 10
	StateRaceComplete = 11
)

// LaneSample is one lane's reading as carried in a hub telemetry command.
// Lanes are 1-based. A sample without a cadence carries no stroke and is skipped.
type LaneSample struct {
	Lane      int        `json:"lane"`
	Cadence   *int       `json:"cadence"`
	Distance  *float64   `json:"distance,omitempty"`
	Time      *float64   `json:"time,omitempty"`
	Power     *float64   `json:"power,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// RaceStatus is ErgRace's race state machine position.
type RaceStatus struct {
	State     int    `json:"state"`
	StateDesc string `json:"state_desc"`
}

// RaceDefinition describes the race configured on the ErgRace side.
type RaceDefinition struct {
	EventName    string `json:"event_name"`
	NameLong     string `json:"name_long"`
	RaceType     string `json:"race_type"`
	Duration     Number `json:"duration"`
	DurationType string `json:"duration_type"`
	Boats        []Boat `json:"boats"`
}

// Boat is one lane assignment in a race definition.
type Boat struct {
	LaneNumber  int    `json:"lane_number"`
	Name        string `json:"name"`
	MachineType string `json:"machine_type"`
	Affiliation string `json:"affiliation,omitempty"`
}

// Frame is everything one ErgRace message carried.
type Frame struct {
	Samples    []LaneSample
	Status     *RaceStatus
	Definition *RaceDefinition
}

// Empty reports whether the frame carried nothing the hub acts on.
func (f Frame) Empty() bool {
	return len(f.Samples) == 0 && f.Status == nil && f.Definition == nil
}

type laneReading struct {
	Lane   Number `json:"lane"`
	SPM    Number `json:"spm"`
	Meters Number `json:"meters"`
	Time   Number `json:"time"`
	Watts  Number `json:"watts"`
}

type wireFrame struct {
	RaceData *struct {
		Data []laneReading `json:"data"`
	} `json:"race_data"`
	RaceStatus     *RaceStatus     `json:"race_status"`
	RaceDefinition *RaceDefinition `json:"race_definition"`

	// single monitor frames
	SPM      Number `json:"SPM"`
	Distance Number `json:"Distance"`
	Time     Number `json:"Time"`
	Watts    Number `json:"Watts"`
}

// ParseFrame decodes one ErgRace message. Lane samples are stamped with at
// and returned in lane order. A single-monitor frame is reported as lane 1.
func ParseFrame(data []byte, at time.Time) (Frame, error) {
	var f Frame
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("{}")) {
		return f, nil
	}

	var w wireFrame
	if err := json.Unmarshal(raw, &w); err != nil {
		return f, fmt.Errorf("failed to decode ergrace frame: %w", err)
	}

	f.Status = w.RaceStatus
	f.Definition = w.RaceDefinition

	stamp := func() *time.Time {
		t := at.UTC()
		return &t
	}

	switch {
	case w.RaceData != nil:
		for _, r := range w.RaceData.Data {
			if !r.Lane.Valid || !r.SPM.Valid {
				continue
			}
			f.Samples = append(f.Samples, LaneSample{
				Lane:      int(r.Lane.Value),
				Cadence:   r.SPM.Int(),
				Distance:  r.Meters.NonZero(),
				Time:      r.Time.NonZero(),
				Power:     r.Watts.NonZero(),
				Timestamp: stamp(),
			})
		}
		sort.SliceStable(f.Samples, func(i, j int) bool {
			return f.Samples[i].Lane < f.Samples[j].Lane
		})
	case w.SPM.Valid:
		f.Samples = append(f.Samples, LaneSample{
			Lane:      1,
			Cadence:   w.SPM.Int(),
			Distance:  w.Distance.NonZero(),
			Time:      w.Time.NonZero(),
			Power:     w.Watts.NonZero(),
			Timestamp: stamp(),
		})
	}
	return f, nil
}

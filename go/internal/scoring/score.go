package scoring

import (
	"time"
)

// Sample is one cadence reading for a participant. Optional device fields
// are nil when the ergometer did not report them.
type Sample struct {
	Cadence        int       `json:"cadence"`
	DeviceDistance *float64  `json:"distance,omitempty"`
	Time           *float64  `json:"time,omitempty"`
	Power          *float64  `json:"power,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Streak is the per-participant scoring state carried between samples.
// Count is zero while the participant is out of band.
type Streak struct {
	Count              int
	LastInBandAt       time.Time
	LastDeviceDistance *float64
}

// Result is the outcome of scoring one sample.
type Result struct {
	InBand    bool
	Increment float64
	Streak    Streak
}

// Score is the scoring state machine. It has no side effects: the same
// strategy, band, streak and sample always give the same result.
//
// Out of band resets the streak and earns nothing. The first in-band sample
// after that earns exactly 1. Later in-band samples earn what the strategy
// says, never less than 1.
func Score(strategy Strategy, band Band, prev Streak, s Sample) Result {
	if !band.Contains(s.Cadence) {
		next := prev
		next.Count = 0
		return Result{InBand: false, Increment: 0, Streak: next}
	}

	increment := 1.0
	if prev.Count > 0 {
		if credit := strategy.Continued(prev, s); credit > 1 {
			increment = credit
		}
	}

	next := Streak{
		Count:              prev.Count + 1,
		LastInBandAt:       s.Timestamp,
		LastDeviceDistance: prev.LastDeviceDistance,
	}
	if s.DeviceDistance != nil {
		d := *s.DeviceDistance
		next.LastDeviceDistance = &d
	}
	return Result{InBand: true, Increment: increment, Streak: next}
}

// Step is one replayed sample together with the band in force when it arrived.
type Step struct {
	Band   Band
	Sample Sample
}

// Replay scores steps in order from an empty streak and returns the summed
// distance and the final result.
func Replay(strategy Strategy, steps []Step) (float64, Result) {
	var (
		total float64
		last  Result
	)
	for _, st := range steps {
		last = Score(strategy, st.Band, last.Streak, st.Sample)
		total += last.Increment
	}
	return total, last
}

package scoring

import (
	"encoding/json"
	"fmt"

	"github.com/mcdev12/ergsync/go/internal/models"
)

// ReplayEvents rescores a race's cadence ledger with strategy and returns
// the distance each participant would have earned. Events must be in
// chronological order, as the store lists them, and band is taken to hold
// for the whole race; use Replay with explicit steps when it changed.
//
// The recorded cadence and timestamp are authoritative. Device fields come
// from the stored raw sample when there is one.
func ReplayEvents(strategy Strategy, band Band, events []models.CadenceEvent) (map[string]float64, error) {
	totals := make(map[string]float64)
	streaks := make(map[string]Streak)

	for _, e := range events {
		var s Sample
		if len(e.Sample) > 0 {
			if err := json.Unmarshal(e.Sample, &s); err != nil {
				return nil, fmt.Errorf("failed to decode sample of event %s: %w", e.ID, err)
			}
		}
		s.Cadence = e.Cadence
		s.Timestamp = e.Timestamp

		res := Score(strategy, band, streaks[e.ParticipantID], s)
		streaks[e.ParticipantID] = res.Streak
		totals[e.ParticipantID] += res.Increment
	}
	return totals, nil
}

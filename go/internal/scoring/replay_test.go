package scoring

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/mcdev12/ergsync/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ledgerEvent(t *testing.T, participantID string, cadence int, at time.Time, distance *float64) models.CadenceEvent {
	t.Helper()
	e := models.CadenceEvent{
		ID:            participantID + at.Format(time.RFC3339),
		ParticipantID: participantID,
		RaceID:        "race-1",
		Cadence:       cadence,
		Timestamp:     at,
	}
	if distance != nil {
		raw, err := json.Marshal(map[string]interface{}{"lane": 1, "cadence": cadence, "distance": *distance})
		require.NoError(t, err)
		e.Sample = raw
	}
	return e
}

func TestReplayEvents(t *testing.T) {
	start := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	band := Band{Target: 22, Tolerance: 2}

	events := []models.CadenceEvent{
		ledgerEvent(t, "ana", 22, start, floatPtr(100)),
		ledgerEvent(t, "ben", 30, start, floatPtr(90)),
		ledgerEvent(t, "ana", 23, start.Add(3*time.Second), floatPtr(112.4)),
		ledgerEvent(t, "ben", 22, start.Add(3*time.Second), nil),
		ledgerEvent(t, "ana", 31, start.Add(6*time.Second), floatPtr(120)),
		ledgerEvent(t, "ana", 21, start.Add(8*time.Second), floatPtr(130)),
	}

	t.Run("elapsed time", func(t *testing.T) {
		totals, err := ReplayEvents(ElapsedTime{}, band, events)
		require.NoError(t, err)
		// ana: 1, +3, out, 1 again after the reset
		assert.Equal(t, 5.0, totals["ana"])
		assert.Equal(t, 1.0, totals["ben"])
	})

	t.Run("device distance", func(t *testing.T) {
		totals, err := ReplayEvents(DeviceDistance{}, band, events)
		require.NoError(t, err)
		// ana: 1, +12 from 100 -> 112.4, out, 1
		assert.Equal(t, 14.0, totals["ana"])
		assert.Equal(t, 1.0, totals["ben"])
	})

	t.Run("deterministic", func(t *testing.T) {
		first, err := ReplayEvents(ElapsedTime{}, band, events)
		require.NoError(t, err)
		second, err := ReplayEvents(ElapsedTime{}, band, events)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestReplayEventsRejectsCorruptSample(t *testing.T) {
	e := models.CadenceEvent{ID: "e1", ParticipantID: "ana", Cadence: 22, Sample: json.RawMessage(`{"distance":"far"`)}
	_, err := ReplayEvents(ElapsedTime{}, Band{Target: 22, Tolerance: 2}, []models.CadenceEvent{e})
	assert.Error(t, err)
}

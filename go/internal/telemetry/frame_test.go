package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func TestParseFrameRaceData(t *testing.T) {
	frame, err := ParseFrame([]byte(`{
		"race_data": {
			"time": 12.3,
			"data": [
				{"lane": 2, "spm": "24", "meters": "105", "time": 12, "watts": 180},
				{"lane": 1, "spm": 22.7, "meters": 98.4, "time": 12, "watts": 0},
				{"lane": 3, "meters": 10}
			]
		}
	}`), at)
	require.NoError(t, err)
	require.Len(t, frame.Samples, 2)

	first := frame.Samples[0]
	assert.Equal(t, 1, first.Lane)
	require.NotNil(t, first.Cadence)
	assert.Equal(t, 22, *first.Cadence)
	require.NotNil(t, first.Distance)
	assert.Equal(t, 98.0, *first.Distance)
	assert.Nil(t, first.Power)
	require.NotNil(t, first.Timestamp)
	assert.True(t, first.Timestamp.Equal(at))

	second := frame.Samples[1]
	assert.Equal(t, 2, second.Lane)
	assert.Equal(t, 24, *second.Cadence)
	assert.Equal(t, 105.0, *second.Distance)
	assert.Equal(t, 180.0, *second.Power)
}

func TestParseFrameSingleMonitor(t *testing.T) {
	frame, err := ParseFrame([]byte(`{"SPM":"21","Distance":"340","Time":"61","Watts":"150"}`), at)
	require.NoError(t, err)
	require.Len(t, frame.Samples, 1)

	s := frame.Samples[0]
	assert.Equal(t, 1, s.Lane)
	assert.Equal(t, 21, *s.Cadence)
	assert.Equal(t, 340.0, *s.Distance)
	assert.Equal(t, 61.0, *s.Time)
	assert.Equal(t, 150.0, *s.Power)
}

func TestParseFrameStatusAndDefinition(t *testing.T) {
	frame, err := ParseFrame([]byte(`{
		"race_status": {"state": 9, "state_desc": "race running"},
		"race_definition": {"event_name": "Sync", "duration": "300", "duration_type": "time",
			"boats": [{"lane_number": 1, "name": "Ana", "machine_type": "row"}]}
	}`), at)
	require.NoError(t, err)
	assert.Empty(t, frame.Samples)
	require.NotNil(t, frame.Status)
	assert.Equal(t, StateRaceRunning, frame.Status.State)
	require.NotNil(t, frame.Definition)
	assert.Equal(t, 300.0, frame.Definition.Duration.Value)
	assert.Len(t, frame.Definition.Boats, 1)
	assert.False(t, frame.Empty())
}

func TestParseFrameEmptyAndInvalid(t *testing.T) {
	for _, in := range []string{"", "{}", "  ", `{"unrelated":true}`} {
		frame, err := ParseFrame([]byte(in), at)
		require.NoError(t, err, in)
		assert.True(t, frame.Empty(), in)
	}

	_, err := ParseFrame([]byte(`{"SPM":"fast"}`), at)
	assert.Error(t, err)

	_, err = ParseFrame([]byte(`not json`), at)
	assert.Error(t, err)
}

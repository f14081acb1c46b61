package main

import (
	"os"
	"strings"
	"testing"

	"github.com/mcdev12/ergsync/go/internal/models"
	"github.com/mcdev12/ergsync/go/internal/race"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFixture(t *testing.T) {
	data, err := os.ReadFile("race.yaml")
	require.NoError(t, err)

	f, err := parseFixture(data)
	require.NoError(t, err)

	assert.Equal(t, "Friday sprint", f.Race.Name)
	assert.Equal(t, models.RaceModeTeam, f.Race.Mode)
	assert.Equal(t, 22, f.Race.TargetCadence)
	assert.NotEmpty(t, f.Race.ID)
	require.Len(t, f.Participants, 4)
	assert.Equal(t, "Lane 1", f.Participants[0].Name)
	require.NotNil(t, f.Participants[3].TeamID)
	assert.Equal(t, 2, *f.Participants[3].TeamID)
	assert.NotEqual(t, f.Participants[0].ID, f.Participants[1].ID)
}

func TestParseFixtureRejects(t *testing.T) {
	cases := map[string]string{
		"no name":      "race:\n  mode: solo\n",
		"bad mode":     "race:\n  name: x\n  mode: relay\n",
		"tolerance":    "race:\n  name: x\n  cadence_tolerance: -1\n",
		"nameless row": "race:\n  name: x\nparticipants:\n  - team_id: 1\n",
		"not yaml":     "race: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseFixture([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParseFixtureDefaultsToSolo(t *testing.T) {
	f, err := parseFixture([]byte("race:\n  id: r1\n  name: Heat\n"))
	require.NoError(t, err)
	assert.Equal(t, "r1", f.Race.ID)
	assert.Equal(t, models.RaceModeSolo, f.Race.Mode)
	assert.Empty(t, f.Participants)
}

func TestSchemaIsIdempotentForSeeding(t *testing.T) {
	schema := race.Schema()
	for _, table := range []string{"races", "participants", "cadence_events"} {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table)
	}
	assert.NotContains(t, strings.ToUpper(schema), "DROP ")
}

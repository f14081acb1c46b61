package race

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/ergsync/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func newTestApp() (*App, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(epoch)
	return NewApp(NewMemoryRepository(), clock), clock
}

func createTestRace(t *testing.T, app *App, status models.RaceStatus) *models.Race {
	t.Helper()
	race, err := app.CreateRace(context.Background(), CreateRaceRequest{
		Name:             "Morning sync",
		Mode:             models.RaceModeTeam,
		TargetCadence:    22,
		CadenceTolerance: 2,
		DurationSeconds:  300,
		Status:           status,
	})
	require.NoError(t, err)
	return race
}

func createTestParticipant(t *testing.T, app *App, raceID, name string, teamID *int) *models.Participant {
	t.Helper()
	p, err := app.CreateParticipant(context.Background(), CreateParticipantRequest{
		RaceID: raceID,
		Name:   name,
		TeamID: teamID,
	})
	require.NoError(t, err)
	return p
}

func intPtr(v int) *int { return &v }

func TestCreateRace(t *testing.T) {
	ctx := context.Background()

	t.Run("fills defaults", func(t *testing.T) {
		app, _ := newTestApp()
		race := createTestRace(t, app, "")

		assert.NotEmpty(t, race.ID)
		assert.Equal(t, models.RaceStatusSetup, race.Status)
		assert.True(t, race.CreatedAt.Equal(epoch))
		assert.Nil(t, race.StartedAt)
		assert.Nil(t, race.LastCadenceChange)
	})

	t.Run("keeps client supplied id", func(t *testing.T) {
		app, _ := newTestApp()
		race, err := app.CreateRace(ctx, CreateRaceRequest{
			ID:     "race-from-client",
			Mode:   models.RaceModeSolo,
			Status: models.RaceStatusActive,
		})
		require.NoError(t, err)
		assert.Equal(t, "race-from-client", race.ID)
		assert.Equal(t, models.RaceStatusActive, race.Status)
	})

	t.Run("rejects bad fields", func(t *testing.T) {
		cases := []struct {
			name  string
			req   CreateRaceRequest
			field string
		}{
			{"unknown mode", CreateRaceRequest{Mode: "relay"}, "mode"},
			{"missing mode", CreateRaceRequest{}, "mode"},
			{"unknown status", CreateRaceRequest{Mode: models.RaceModeSolo, Status: "paused"}, "status"},
			{"negative tolerance", CreateRaceRequest{Mode: models.RaceModeSolo, CadenceTolerance: -1}, "cadence_tolerance"},
			{"negative duration", CreateRaceRequest{Mode: models.RaceModeSolo, DurationSeconds: -5}, "duration_seconds"},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				app, _ := newTestApp()
				_, err := app.CreateRace(ctx, tc.req)
				require.Error(t, err)

				var ve *ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, tc.field, ve.Field)
				assert.True(t, IsValidation(err))
			})
		}
	})
}

func TestListRacesAndActiveRace(t *testing.T) {
	ctx := context.Background()
	app, clock := newTestApp()

	first := createTestRace(t, app, models.RaceStatusActive)
	clock.Advance(time.Minute)
	second := createTestRace(t, app, models.RaceStatusSetup)
	clock.Advance(time.Minute)
	third := createTestRace(t, app, models.RaceStatusActive)

	races, err := app.ListRaces(ctx)
	require.NoError(t, err)
	require.Len(t, races, 3)
	assert.Equal(t, []string{third.ID, second.ID, first.ID}, []string{races[0].ID, races[1].ID, races[2].ID})

	active, err := app.GetActiveRace(ctx)
	require.NoError(t, err)
	assert.Equal(t, third.ID, active.ID)

	_, err = app.UpdateRace(ctx, third.ID, RacePatch{Status: statusPtr(models.RaceStatusCompleted)})
	require.NoError(t, err)

	active, err = app.GetActiveRace(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)
}

func TestGetActiveRaceNone(t *testing.T) {
	app, _ := newTestApp()
	createTestRace(t, app, models.RaceStatusSetup)

	_, err := app.GetActiveRace(context.Background())
	assert.ErrorIs(t, err, ErrRaceNotFound)
	assert.True(t, IsNotFound(err))
}

func statusPtr(s models.RaceStatus) *models.RaceStatus { return &s }

func TestUpdateRace(t *testing.T) {
	ctx := context.Background()

	t.Run("empty patch is a no-op", func(t *testing.T) {
		app, clock := newTestApp()
		race := createTestRace(t, app, models.RaceStatusActive)
		clock.Advance(time.Second)

		var patch RacePatch
		require.NoError(t, json.Unmarshal([]byte(`{}`), &patch))

		updated, err := app.UpdateRace(ctx, race.ID, patch)
		require.NoError(t, err)
		assert.Equal(t, race, updated)

		stored, err := app.GetRace(ctx, race.ID)
		require.NoError(t, err)
		assert.Equal(t, race, stored)
	})

	t.Run("only supplied fields change", func(t *testing.T) {
		app, _ := newTestApp()
		race := createTestRace(t, app, models.RaceStatusSetup)

		var patch RacePatch
		require.NoError(t, json.Unmarshal([]byte(`{"name":"Evening sync"}`), &patch))

		updated, err := app.UpdateRace(ctx, race.ID, patch)
		require.NoError(t, err)

		want := *race
		want.Name = "Evening sync"
		assert.Equal(t, &want, updated)
	})

	t.Run("target change refreshes last_cadence_change", func(t *testing.T) {
		app, clock := newTestApp()
		race := createTestRace(t, app, models.RaceStatusActive)
		clock.Advance(90 * time.Second)

		var patch RacePatch
		require.NoError(t, json.Unmarshal([]byte(`{"target_cadence":26}`), &patch))
		_, err := app.UpdateRace(ctx, race.ID, patch)
		require.NoError(t, err)

		got, err := app.GetRace(ctx, race.ID)
		require.NoError(t, err)
		assert.Equal(t, 26, got.TargetCadence)
		require.NotNil(t, got.LastCadenceChange)
		assert.True(t, got.LastCadenceChange.Equal(epoch.Add(90*time.Second)))
	})

	t.Run("unchanged band leaves last_cadence_change alone", func(t *testing.T) {
		app, clock := newTestApp()
		race := createTestRace(t, app, models.RaceStatusActive)
		clock.Advance(time.Second)

		got, err := app.UpdateRace(ctx, race.ID, RacePatch{TargetCadence: intPtr(22), CadenceTolerance: intPtr(2)})
		require.NoError(t, err)
		assert.Nil(t, got.LastCadenceChange)
	})

	t.Run("explicit last_cadence_change wins", func(t *testing.T) {
		app, clock := newTestApp()
		race := createTestRace(t, app, models.RaceStatusActive)
		clock.Advance(time.Hour)

		stamp := epoch.Add(5 * time.Second)
		got, err := app.UpdateRace(ctx, race.ID, RacePatch{
			CadenceTolerance:  intPtr(3),
			LastCadenceChange: NullableOf(stamp),
		})
		require.NoError(t, err)
		require.NotNil(t, got.LastCadenceChange)
		assert.True(t, got.LastCadenceChange.Equal(stamp))
	})

	t.Run("explicit null clears a timestamp", func(t *testing.T) {
		app, _ := newTestApp()
		started := epoch
		race, err := app.CreateRace(ctx, CreateRaceRequest{
			Mode:      models.RaceModeSolo,
			Status:    models.RaceStatusActive,
			StartedAt: &started,
		})
		require.NoError(t, err)
		require.NotNil(t, race.StartedAt)

		var patch RacePatch
		require.NoError(t, json.Unmarshal([]byte(`{"started_at":null}`), &patch))
		assert.True(t, patch.StartedAt.Set)

		got, err := app.UpdateRace(ctx, race.ID, patch)
		require.NoError(t, err)
		assert.Nil(t, got.StartedAt)
	})

	t.Run("status only moves forward", func(t *testing.T) {
		app, _ := newTestApp()
		race := createTestRace(t, app, models.RaceStatusActive)

		_, err := app.UpdateRace(ctx, race.ID, RacePatch{Status: statusPtr(models.RaceStatusSetup)})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "status", ve.Field)

		got, err := app.UpdateRace(ctx, race.ID, RacePatch{Status: statusPtr(models.RaceStatusCompleted)})
		require.NoError(t, err)
		assert.Equal(t, models.RaceStatusCompleted, got.Status)
	})

	t.Run("negative tolerance rejected", func(t *testing.T) {
		app, _ := newTestApp()
		race := createTestRace(t, app, models.RaceStatusSetup)

		_, err := app.UpdateRace(ctx, race.ID, RacePatch{CadenceTolerance: intPtr(-1)})
		assert.True(t, IsValidation(err))
	})

	t.Run("unknown race", func(t *testing.T) {
		app, _ := newTestApp()
		_, err := app.UpdateRace(ctx, "missing", RacePatch{Name: new(string)})
		assert.ErrorIs(t, err, ErrRaceNotFound)
	})
}

func TestDeleteRaceCascades(t *testing.T) {
	ctx := context.Background()
	app, _ := newTestApp()

	race := createTestRace(t, app, models.RaceStatusActive)
	other := createTestRace(t, app, models.RaceStatusSetup)
	p := createTestParticipant(t, app, race.ID, "Ana", nil)
	kept := createTestParticipant(t, app, other.ID, "Ben", nil)

	_, _, err := app.RecordSample(ctx, SampleRecord{
		ParticipantID: p.ID, RaceID: race.ID, Cadence: 22, InCadence: true, Increment: 1,
	})
	require.NoError(t, err)

	require.NoError(t, app.DeleteRace(ctx, race.ID))

	_, err = app.GetRace(ctx, race.ID)
	assert.ErrorIs(t, err, ErrRaceNotFound)

	_, err = app.GetParticipant(ctx, p.ID)
	assert.ErrorIs(t, err, ErrParticipantNotFound)

	participants, err := app.ListParticipants(ctx, race.ID)
	require.NoError(t, err)
	assert.Empty(t, participants)

	events, err := app.ListCadenceEvents(ctx, race.ID)
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = app.GetParticipant(ctx, kept.ID)
	assert.NoError(t, err)

	// deleting again is harmless
	assert.NoError(t, app.DeleteRace(ctx, race.ID))
}

func TestDeleteParticipants(t *testing.T) {
	ctx := context.Background()
	app, _ := newTestApp()

	race := createTestRace(t, app, models.RaceStatusActive)
	p := createTestParticipant(t, app, race.ID, "Ana", nil)
	_, _, err := app.RecordSample(ctx, SampleRecord{ParticipantID: p.ID, RaceID: race.ID, Cadence: 22, InCadence: true, Increment: 1})
	require.NoError(t, err)

	require.NoError(t, app.DeleteParticipants(ctx, race.ID))

	participants, err := app.ListParticipants(ctx, race.ID)
	require.NoError(t, err)
	assert.Empty(t, participants)

	events, err := app.ListCadenceEvents(ctx, race.ID)
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = app.GetRace(ctx, race.ID)
	assert.NoError(t, err)
}

func TestParticipants(t *testing.T) {
	ctx := context.Background()

	t.Run("listed in insertion order", func(t *testing.T) {
		app, _ := newTestApp()
		race := createTestRace(t, app, models.RaceStatusSetup)
		names := []string{"Chloé", "Ana", "Ben"}
		for _, n := range names {
			createTestParticipant(t, app, race.ID, n, nil)
		}

		participants, err := app.ListParticipants(ctx, race.ID)
		require.NoError(t, err)
		require.Len(t, participants, 3)
		for i, n := range names {
			assert.Equal(t, n, participants[i].Name)
		}
	})

	t.Run("requires an existing race", func(t *testing.T) {
		app, _ := newTestApp()
		_, err := app.CreateParticipant(ctx, CreateParticipantRequest{RaceID: "nope", Name: "Ana"})
		assert.ErrorIs(t, err, ErrRaceNotFound)
	})

	t.Run("empty patch is a no-op", func(t *testing.T) {
		app, _ := newTestApp()
		race := createTestRace(t, app, models.RaceStatusSetup)
		p := createTestParticipant(t, app, race.ID, "Ana", intPtr(1))

		got, err := app.UpdateParticipant(ctx, p.ID, ParticipantPatch{})
		require.NoError(t, err)
		assert.Equal(t, p, got)
	})

	t.Run("team_id null clears the team", func(t *testing.T) {
		app, _ := newTestApp()
		race := createTestRace(t, app, models.RaceStatusSetup)
		p := createTestParticipant(t, app, race.ID, "Ana", intPtr(1))

		var patch ParticipantPatch
		require.NoError(t, json.Unmarshal([]byte(`{"team_id":null}`), &patch))

		got, err := app.UpdateParticipant(ctx, p.ID, patch)
		require.NoError(t, err)
		assert.Nil(t, got.TeamID)
		assert.Equal(t, "Ana", got.Name)
	})

	t.Run("total never decreases", func(t *testing.T) {
		app, _ := newTestApp()
		race := createTestRace(t, app, models.RaceStatusActive)
		p := createTestParticipant(t, app, race.ID, "Ana", nil)

		total := 10.0
		_, err := app.UpdateParticipant(ctx, p.ID, ParticipantPatch{TotalDistanceInCadence: &total})
		require.NoError(t, err)

		lower := 4.0
		_, err = app.UpdateParticipant(ctx, p.ID, ParticipantPatch{TotalDistanceInCadence: &lower})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "total_distance_in_cadence", ve.Field)
	})

	t.Run("returned values are copies", func(t *testing.T) {
		app, _ := newTestApp()
		race := createTestRace(t, app, models.RaceStatusSetup)
		p := createTestParticipant(t, app, race.ID, "Ana", intPtr(1))

		*p.TeamID = 9
		got, err := app.GetParticipant(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, *got.TeamID)
	})
}

func TestCadenceEvents(t *testing.T) {
	ctx := context.Background()
	app, clock := newTestApp()

	race := createTestRace(t, app, models.RaceStatusActive)
	other := createTestRace(t, app, models.RaceStatusActive)
	p := createTestParticipant(t, app, race.ID, "Ana", nil)

	late := epoch.Add(10 * time.Second)
	_, err := app.CreateCadenceEvent(ctx, CreateCadenceEventRequest{
		ParticipantID: p.ID, RaceID: race.ID, Cadence: 23, WasInCadence: true, DistanceGained: 2, Timestamp: &late,
	})
	require.NoError(t, err)

	clock.Advance(time.Second)
	early, err := app.CreateCadenceEvent(ctx, CreateCadenceEventRequest{
		ParticipantID: p.ID, RaceID: race.ID, Cadence: 22, WasInCadence: true, DistanceGained: 1,
	})
	require.NoError(t, err)
	assert.True(t, early.Timestamp.Equal(epoch.Add(time.Second)))

	events, err := app.ListCadenceEvents(ctx, race.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 22, events[0].Cadence)
	assert.Equal(t, 23, events[1].Cadence)

	_, err = app.CreateCadenceEvent(ctx, CreateCadenceEventRequest{ParticipantID: p.ID, RaceID: other.ID, Cadence: 22})
	assert.True(t, IsValidation(err))

	_, err = app.CreateCadenceEvent(ctx, CreateCadenceEventRequest{ParticipantID: p.ID, RaceID: race.ID, DistanceGained: -1})
	assert.True(t, IsValidation(err))

	_, err = app.CreateCadenceEvent(ctx, CreateCadenceEventRequest{ParticipantID: "ghost", RaceID: race.ID})
	assert.ErrorIs(t, err, ErrParticipantNotFound)
}

func TestRecordSampleKeepsLedgerInStep(t *testing.T) {
	ctx := context.Background()
	app, clock := newTestApp()

	race := createTestRace(t, app, models.RaceStatusActive)
	p := createTestParticipant(t, app, race.ID, "Ana", nil)

	samples := []SampleRecord{
		{Cadence: 22, InCadence: true, Increment: 1},
		{Cadence: 23, InCadence: true, Increment: 1},
		{Cadence: 30, InCadence: false, Increment: 0},
		{Cadence: 21, InCadence: true, Increment: 1},
		{Cadence: 22, InCadence: true, Increment: 3},
	}
	var last *models.Participant
	for _, s := range samples {
		clock.Advance(time.Second)
		s.ParticipantID = p.ID
		s.RaceID = race.ID
		var err error
		last, _, err = app.RecordSample(ctx, s)
		require.NoError(t, err)
	}

	assert.Equal(t, 6.0, last.TotalDistanceInCadence)
	assert.Equal(t, 22, last.CurrentCadence)
	assert.True(t, last.IsInCadence)

	events, err := app.ListCadenceEvents(ctx, race.ID)
	require.NoError(t, err)
	require.Len(t, events, len(samples))

	var sum float64
	for _, e := range events {
		sum += e.DistanceGained
	}
	assert.Equal(t, last.TotalDistanceInCadence, sum)

	_, _, err = app.RecordSample(ctx, SampleRecord{ParticipantID: p.ID, RaceID: race.ID, Increment: -1})
	assert.True(t, IsValidation(err))
}

func TestStandings(t *testing.T) {
	participants := []models.Participant{
		{ID: "a", TeamID: intPtr(1), TotalDistanceInCadence: 10},
		{ID: "b", TeamID: intPtr(2), TotalDistanceInCadence: 8},
		{ID: "c", TeamID: intPtr(2), TotalDistanceInCadence: 7},
		{ID: "d", TotalDistanceInCadence: 50},
		{ID: "e", TeamID: intPtr(3), TotalDistanceInCadence: 10},
	}

	standings := Standings(participants)
	assert.Equal(t, []models.TeamStanding{
		{TeamID: 1, TotalDistance: 10, SyncedDistance: 10, Members: 1},
		{TeamID: 3, TotalDistance: 10, SyncedDistance: 10, Members: 1},
		{TeamID: 2, TotalDistance: 15, SyncedDistance: 7, Members: 2},
	}, standings)

	assert.Empty(t, Standings(nil))
}

func TestSchemaEmbedded(t *testing.T) {
	schema := Schema()
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS races")
	assert.Contains(t, schema, "ON DELETE CASCADE")
}

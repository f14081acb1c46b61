package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mcdev12/ergsync/go/internal/models"
	"github.com/mcdev12/ergsync/go/internal/race"
	"github.com/mcdev12/ergsync/go/internal/scoring"
	"github.com/mcdev12/ergsync/go/internal/telemetry"
	"github.com/rs/zerolog/log"
)

// handleTelemetry scores one batch of lane samples against the race (the
// given one, or the active race) and commits each accepted sample. Lane N is
// the race's Nth participant. Samples with no cadence or an unknown lane are
// skipped, and so is the whole batch unless the race is active. A sample the
// store refuses is counted as failed; the samples committed around it are
// still broadcast and relayed.
func (h *Hub) handleTelemetry(ctx context.Context, req *request) (*outcome, error) {
	var in telemetryRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}

	r, err := h.telemetryRace(ctx, in.RaceID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return reply(TypeTelemetryProcessed, nil)
	}

	summary := TelemetrySummary{RaceID: r.ID}
	if r.Status != models.RaceStatusActive {
		summary.Skipped = len(in.Samples)
		summary.Participants = []models.Participant{}
		return reply(TypeTelemetryProcessed, summary)
	}

	participants, err := h.store.ListParticipants(ctx, r.ID)
	if err != nil {
		return nil, err
	}

	band := scoring.Band{Target: r.TargetCadence, Tolerance: r.CadenceTolerance}
	for _, s := range in.Samples {
		idx := s.Lane - 1
		if s.Cadence == nil || *s.Cadence < 0 || idx < 0 || idx >= len(participants) {
			summary.Skipped++
			continue
		}
		p := participants[idx]

		sample := toScoringSample(s, h.clock.Now())
		res := h.engine.Score(p.ID, band, sample)

		raw, err := json.Marshal(s)
		if err != nil {
			return nil, err
		}
		updated, _, err := h.store.RecordSample(ctx, race.SampleRecord{
			ParticipantID: p.ID,
			RaceID:        r.ID,
			Cadence:       sample.Cadence,
			InCadence:     res.InBand,
			Increment:     res.Increment,
			Timestamp:     sample.Timestamp,
			Sample:        raw,
		})
		if err != nil {
			// the streak moved but the commit did not; start the participant over
			h.engine.Forget(p.ID)
			summary.Failed++
			if summary.Error == "" {
				summary.Error = err.Error()
			}
			log.Error().
				Err(err).
				Str("race_id", r.ID).
				Str("participant_id", p.ID).
				Int("lane", s.Lane).
				Msg("failed to record sample")
			continue
		}
		participants[idx] = *updated
		summary.Accepted++
	}

	summary.Participants = participants
	if r.Mode == models.RaceModeTeam {
		summary.Standings = race.Standings(participants)
	}
	if summary.Accepted > 0 {
		summary.Relayed = h.relay.SendGameData(r, participants)
	}

	log.Debug().
		Str("race_id", r.ID).
		Str("source", in.Source).
		Int("accepted", summary.Accepted).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Bool("relayed", summary.Relayed).
		Msg("telemetry processed")

	out, err := reply(TypeTelemetryProcessed, summary)
	if err != nil {
		return nil, err
	}
	if summary.Accepted > 0 {
		update, err := newMessage(TypeParticipantsUpdate, participants)
		if err != nil {
			return nil, err
		}
		out.Broadcast = update
		out.RaceID = r.ID
	}
	return out, nil
}

// telemetryRace resolves the race a batch belongs to; nil when there is none.
func (h *Hub) telemetryRace(ctx context.Context, raceID string) (*models.Race, error) {
	if raceID == "" {
		return h.activeRace(ctx)
	}
	r, err := h.store.GetRace(ctx, raceID)
	if race.IsNotFound(err) {
		return nil, nil
	}
	return r, err
}

// toScoringSample uses the sample's own timestamp when it carries one.
func toScoringSample(s telemetry.LaneSample, now time.Time) scoring.Sample {
	at := now
	if s.Timestamp != nil {
		at = *s.Timestamp
	}
	return scoring.Sample{
		Cadence:        *s.Cadence,
		DeviceDistance: s.Distance,
		Time:           s.Time,
		Power:          s.Power,
		Timestamp:      at.UTC(),
	}
}

// handleRaceStatus follows ErgRace's race state: when racing starts the
// latest race still in setup becomes active, and when the race completes the
// active race is closed.
func (h *Hub) handleRaceStatus(ctx context.Context, req *request) (*outcome, error) {
	var in raceStatusRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}

	var (
		target *models.Race
		patch  race.RacePatch
		err    error
	)
	now := h.clock.Now().UTC()

	switch in.State {
	case telemetry.StateRaceRunning:
		active, err := h.activeRace(ctx)
		if err != nil {
			return nil, err
		}
		if active != nil {
			return reply(TypeRaceStatusHandled, active)
		}
		if target, err = h.latestRaceIn(ctx, models.RaceStatusSetup); err != nil {
			return nil, err
		}
		status := models.RaceStatusActive
		patch = race.RacePatch{Status: &status, StartedAt: race.NullableOf(now)}
	case telemetry.StateRaceComplete:
		if target, err = h.activeRace(ctx); err != nil {
			return nil, err
		}
		status := models.RaceStatusCompleted
		patch = race.RacePatch{Status: &status, EndedAt: race.NullableOf(now)}
	case telemetry.StateRaceAborted:
		// an aborted ErgRace run leaves the race active so the heat can be restarted
		log.Warn().Str("state_desc", in.StateDesc).Msg("ergrace race aborted")
		return reply(TypeRaceStatusHandled, nil)
	default:
		log.Debug().Int("state", in.State).Str("state_desc", in.StateDesc).Msg("ergrace state ignored")
		return reply(TypeRaceStatusHandled, nil)
	}

	if target == nil {
		return reply(TypeRaceStatusHandled, nil)
	}
	if in.State == telemetry.StateRaceRunning {
		if err := h.forgetParticipants(ctx, target.ID); err != nil {
			return nil, err
		}
	}

	updated, err := h.store.UpdateRace(ctx, target.ID, patch)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("race_id", updated.ID).
		Str("status", string(updated.Status)).
		Int("ergrace_state", in.State).
		Msg("race status follows ergrace")
	return replyAndBroadcast(TypeRaceStatusHandled, TypeRaceUpdate, updated.ID, updated)
}

// latestRaceIn returns the newest race with the given status, or nil.
func (h *Hub) latestRaceIn(ctx context.Context, status models.RaceStatus) (*models.Race, error) {
	races, err := h.store.ListRaces(ctx)
	if err != nil {
		return nil, err
	}
	for i := range races {
		if races[i].Status == status {
			return &races[i], nil
		}
	}
	return nil, nil
}

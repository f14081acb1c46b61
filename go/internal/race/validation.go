package race

import (
	"github.com/mcdev12/ergsync/go/internal/models"
)

func validateCreateRaceRequest(req *CreateRaceRequest) error {
	if !req.Mode.Valid() {
		return invalid("mode", "must be solo or team, got %q", req.Mode)
	}
	if req.Status == "" {
		req.Status = models.RaceStatusSetup
	}
	if !req.Status.Valid() {
		return invalid("status", "must be setup, active or completed, got %q", req.Status)
	}
	return validateBand(req.TargetCadence, req.CadenceTolerance, req.DurationSeconds)
}

func validateBand(target, tolerance, duration int) error {
	if target < 0 {
		return invalid("target_cadence", "must be >= 0, got %d", target)
	}
	if tolerance < 0 {
		return invalid("cadence_tolerance", "must be >= 0, got %d", tolerance)
	}
	if duration < 0 {
		return invalid("duration_seconds", "must be >= 0, got %d", duration)
	}
	return nil
}

func validateRacePatch(current *models.Race, patch RacePatch) error {
	if patch.Mode != nil && !patch.Mode.Valid() {
		return invalid("mode", "must be solo or team, got %q", *patch.Mode)
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return invalid("status", "must be setup, active or completed, got %q", *patch.Status)
		}
		if !current.Status.CanTransitionTo(*patch.Status) {
			return invalid("status", "cannot move from %s to %s", current.Status, *patch.Status)
		}
	}

	next := *current
	patch.Apply(&next)
	return validateBand(next.TargetCadence, next.CadenceTolerance, next.DurationSeconds)
}

func validateCreateParticipantRequest(req CreateParticipantRequest) error {
	if req.RaceID == "" {
		return invalid("race_id", "is required")
	}
	if req.TotalDistanceInCadence < 0 {
		return invalid("total_distance_in_cadence", "must be >= 0, got %v", req.TotalDistanceInCadence)
	}
	if req.CurrentCadence < 0 {
		return invalid("current_cadence", "must be >= 0, got %d", req.CurrentCadence)
	}
	return nil
}

func validateParticipantPatch(current *models.Participant, patch ParticipantPatch) error {
	if patch.TotalDistanceInCadence != nil && *patch.TotalDistanceInCadence < current.TotalDistanceInCadence {
		return invalid("total_distance_in_cadence", "cannot decrease from %v to %v",
			current.TotalDistanceInCadence, *patch.TotalDistanceInCadence)
	}
	if patch.CurrentCadence != nil && *patch.CurrentCadence < 0 {
		return invalid("current_cadence", "must be >= 0, got %d", *patch.CurrentCadence)
	}
	return nil
}

package race

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/ergsync/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Repository defines what the app layer needs from the repository
type Repository interface {
	CreateRace(ctx context.Context, race models.Race) (*models.Race, error)
	GetRace(ctx context.Context, id string) (*models.Race, error)
	GetActiveRace(ctx context.Context) (*models.Race, error)
	ListRaces(ctx context.Context) ([]models.Race, error)
	UpdateRace(ctx context.Context, id string, patch RacePatch) (*models.Race, error)
	DeleteRace(ctx context.Context, id string) error

	CreateParticipant(ctx context.Context, participant models.Participant) (*models.Participant, error)
	GetParticipant(ctx context.Context, id string) (*models.Participant, error)
	ListParticipants(ctx context.Context, raceID string) ([]models.Participant, error)
	UpdateParticipant(ctx context.Context, id string, patch ParticipantPatch) (*models.Participant, error)
	DeleteParticipants(ctx context.Context, raceID string) error

	CreateCadenceEvent(ctx context.Context, event models.CadenceEvent) (*models.CadenceEvent, error)
	ListCadenceEvents(ctx context.Context, raceID string) ([]models.CadenceEvent, error)

	// RecordSample moves the participant's live fields and appends one ledger
	// event as a single unit.
	RecordSample(ctx context.Context, rec SampleRecord, eventID string) (*models.Participant, *models.CadenceEvent, error)
}

// App handles race business logic: defaults, validation and the
// last_cadence_change stamp. It never broadcasts.
type App struct {
	repo  Repository
	clock clockwork.Clock
}

// NewApp creates a new race App
func NewApp(repo Repository, clock clockwork.Clock) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{
		repo:  repo,
		clock: clock,
	}
}

// CreateRace creates a race, assigning an id, status and created_at when absent
func (a *App) CreateRace(ctx context.Context, req CreateRaceRequest) (*models.Race, error) {
	if err := validateCreateRaceRequest(&req); err != nil {
		return nil, err
	}

	now := a.clock.Now().UTC()
	race := models.Race{
		ID:                req.ID,
		Name:              req.Name,
		Mode:              req.Mode,
		TargetCadence:     req.TargetCadence,
		CadenceTolerance:  req.CadenceTolerance,
		DurationSeconds:   req.DurationSeconds,
		Status:            req.Status,
		StartedAt:         req.StartedAt,
		EndedAt:           req.EndedAt,
		LastCadenceChange: req.LastCadenceChange,
		CreatedAt:         now,
	}
	if race.ID == "" {
		race.ID = uuid.NewString()
	}
	if req.CreatedAt != nil {
		race.CreatedAt = req.CreatedAt.UTC()
	}

	created, err := a.repo.CreateRace(ctx, race)
	if err != nil {
		return nil, fmt.Errorf("failed to create race: %w", err)
	}

	log.Info().
		Str("race_id", created.ID).
		Str("mode", string(created.Mode)).
		Str("status", string(created.Status)).
		Msg("race created")
	return created, nil
}

// GetRace retrieves a race by ID
func (a *App) GetRace(ctx context.Context, id string) (*models.Race, error) {
	race, err := a.repo.GetRace(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get race: %w", err)
	}
	return race, nil
}

// GetActiveRace returns the most recently created race with status active
func (a *App) GetActiveRace(ctx context.Context) (*models.Race, error) {
	race, err := a.repo.GetActiveRace(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get active race: %w", err)
	}
	return race, nil
}

// ListRaces returns all races, newest first
func (a *App) ListRaces(ctx context.Context) ([]models.Race, error) {
	races, err := a.repo.ListRaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list races: %w", err)
	}
	return races, nil
}

// UpdateRace applies the supplied fields only. Status may only move forward,
// and a change to the cadence band refreshes last_cadence_change unless the
// patch sets it itself.
func (a *App) UpdateRace(ctx context.Context, id string, patch RacePatch) (*models.Race, error) {
	current, err := a.repo.GetRace(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get race: %w", err)
	}
	if patch.IsEmpty() {
		return current, nil
	}
	if err := validateRacePatch(current, patch); err != nil {
		return nil, err
	}

	if bandChanged(current, patch) && !patch.LastCadenceChange.Set {
		patch.LastCadenceChange = NullableOf(a.clock.Now().UTC())
	}

	race, err := a.repo.UpdateRace(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update race: %w", err)
	}

	log.Info().
		Str("race_id", race.ID).
		Str("status", string(race.Status)).
		Int("target_cadence", race.TargetCadence).
		Int("cadence_tolerance", race.CadenceTolerance).
		Msg("race updated")
	return race, nil
}

// DeleteRace removes a race with its participants and cadence events.
// Deleting an unknown id is not an error.
func (a *App) DeleteRace(ctx context.Context, id string) error {
	if err := a.repo.DeleteRace(ctx, id); err != nil {
		return fmt.Errorf("failed to delete race: %w", err)
	}
	log.Info().Str("race_id", id).Msg("race deleted")
	return nil
}

// CreateParticipant adds a participant to an existing race
func (a *App) CreateParticipant(ctx context.Context, req CreateParticipantRequest) (*models.Participant, error) {
	if err := validateCreateParticipantRequest(req); err != nil {
		return nil, err
	}
	if _, err := a.repo.GetRace(ctx, req.RaceID); err != nil {
		return nil, fmt.Errorf("failed to get race: %w", err)
	}

	p := models.Participant{
		ID:                     req.ID,
		RaceID:                 req.RaceID,
		Name:                   req.Name,
		TeamID:                 req.TeamID,
		TotalDistanceInCadence: req.TotalDistanceInCadence,
		CurrentCadence:         req.CurrentCadence,
		IsInCadence:            req.IsInCadence,
		CreatedAt:              a.clock.Now().UTC(),
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if req.CreatedAt != nil {
		p.CreatedAt = req.CreatedAt.UTC()
	}

	created, err := a.repo.CreateParticipant(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to create participant: %w", err)
	}

	log.Info().
		Str("participant_id", created.ID).
		Str("race_id", created.RaceID).
		Str("name", created.Name).
		Msg("participant created")
	return created, nil
}

// GetParticipant retrieves a participant by ID
func (a *App) GetParticipant(ctx context.Context, id string) (*models.Participant, error) {
	p, err := a.repo.GetParticipant(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return p, nil
}

// ListParticipants returns a race's participants in insertion order
func (a *App) ListParticipants(ctx context.Context, raceID string) ([]models.Participant, error) {
	participants, err := a.repo.ListParticipants(ctx, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	return participants, nil
}

// UpdateParticipant applies the supplied fields only
func (a *App) UpdateParticipant(ctx context.Context, id string, patch ParticipantPatch) (*models.Participant, error) {
	current, err := a.repo.GetParticipant(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	if patch.IsEmpty() {
		return current, nil
	}
	if err := validateParticipantPatch(current, patch); err != nil {
		return nil, err
	}

	p, err := a.repo.UpdateParticipant(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update participant: %w", err)
	}
	log.Debug().
		Str("participant_id", p.ID).
		Float64("total_distance_in_cadence", p.TotalDistanceInCadence).
		Msg("participant updated")
	return p, nil
}

// DeleteParticipants removes every participant of a race
func (a *App) DeleteParticipants(ctx context.Context, raceID string) error {
	if err := a.repo.DeleteParticipants(ctx, raceID); err != nil {
		return fmt.Errorf("failed to delete participants: %w", err)
	}
	log.Info().Str("race_id", raceID).Msg("participants deleted")
	return nil
}

// CreateCadenceEvent appends an event to the ledger. The participant must
// belong to the given race.
func (a *App) CreateCadenceEvent(ctx context.Context, req CreateCadenceEventRequest) (*models.CadenceEvent, error) {
	if req.DistanceGained < 0 {
		return nil, invalid("distance_gained", "must be >= 0, got %v", req.DistanceGained)
	}
	if req.Cadence < 0 {
		return nil, invalid("cadence", "must be >= 0, got %d", req.Cadence)
	}
	p, err := a.repo.GetParticipant(ctx, req.ParticipantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	if p.RaceID != req.RaceID {
		return nil, invalid("race_id", "participant %s belongs to race %s", p.ID, p.RaceID)
	}

	e := models.CadenceEvent{
		ID:             req.ID,
		ParticipantID:  req.ParticipantID,
		RaceID:         req.RaceID,
		Cadence:        req.Cadence,
		WasInCadence:   req.WasInCadence,
		DistanceGained: req.DistanceGained,
		Timestamp:      a.clock.Now().UTC(),
		Sample:         req.Sample,
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if req.Timestamp != nil {
		e.Timestamp = req.Timestamp.UTC()
	}

	created, err := a.repo.CreateCadenceEvent(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("failed to create cadence event: %w", err)
	}
	return created, nil
}

// ListCadenceEvents returns a race's ledger in chronological order
func (a *App) ListCadenceEvents(ctx context.Context, raceID string) ([]models.CadenceEvent, error) {
	events, err := a.repo.ListCadenceEvents(ctx, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cadence events: %w", err)
	}
	return events, nil
}

// RecordSample commits one scored sample: the participant's total grows by
// the increment and the ledger gains the matching event.
func (a *App) RecordSample(ctx context.Context, rec SampleRecord) (*models.Participant, *models.CadenceEvent, error) {
	if rec.Increment < 0 {
		return nil, nil, invalid("distance_gained", "must be >= 0, got %v", rec.Increment)
	}
	if rec.Cadence < 0 {
		return nil, nil, invalid("cadence", "must be >= 0, got %d", rec.Cadence)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = a.clock.Now()
	}

	p, e, err := a.repo.RecordSample(ctx, rec, uuid.NewString())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to record sample: %w", err)
	}
	return p, e, nil
}

// Standings groups participants by team, ranked by synced distance and then
// by summed distance. Participants without a team are left out.
func Standings(participants []models.Participant) []models.TeamStanding {
	byTeam := make(map[int]*models.TeamStanding)
	for _, p := range participants {
		if p.TeamID == nil {
			continue
		}
		s, ok := byTeam[*p.TeamID]
		if !ok {
			s = &models.TeamStanding{TeamID: *p.TeamID, SyncedDistance: p.TotalDistanceInCadence}
			byTeam[*p.TeamID] = s
		}
		s.TotalDistance += p.TotalDistanceInCadence
		s.SyncedDistance = math.Min(s.SyncedDistance, p.TotalDistanceInCadence)
		s.Members++
	}

	standings := make([]models.TeamStanding, 0, len(byTeam))
	for _, s := range byTeam {
		standings = append(standings, *s)
	}
	sort.Slice(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.SyncedDistance != b.SyncedDistance {
			return a.SyncedDistance > b.SyncedDistance
		}
		if a.TotalDistance != b.TotalDistance {
			return a.TotalDistance > b.TotalDistance
		}
		return a.TeamID < b.TeamID
	})
	return standings
}

func bandChanged(current *models.Race, patch RacePatch) bool {
	if patch.TargetCadence != nil && *patch.TargetCadence != current.TargetCadence {
		return true
	}
	return patch.CadenceTolerance != nil && *patch.CadenceTolerance != current.CadenceTolerance
}

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

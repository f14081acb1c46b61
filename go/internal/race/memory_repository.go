package race

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mcdev12/ergsync/go/internal/models"
)

// MemoryRepository keeps races in process memory. It mirrors the cascade and
// ordering rules of the Postgres schema and hands out copies, never pointers
// into its own maps.
type MemoryRepository struct {
	mu           sync.Mutex
	races        map[string]models.Race
	raceOrder    []string
	participants map[string]models.Participant
	partOrder    []string
	events       []models.CadenceEvent
}

// NewMemoryRepository creates an empty in-memory store
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		races:        make(map[string]models.Race),
		participants: make(map[string]models.Participant),
	}
}

func (r *MemoryRepository) CreateRace(_ context.Context, race models.Race) (*models.Race, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.races[race.ID]; ok {
		return nil, fmt.Errorf("failed to insert race: id %s already exists", race.ID)
	}
	race = copyRace(race)
	r.races[race.ID] = race
	r.raceOrder = append(r.raceOrder, race.ID)
	out := copyRace(race)
	return &out, nil
}

func (r *MemoryRepository) GetRace(_ context.Context, id string) (*models.Race, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	race, ok := r.races[id]
	if !ok {
		return nil, ErrRaceNotFound
	}
	out := copyRace(race)
	return &out, nil
}

func (r *MemoryRepository) GetActiveRace(ctx context.Context) (*models.Race, error) {
	races, err := r.ListRaces(ctx)
	if err != nil {
		return nil, err
	}
	for i := range races {
		if races[i].Status == models.RaceStatusActive {
			return &races[i], nil
		}
	}
	return nil, ErrRaceNotFound
}

// ListRaces returns races newest first; races created at the same instant keep
// reverse insertion order.
func (r *MemoryRepository) ListRaces(_ context.Context) ([]models.Race, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	races := make([]models.Race, 0, len(r.raceOrder))
	for i := len(r.raceOrder) - 1; i >= 0; i-- {
		races = append(races, copyRace(r.races[r.raceOrder[i]]))
	}
	sort.SliceStable(races, func(i, j int) bool {
		return races[i].CreatedAt.After(races[j].CreatedAt)
	})
	return races, nil
}

func (r *MemoryRepository) UpdateRace(_ context.Context, id string, patch RacePatch) (*models.Race, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	race, ok := r.races[id]
	if !ok {
		return nil, ErrRaceNotFound
	}
	patch.Apply(&race)
	r.races[id] = copyRace(race)
	out := copyRace(race)
	return &out, nil
}

func (r *MemoryRepository) DeleteRace(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.races[id]; !ok {
		return nil
	}
	delete(r.races, id)
	r.raceOrder = removeID(r.raceOrder, id)
	r.deleteParticipantsLocked(id)
	return nil
}

func (r *MemoryRepository) CreateParticipant(_ context.Context, p models.Participant) (*models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.races[p.RaceID]; !ok {
		return nil, ErrRaceNotFound
	}
	if _, ok := r.participants[p.ID]; ok {
		return nil, fmt.Errorf("failed to insert participant: id %s already exists", p.ID)
	}
	p = copyParticipant(p)
	r.participants[p.ID] = p
	r.partOrder = append(r.partOrder, p.ID)
	out := copyParticipant(p)
	return &out, nil
}

func (r *MemoryRepository) GetParticipant(_ context.Context, id string) (*models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[id]
	if !ok {
		return nil, ErrParticipantNotFound
	}
	out := copyParticipant(p)
	return &out, nil
}

// ListParticipants returns the race's participants in insertion order.
func (r *MemoryRepository) ListParticipants(_ context.Context, raceID string) ([]models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	participants := []models.Participant{}
	for _, id := range r.partOrder {
		p := r.participants[id]
		if p.RaceID == raceID {
			participants = append(participants, copyParticipant(p))
		}
	}
	return participants, nil
}

func (r *MemoryRepository) UpdateParticipant(_ context.Context, id string, patch ParticipantPatch) (*models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[id]
	if !ok {
		return nil, ErrParticipantNotFound
	}
	patch.Apply(&p)
	r.participants[id] = copyParticipant(p)
	out := copyParticipant(p)
	return &out, nil
}

func (r *MemoryRepository) DeleteParticipants(_ context.Context, raceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deleteParticipantsLocked(raceID)
	return nil
}

// deleteParticipantsLocked drops the race's participants and every ledger row
// pointing at the race or at one of those participants.
func (r *MemoryRepository) deleteParticipantsLocked(raceID string) {
	removed := make(map[string]struct{})
	kept := r.partOrder[:0]
	for _, id := range r.partOrder {
		if r.participants[id].RaceID == raceID {
			removed[id] = struct{}{}
			delete(r.participants, id)
			continue
		}
		kept = append(kept, id)
	}
	r.partOrder = kept

	events := r.events[:0]
	for _, e := range r.events {
		if _, gone := removed[e.ParticipantID]; gone {
			continue
		}
		if _, ok := r.races[e.RaceID]; !ok {
			continue
		}
		events = append(events, e)
	}
	r.events = events
}

func (r *MemoryRepository) CreateCadenceEvent(_ context.Context, e models.CadenceEvent) (*models.CadenceEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkEventRefsLocked(e); err != nil {
		return nil, err
	}
	e = copyEvent(e)
	r.events = append(r.events, e)
	out := copyEvent(e)
	return &out, nil
}

// ListCadenceEvents returns the race's ledger in timestamp order, ties in insertion order.
func (r *MemoryRepository) ListCadenceEvents(_ context.Context, raceID string) ([]models.CadenceEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := []models.CadenceEvent{}
	for _, e := range r.events {
		if e.RaceID == raceID {
			events = append(events, copyEvent(e))
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events, nil
}

func (r *MemoryRepository) RecordSample(_ context.Context, rec SampleRecord, eventID string) (*models.Participant, *models.CadenceEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	event := models.CadenceEvent{
		ID:             eventID,
		ParticipantID:  rec.ParticipantID,
		RaceID:         rec.RaceID,
		Cadence:        rec.Cadence,
		WasInCadence:   rec.InCadence,
		DistanceGained: rec.Increment,
		Timestamp:      rec.Timestamp.UTC(),
		Sample:         rec.Sample,
	}
	if err := r.checkEventRefsLocked(event); err != nil {
		return nil, nil, err
	}

	p := r.participants[rec.ParticipantID]
	p.TotalDistanceInCadence += rec.Increment
	p.CurrentCadence = rec.Cadence
	p.IsInCadence = rec.InCadence
	r.participants[p.ID] = p
	r.events = append(r.events, copyEvent(event))

	out := copyParticipant(p)
	outEvent := copyEvent(event)
	return &out, &outEvent, nil
}

func (r *MemoryRepository) checkEventRefsLocked(e models.CadenceEvent) error {
	if _, ok := r.races[e.RaceID]; !ok {
		return ErrRaceNotFound
	}
	if _, ok := r.participants[e.ParticipantID]; !ok {
		return ErrParticipantNotFound
	}
	return nil
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyRace(r models.Race) models.Race {
	r.StartedAt = copyTime(r.StartedAt)
	r.EndedAt = copyTime(r.EndedAt)
	r.LastCadenceChange = copyTime(r.LastCadenceChange)
	return r
}

func copyParticipant(p models.Participant) models.Participant {
	if p.TeamID != nil {
		v := *p.TeamID
		p.TeamID = &v
	}
	return p
}

func copyEvent(e models.CadenceEvent) models.CadenceEvent {
	if e.Sample != nil {
		e.Sample = append(json.RawMessage(nil), e.Sample...)
	}
	return e
}

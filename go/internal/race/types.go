package race

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/mcdev12/ergsync/go/internal/models"
)

// Nullable is a patch field for a nullable column. Set is true whenever the
// key was present in the payload, including an explicit null.
type Nullable[T any] struct {
	Set   bool
	Value *T
}

// NullableOf returns a patch field that sets the column to v.
func NullableOf[T any](v T) Nullable[T] {
	return Nullable[T]{Set: true, Value: &v}
}

// NullValue returns a patch field that clears the column.
func NullValue[T any]() Nullable[T] {
	return Nullable[T]{Set: true}
}

func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

func (n Nullable[T]) apply(dst **T) {
	if !n.Set {
		return
	}
	if n.Value == nil {
		*dst = nil
		return
	}
	v := *n.Value
	*dst = &v
}

// CreateRaceRequest represents a request to create a new race. ID, Status and
// CreatedAt are filled in when absent.
type CreateRaceRequest struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Mode              models.RaceMode   `json:"mode"`
	TargetCadence     int               `json:"target_cadence"`
	CadenceTolerance  int               `json:"cadence_tolerance"`
	DurationSeconds   int               `json:"duration_seconds"`
	Status            models.RaceStatus `json:"status"`
	StartedAt         *time.Time        `json:"started_at"`
	EndedAt           *time.Time        `json:"ended_at"`
	LastCadenceChange *time.Time        `json:"last_cadence_change"`
	CreatedAt         *time.Time        `json:"created_at"`
}

// RacePatch lists the race fields a partial update may touch. Absent fields
// are left as stored.
type RacePatch struct {
	Name              *string             `json:"name"`
	Mode              *models.RaceMode    `json:"mode"`
	TargetCadence     *int                `json:"target_cadence"`
	CadenceTolerance  *int                `json:"cadence_tolerance"`
	DurationSeconds   *int                `json:"duration_seconds"`
	Status            *models.RaceStatus  `json:"status"`
	StartedAt         Nullable[time.Time] `json:"started_at"`
	EndedAt           Nullable[time.Time] `json:"ended_at"`
	LastCadenceChange Nullable[time.Time] `json:"last_cadence_change"`
}

// IsEmpty reports whether the patch carries no fields.
func (p RacePatch) IsEmpty() bool {
	return p.Name == nil && p.Mode == nil && p.TargetCadence == nil && p.CadenceTolerance == nil &&
		p.DurationSeconds == nil && p.Status == nil && !p.StartedAt.Set && !p.EndedAt.Set && !p.LastCadenceChange.Set
}

// Apply copies the supplied fields onto r.
func (p RacePatch) Apply(r *models.Race) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Mode != nil {
		r.Mode = *p.Mode
	}
	if p.TargetCadence != nil {
		r.TargetCadence = *p.TargetCadence
	}
	if p.CadenceTolerance != nil {
		r.CadenceTolerance = *p.CadenceTolerance
	}
	if p.DurationSeconds != nil {
		r.DurationSeconds = *p.DurationSeconds
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	p.StartedAt.apply(&r.StartedAt)
	p.EndedAt.apply(&r.EndedAt)
	p.LastCadenceChange.apply(&r.LastCadenceChange)
}

// CreateParticipantRequest represents a request to add a participant to a race
type CreateParticipantRequest struct {
	ID                     string     `json:"id"`
	RaceID                 string     `json:"race_id"`
	Name                   string     `json:"name"`
	TeamID                 *int       `json:"team_id"`
	TotalDistanceInCadence float64    `json:"total_distance_in_cadence"`
	CurrentCadence         int        `json:"current_cadence"`
	IsInCadence            bool       `json:"is_in_cadence"`
	CreatedAt              *time.Time `json:"created_at"`
}

// ParticipantPatch lists the participant fields a partial update may touch.
type ParticipantPatch struct {
	Name                   *string       `json:"name"`
	TeamID                 Nullable[int] `json:"team_id"`
	TotalDistanceInCadence *float64      `json:"total_distance_in_cadence"`
	CurrentCadence         *int          `json:"current_cadence"`
	IsInCadence            *bool         `json:"is_in_cadence"`
}

// IsEmpty reports whether the patch carries no fields.
func (p ParticipantPatch) IsEmpty() bool {
	return p.Name == nil && !p.TeamID.Set && p.TotalDistanceInCadence == nil &&
		p.CurrentCadence == nil && p.IsInCadence == nil
}

// Apply copies the supplied fields onto pt.
func (p ParticipantPatch) Apply(pt *models.Participant) {
	if p.Name != nil {
		pt.Name = *p.Name
	}
	p.TeamID.apply(&pt.TeamID)
	if p.TotalDistanceInCadence != nil {
		pt.TotalDistanceInCadence = *p.TotalDistanceInCadence
	}
	if p.CurrentCadence != nil {
		pt.CurrentCadence = *p.CurrentCadence
	}
	if p.IsInCadence != nil {
		pt.IsInCadence = *p.IsInCadence
	}
}

// CreateCadenceEventRequest represents a request to append to the cadence ledger
type CreateCadenceEventRequest struct {
	ID             string          `json:"id"`
	ParticipantID  string          `json:"participant_id"`
	RaceID         string          `json:"race_id"`
	Cadence        int             `json:"cadence"`
	WasInCadence   bool            `json:"was_in_cadence"`
	DistanceGained float64         `json:"distance_gained"`
	Timestamp      *time.Time      `json:"timestamp"`
	Sample         json.RawMessage `json:"sample,omitempty"`
}

// SampleRecord is one scored telemetry sample to be committed atomically: the
// participant's live fields move and the ledger gains one event.
type SampleRecord struct {
	ParticipantID string
	RaceID        string
	Cadence       int
	InCadence     bool
	Increment     float64
	Timestamp     time.Time
	Sample        json.RawMessage
}

package race

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mcdev12/ergsync/go/internal/models"
	"github.com/mcdev12/ergsync/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

const raceColumns = `id, name, mode, target_cadence, cadence_tolerance, duration_seconds, status,
	started_at, ended_at, last_cadence_change, created_at`

const participantColumns = `id, race_id, name, team_id, total_distance_in_cadence, current_cadence,
	is_in_cadence, created_at`

const cadenceEventColumns = `id, participant_id, race_id, cadence, was_in_cadence, distance_gained,
	"timestamp", sample`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// PostgresRepository stores races in Postgres through database/sql and lib/pq.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repository backed by db
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreateRace(ctx context.Context, race models.Race) (*models.Race, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO races (`+raceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		race.ID, race.Name, string(race.Mode), race.TargetCadence, race.CadenceTolerance,
		race.DurationSeconds, string(race.Status),
		sqlutil.ToSqlTime(race.StartedAt), sqlutil.ToSqlTime(race.EndedAt),
		sqlutil.ToSqlTime(race.LastCadenceChange), race.CreatedAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert race: %w", err)
	}
	return r.GetRace(ctx, race.ID)
}

func (r *PostgresRepository) GetRace(ctx context.Context, id string) (*models.Race, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+raceColumns+` FROM races WHERE id = $1`, id)
	return scanRace(row)
}

func (r *PostgresRepository) GetActiveRace(ctx context.Context) (*models.Race, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+raceColumns+` FROM races
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT 1`, string(models.RaceStatusActive))
	return scanRace(row)
}

func (r *PostgresRepository) ListRaces(ctx context.Context) ([]models.Race, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+raceColumns+` FROM races ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list races: %w", err)
	}
	defer rows.Close()

	races := []models.Race{}
	for rows.Next() {
		race, err := scanRace(rows)
		if err != nil {
			return nil, err
		}
		races = append(races, *race)
	}
	return races, rows.Err()
}

// UpdateRace reads the row under lock, applies the patch in Go and writes every column back.
func (r *PostgresRepository) UpdateRace(ctx context.Context, id string, patch RacePatch) (*models.Race, error) {
	var updated *models.Race
	err := sqlutil.Run(ctx, r.db, func(tx *sql.Tx) error {
		current, err := scanRace(tx.QueryRowContext(ctx,
			`SELECT `+raceColumns+` FROM races WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if patch.IsEmpty() {
			updated = current
			return nil
		}
		patch.Apply(current)

		_, err = tx.ExecContext(ctx, `
			UPDATE races SET
				name = $2, mode = $3, target_cadence = $4, cadence_tolerance = $5,
				duration_seconds = $6, status = $7, started_at = $8, ended_at = $9,
				last_cadence_change = $10
			WHERE id = $1`,
			id, current.Name, string(current.Mode), current.TargetCadence, current.CadenceTolerance,
			current.DurationSeconds, string(current.Status),
			sqlutil.ToSqlTime(current.StartedAt), sqlutil.ToSqlTime(current.EndedAt),
			sqlutil.ToSqlTime(current.LastCadenceChange),
		)
		if err != nil {
			return fmt.Errorf("failed to update race: %w", err)
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *PostgresRepository) DeleteRace(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM races WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete race: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CreateParticipant(ctx context.Context, p models.Participant) (*models.Participant, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO participants (`+participantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.RaceID, p.Name, sqlutil.ToSqlInt32(p.TeamID), p.TotalDistanceInCadence,
		p.CurrentCadence, p.IsInCadence, p.CreatedAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert participant: %w", err)
	}
	return r.GetParticipant(ctx, p.ID)
}

func (r *PostgresRepository) GetParticipant(ctx context.Context, id string) (*models.Participant, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = $1`, id)
	return scanParticipant(row)
}

func (r *PostgresRepository) ListParticipants(ctx context.Context, raceID string) ([]models.Participant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+participantColumns+` FROM participants
		WHERE race_id = $1
		ORDER BY seq`, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	participants := []models.Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, *p)
	}
	return participants, rows.Err()
}

func (r *PostgresRepository) UpdateParticipant(ctx context.Context, id string, patch ParticipantPatch) (*models.Participant, error) {
	var updated *models.Participant
	err := sqlutil.Run(ctx, r.db, func(tx *sql.Tx) error {
		current, err := scanParticipant(tx.QueryRowContext(ctx,
			`SELECT `+participantColumns+` FROM participants WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if patch.IsEmpty() {
			updated = current
			return nil
		}
		patch.Apply(current)

		_, err = tx.ExecContext(ctx, `
			UPDATE participants SET
				name = $2, team_id = $3, total_distance_in_cadence = $4,
				current_cadence = $5, is_in_cadence = $6
			WHERE id = $1`,
			id, current.Name, sqlutil.ToSqlInt32(current.TeamID), current.TotalDistanceInCadence,
			current.CurrentCadence, current.IsInCadence,
		)
		if err != nil {
			return fmt.Errorf("failed to update participant: %w", err)
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *PostgresRepository) DeleteParticipants(ctx context.Context, raceID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM participants WHERE race_id = $1`, raceID); err != nil {
		return fmt.Errorf("failed to delete participants: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CreateCadenceEvent(ctx context.Context, e models.CadenceEvent) (*models.CadenceEvent, error) {
	if err := insertCadenceEvent(ctx, r.db, e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *PostgresRepository) ListCadenceEvents(ctx context.Context, raceID string) ([]models.CadenceEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+cadenceEventColumns+` FROM cadence_events
		WHERE race_id = $1
		ORDER BY "timestamp", seq`, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cadence events: %w", err)
	}
	defer rows.Close()

	events := []models.CadenceEvent{}
	for rows.Next() {
		e, err := scanCadenceEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// RecordSample bumps the participant's live fields and appends the ledger row in one transaction.
func (r *PostgresRepository) RecordSample(ctx context.Context, rec SampleRecord, eventID string) (*models.Participant, *models.CadenceEvent, error) {
	var participant *models.Participant
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

	err := sqlutil.Run(ctx, r.db, func(tx *sql.Tx) error {
		p, err := scanParticipant(tx.QueryRowContext(ctx, `
			UPDATE participants SET
				total_distance_in_cadence = total_distance_in_cadence + $2,
				current_cadence = $3,
				is_in_cadence = $4
			WHERE id = $1
			RETURNING `+participantColumns,
			rec.ParticipantID, rec.Increment, rec.Cadence, rec.InCadence,
		))
		if err != nil {
			return err
		}
		participant = p
		return insertCadenceEvent(ctx, tx, event)
	})
	if err != nil {
		return nil, nil, err
	}
	return participant, &event, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertCadenceEvent(ctx context.Context, db execer, e models.CadenceEvent) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO cadence_events (`+cadenceEventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.ParticipantID, e.RaceID, e.Cadence, e.WasInCadence, e.DistanceGained,
		e.Timestamp.UTC(), sqlutil.ToNullRawMessage(e.Sample),
	)
	if err != nil {
		return fmt.Errorf("failed to insert cadence event: %w", err)
	}
	return nil
}

func scanRace(row rowScanner) (*models.Race, error) {
	var (
		race                                  models.Race
		mode, status                          string
		startedAt, endedAt, lastCadenceChange sql.NullTime
	)
	err := row.Scan(&race.ID, &race.Name, &mode, &race.TargetCadence, &race.CadenceTolerance,
		&race.DurationSeconds, &status, &startedAt, &endedAt, &lastCadenceChange, &race.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan race: %w", err)
	}
	race.Mode = models.RaceMode(mode)
	race.Status = models.RaceStatus(status)
	race.StartedAt = sqlutil.FromSqlTime(startedAt)
	race.EndedAt = sqlutil.FromSqlTime(endedAt)
	race.LastCadenceChange = sqlutil.FromSqlTime(lastCadenceChange)
	race.CreatedAt = race.CreatedAt.UTC()
	return &race, nil
}

func scanParticipant(row rowScanner) (*models.Participant, error) {
	var (
		p      models.Participant
		teamID sql.NullInt32
	)
	err := row.Scan(&p.ID, &p.RaceID, &p.Name, &teamID, &p.TotalDistanceInCadence,
		&p.CurrentCadence, &p.IsInCadence, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrParticipantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan participant: %w", err)
	}
	p.TeamID = sqlutil.FromSqlInt32(teamID)
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func scanCadenceEvent(row rowScanner) (*models.CadenceEvent, error) {
	var (
		e      models.CadenceEvent
		sample pqtype.NullRawMessage
	)
	err := row.Scan(&e.ID, &e.ParticipantID, &e.RaceID, &e.Cadence, &e.WasInCadence,
		&e.DistanceGained, &e.Timestamp, &sample)
	if err != nil {
		return nil, fmt.Errorf("failed to scan cadence event: %w", err)
	}
	e.Sample = sqlutil.FromNullRawMessage(sample)
	e.Timestamp = e.Timestamp.UTC()
	return &e, nil
}

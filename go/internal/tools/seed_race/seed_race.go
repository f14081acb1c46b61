package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/mcdev12/ergsync/go/internal/dbconfig"
	"github.com/mcdev12/ergsync/go/internal/models"
	"github.com/mcdev12/ergsync/go/internal/race"
	"gopkg.in/yaml.v3"
)

const defaultFixture = "go/internal/tools/seed_race/race.yaml"

// Fixture is one race and its rowers, in lane order
type Fixture struct {
	Race struct {
		ID               string          `yaml:"id"`
		Name             string          `yaml:"name"`
		Mode             models.RaceMode `yaml:"mode"`
		TargetCadence    int             `yaml:"target_cadence"`
		CadenceTolerance int             `yaml:"cadence_tolerance"`
		DurationSeconds  int             `yaml:"duration_seconds"`
	} `yaml:"race"`
	Participants []struct {
		ID     string `yaml:"id"`
		Name   string `yaml:"name"`
		TeamID *int   `yaml:"team_id"`
	} `yaml:"participants"`
}

func parseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal YAML: %w", err)
	}
	if f.Race.Name == "" {
		return nil, fmt.Errorf("race name is required")
	}
	if f.Race.Mode == "" {
		f.Race.Mode = models.RaceModeSolo
	}
	if !f.Race.Mode.Valid() {
		return nil, fmt.Errorf("invalid race mode %q", f.Race.Mode)
	}
	if f.Race.CadenceTolerance < 0 {
		return nil, fmt.Errorf("cadence tolerance must not be negative")
	}
	if f.Race.ID == "" {
		f.Race.ID = uuid.NewString()
	}
	for i := range f.Participants {
		if f.Participants[i].Name == "" {
			return nil, fmt.Errorf("participant %d has no name", i+1)
		}
		if f.Participants[i].ID == "" {
			f.Participants[i].ID = uuid.NewString()
		}
	}
	return &f, nil
}

func main() {
	_ = godotenv.Load()

	// 1) Load the YAML fixture
	path := defaultFixture
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read YAML: %v\n", err)
		os.Exit(1)
	}
	fixture, err := parseFixture(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Make sure the tables exist; the schema is idempotent
	if _, err := pool.Exec(ctx, race.Schema(), pgx.QueryExecModeSimpleProtocol); err != nil {
		fmt.Fprintf(os.Stderr, "apply schema: %v\n", err)
		os.Exit(1)
	}

	// 4) Insert the race and its participants in one transaction
	if err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return seed(ctx, tx, fixture, time.Now().UTC())
	}); err != nil {
		fmt.Fprintf(os.Stderr, "seed race: %v\n", err)
		os.Exit(1)
	}

	// 5) Print summary
	fmt.Printf(
		"Race seed complete: race %s (%s), %d participants\n",
		fixture.Race.ID, fixture.Race.Name, len(fixture.Participants),
	)
}

func seed(ctx context.Context, tx pgx.Tx, f *Fixture, now time.Time) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO races (
          id, name, mode, target_cadence, cadence_tolerance,
          duration_seconds, status, created_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    `,
		f.Race.ID, f.Race.Name, string(f.Race.Mode), f.Race.TargetCadence, f.Race.CadenceTolerance,
		f.Race.DurationSeconds, string(models.RaceStatusSetup), now,
	)
	if err != nil {
		return fmt.Errorf("insert race %s: %w", f.Race.ID, err)
	}

	// participants keep fixture order, which is lane order
	for _, p := range f.Participants {
		_, err := tx.Exec(ctx, `
            INSERT INTO participants (id, race_id, name, team_id, created_at)
            VALUES ($1,$2,$3,$4,$5)
        `,
			p.ID, f.Race.ID, p.Name, p.TeamID, now,
		)
		if err != nil {
			return fmt.Errorf("insert participant %s: %w", p.Name, err)
		}
	}
	return nil
}

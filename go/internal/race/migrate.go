package race

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/rs/zerolog/log"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the DDL for the races, participants and cadence_events tables.
func Schema() string {
	return schemaSQL
}

// Migrate creates the tables and indexes if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	log.Info().Msg("race schema applied")
	return nil
}

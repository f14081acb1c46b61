package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/mcdev12/ergsync/go/internal/dbconfig"
	"github.com/mcdev12/ergsync/go/internal/race"
	"github.com/rs/zerolog/log"
)

// setupStore opens the configured race repository. The returned close
// function releases it.
func setupStore(ctx context.Context, cfg *Config) (race.Repository, func() error, error) {
	if cfg.StoreDriver == storeDriverMemory {
		log.Warn().Msg("using in-memory store; race state is lost on restart")
		return race.NewMemoryRepository(), func() error { return nil }, nil
	}

	database, err := setupDatabase(ctx, dbconfig.NewConfigFromEnv())
	if err != nil {
		return nil, nil, err
	}
	if err := race.Migrate(ctx, database); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return race.NewPostgresRepository(database), database.Close, nil
}

func setupDatabase(ctx context.Context, dbCfg dbconfig.Config) (*sql.DB, error) {
	database, err := sql.Open("postgres", dbCfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	database.SetMaxOpenConns(dbCfg.MaxOpenConns)
	database.SetMaxIdleConns(dbCfg.MaxIdleConns)
	database.SetConnMaxLifetime(dbCfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, dbCfg.ConnectTimeout)
	defer cancel()
	if err := database.PingContext(pingCtx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("user", dbCfg.User).
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("database", dbCfg.Database).
		Msg("connected to database")
	return database, nil
}

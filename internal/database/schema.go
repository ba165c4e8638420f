package database

import (
	"context"
	_ "embed"
)

//go:embed schema.sql
var schemaSQL []byte

// InitSchema applies the embedded schema when the transcriptions table is
// missing, then runs pending migrations.
func (db *DB) InitSchema(ctx context.Context) error {
	var exists bool
	err := db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT FROM pg_tables WHERE schemaname = 'public' AND tablename = 'transcriptions')`,
	).Scan(&exists)
	if err != nil {
		return err
	}

	if exists {
		db.log.Debug().Msg("schema already initialized, skipping")
	} else {
		db.log.Info().Msg("fresh database detected, applying schema")
		if _, err := db.Pool.Exec(ctx, string(schemaSQL)); err != nil {
			return err
		}
		db.log.Info().Msg("schema applied successfully")
	}
	return db.Migrate(ctx)
}

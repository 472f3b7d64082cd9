package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/lendfast/drawbridge/migrations"
)

// Migrate brings the schema up to date using the embedded goose migrations.
// Goose needs a database/sql handle, so the pool config is bridged through
// the pgx stdlib adapter for the duration of the run.
func (db *DB) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("unable to set migration dialect: %w", err)
	}

	sqlDB := stdlib.OpenDB(*db.Pool.Config().ConnConfig)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	db.logger.Info("database migrations applied")
	return nil
}

package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// gooseLogger sends goose progress lines to the global zerolog logger.
type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...any) {
	log.Info().Str("component", "goose").Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (gooseLogger) Fatalf(format string, v ...any) {
	log.Fatal().Str("component", "goose").Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// RunMigrations applies pending goose migrations. An existing migrationsDir on
// disk takes precedence over the embedded set.
func RunMigrations(ctx context.Context, db *sql.DB, migrationsDir string) error {
	if db == nil {
		return errors.New("nil db")
	}
	dir := "migrations"
	goose.SetLogger(gooseLogger{})
	goose.SetBaseFS(embeddedMigrations)
	if migrationsDir != "" {
		if _, err := os.Stat(migrationsDir); err == nil {
			goose.SetBaseFS(nil)
			dir = migrationsDir
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("read migrations: %w", err)
		}
	}
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// SchemaVersion reports the highest applied migration.
func SchemaVersion(ctx context.Context, db *sql.DB) (int64, error) {
	if err := goose.SetDialect("sqlite3"); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, db)
}

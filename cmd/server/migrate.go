package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/soaringjerry/Canvass/internal/api"
	"github.com/soaringjerry/Canvass/internal/db"
	"github.com/soaringjerry/Canvass/internal/models"
)

func newMigrateCommand() *cobra.Command {
	var fromSnapshot string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations, optionally importing a JSON snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			if cfg.DBPath == "" {
				return errors.New("CANVASS_DB_PATH is required")
			}
			if fromSnapshot != "" {
				return importSnapshot(ctx, fromSnapshot, cfg.DBPath, cfg.MigrationsDir)
			}
			sqlDB, err := db.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer sqlDB.Close()
			if err := db.RunMigrations(ctx, sqlDB, cfg.MigrationsDir); err != nil {
				return err
			}
			version, err := db.SchemaVersion(ctx, sqlDB)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	}
	cmd.Flags().StringVar(&fromSnapshot, "from-snapshot", "", "import users, surveys, invitations and responses from a JSON snapshot")
	return cmd
}

// MigrateIfNeeded imports snapshotPath into a fresh SQLite database on first
// start. Nothing happens when the database file already exists or there is no
// snapshot to import.
func MigrateIfNeeded(ctx context.Context, snapshotPath, sqlitePath, migrationsDir string) error {
	if sqlitePath == "" {
		return errors.New("sqlite path is required")
	}
	if _, err := os.Stat(sqlitePath); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("check sqlite file: %w", err)
	}
	if snapshotPath == "" {
		return nil
	}
	if _, err := os.Stat(snapshotPath); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	log.Info().Str("snapshot", snapshotPath).Msg("first run detected, importing snapshot into sqlite")
	return importSnapshot(ctx, snapshotPath, sqlitePath, migrationsDir)
}

func importSnapshot(ctx context.Context, snapshotPath, sqlitePath, migrationsDir string) error {
	snap, err := api.LoadSnapshot(snapshotPath)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if dir := filepath.Dir(sqlitePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	sqlDB, err := db.Open(sqlitePath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("close sqlite")
		}
	}()
	if err := db.RunMigrations(ctx, sqlDB, migrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	dst, err := db.NewSQLiteStore(sqlDB)
	if err != nil {
		return fmt.Errorf("init sqlite store: %w", err)
	}
	stats, err := copySnapshotToStore(ctx, snap, dst)
	if err != nil {
		return fmt.Errorf("copy data: %w", err)
	}
	log.Info().
		Int("users", stats.users).
		Int("surveys", stats.surveys).
		Int("invitations", stats.invitations).
		Int("responses", stats.responses).
		Msg("snapshot import complete")
	return nil
}

type copyStats struct {
	users, surveys, invitations, responses int
}

// copySnapshotToStore writes snap into dst in dependency order. Records that
// already exist are skipped, so a partial import can be rerun.
func copySnapshotToStore(ctx context.Context, snap *api.Snapshot, dst api.Store) (copyStats, error) {
	var stats copyStats
	for _, u := range snap.Users {
		if u == nil {
			continue
		}
		ok, err := dst.AddUser(ctx, u)
		if err != nil {
			return stats, fmt.Errorf("user %s: %w", u.ID, err)
		}
		if ok {
			stats.users++
		}
	}
	for _, sv := range snap.Surveys {
		if sv == nil {
			continue
		}
		existing, err := dst.GetSurvey(ctx, sv.ID)
		if err != nil {
			return stats, err
		}
		if existing != nil {
			continue
		}
		if err := dst.AddSurvey(ctx, sv); err != nil {
			return stats, fmt.Errorf("survey %s: %w", sv.ID, err)
		}
		stats.surveys++
	}

	answered := make(map[string]*models.Response, len(snap.Responses))
	for _, r := range snap.Responses {
		if r != nil {
			answered[r.InvitationID] = r
		}
	}
	for _, inv := range snap.Invitations {
		if inv == nil {
			continue
		}
		resp := answered[inv.ID]
		row := *inv
		if resp != nil {
			// Completed through CompleteInvitation below so the pair stays consistent.
			row.Status = models.InvitationPending
			row.CompletedAt = nil
		}
		ok, err := dst.CreateInvitation(ctx, &row)
		if err != nil {
			return stats, fmt.Errorf("invitation %s: %w", inv.ID, err)
		}
		if !ok {
			continue
		}
		stats.invitations++
		if resp == nil {
			continue
		}
		completedAt := resp.SubmittedAt
		if inv.CompletedAt != nil {
			completedAt = *inv.CompletedAt
		}
		done, err := dst.CompleteInvitation(ctx, resp, completedAt)
		if err != nil {
			return stats, fmt.Errorf("response %s: %w", resp.ID, err)
		}
		if done {
			stats.responses++
		}
	}
	for _, entry := range snap.Audit {
		dst.AddAudit(ctx, entry)
	}
	return stats, nil
}

package migration

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"time"
)

const versionTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version TEXT PRIMARY KEY,
	applied_at TEXT NOT NULL,
	checksum TEXT NOT NULL,
	execution_time_ms INTEGER NOT NULL
)`

// Runner applies pending migrations to a database.
type Runner struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewRunner constructs a Runner. A nil logger discards output.
func NewRunner(db *sql.DB, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{db: db, logger: logger, now: time.Now}
}

// Apply runs every migration in files that has not been recorded yet. Each
// migration executes inside its own transaction together with its record.
func (r *Runner) Apply(ctx context.Context, files fs.FS) error {
	if _, err := r.db.ExecContext(ctx, versionTable); err != nil {
		return NewMigrationError("", "schema_migrations", "initialize version table", err)
	}

	migrations, err := Scan(files)
	if err != nil {
		return err
	}

	applied, err := r.Applied(ctx)
	if err != nil {
		return err
	}
	done := make(map[string]struct{}, len(applied))
	for _, m := range applied {
		done[m.Version] = struct{}{}
	}

	for _, m := range migrations {
		if _, ok := done[m.Version]; ok {
			continue
		}
		started := r.now()
		if err := r.execute(ctx, m, started); err != nil {
			r.logger.ErrorContext(ctx, "migration failed", "version", m.Version, "file", m.FilePath, "error", err)
			return err
		}
		r.logger.InfoContext(ctx, "migration applied",
			"version", m.Version,
			"description", m.Description,
			"duration", r.now().Sub(started),
		)
	}
	return nil
}

func (r *Runner) execute(ctx context.Context, m Migration, started time.Time) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return NewMigrationError(m.Version, m.FilePath, "begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, m.SQL); err != nil {
		return NewMigrationError(m.Version, m.FilePath, "execute migration", fmt.Errorf("%w: %v", ErrMigrationFailed, err))
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, applied_at, checksum, execution_time_ms) VALUES (?, ?, ?, ?)`,
		m.Version,
		started.UTC().Format(time.RFC3339),
		m.Checksum,
		r.now().Sub(started).Milliseconds(),
	); err != nil {
		return NewMigrationError(m.Version, m.FilePath, "record migration", err)
	}
	if err = tx.Commit(); err != nil {
		return NewMigrationError(m.Version, m.FilePath, "commit transaction", err)
	}
	return nil
}

// Applied lists recorded migrations ordered by version.
func (r *Runner) Applied(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT version, applied_at, checksum, execution_time_ms FROM schema_migrations ORDER BY CAST(version AS INTEGER)`)
	if err != nil {
		return nil, NewMigrationError("", "schema_migrations", "list applied", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var (
			m         AppliedMigration
			appliedAt string
			elapsedMS int64
		)
		if err := rows.Scan(&m.Version, &appliedAt, &m.Checksum, &elapsedMS); err != nil {
			return nil, NewMigrationError("", "schema_migrations", "scan applied", err)
		}
		m.AppliedAt, _ = time.Parse(time.RFC3339, appliedAt)
		m.ExecutionTime = time.Duration(elapsedMS) * time.Millisecond
		applied = append(applied, m)
	}
	if err := rows.Err(); err != nil {
		return nil, NewMigrationError("", "schema_migrations", "scan applied", err)
	}
	return applied, nil
}

// Package sqlite implements the persistence contracts on SQLite. Conditional
// writes rely on primary keys and guarded UPDATE/DELETE statements so that the
// database, not the caller, decides which writer wins.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/example/slot-reservations/internal/persistence"
	"github.com/example/slot-reservations/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store implements persistence.Store using SQLite.
type Store struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	retry  *RetryHelper
}

var _ persistence.Store = (*Store)(nil)

// Open connects to the database and applies pending migrations.
func Open(ctx context.Context, config Config, logger *slog.Logger) (*Store, error) {
	pool, err := NewConnectionPool(ctx, config)
	if err != nil {
		return nil, err
	}

	files, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("sqlite: load migrations: %w", err)
	}
	if err := migration.NewRunner(pool.DB(), logger).Apply(ctx, files); err != nil {
		pool.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}

	return &Store{
		pool:   pool,
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(config.Retry),
	}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (int64, error) {
	var affected int64
	err := s.retry.WithRetry(ctx, func() error {
		result, err := s.pool.DB().ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	return affected, err
}

// PutSession inserts or replaces a catalog entry.
func (s *Store) PutSession(ctx context.Context, session persistence.Session) error {
	var teams any
	if len(session.Teams) > 0 {
		teams = string(session.Teams)
	}
	_, err := s.exec(ctx, `
		INSERT INTO sessions (id, event, date, time, status, created_at, teams)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			event = excluded.event,
			date = excluded.date,
			time = excluded.time,
			status = excluded.status,
			created_at = excluded.created_at,
			teams = excluded.teams
	`,
		session.ID,
		session.Event,
		session.Date,
		session.Time,
		session.Status,
		formatTime(session.CreatedAt),
		teams,
	)
	if err != nil {
		return fmt.Errorf("sqlite: put session %s: %w", session.ID, err)
	}
	return nil
}

const sessionColumns = `id, event, date, time, status, created_at, teams`

// ListSessions returns every session ordered by ID.
func (s *Store) ListSessions(ctx context.Context) ([]persistence.Session, error) {
	rows, err := s.pool.DB().QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list sessions: %w", s.mapper.MapError(err))
	}
	defer rows.Close()

	var sessions []persistence.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list sessions: %w", s.mapper.MapError(err))
	}
	return sessions, nil
}

// GetSession retrieves a session by key.
func (s *Store) GetSession(ctx context.Context, id string) (persistence.Session, error) {
	row := s.pool.DB().QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if err != nil {
		return persistence.Session{}, s.mapper.MapError(err)
	}
	return session, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (persistence.Session, error) {
	var (
		session   persistence.Session
		createdAt string
		teams     sql.NullString
	)
	if err := row.Scan(&session.ID, &session.Event, &session.Date, &session.Time, &session.Status, &createdAt, &teams); err != nil {
		return persistence.Session{}, err
	}
	session.CreatedAt = parseTime(createdAt)
	if teams.Valid {
		session.Teams = []byte(teams.String)
	}
	return session, nil
}

// ListSlots returns the reserved slots of a session.
func (s *Store) ListSlots(ctx context.Context, sessionID string) ([]persistence.SlotRecord, error) {
	rows, err := s.pool.DB().QueryContext(ctx, `
		SELECT team, slot_index, user_id, display_name, reserved_at
		FROM slots WHERE session_id = ?
		ORDER BY team, slot_index
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list slots: %w", s.mapper.MapError(err))
	}
	defer rows.Close()

	var records []persistence.SlotRecord
	for rows.Next() {
		var (
			record     persistence.SlotRecord
			reservedAt string
		)
		if err := rows.Scan(&record.Key.Team, &record.Key.Index, &record.Occupant.UserID, &record.Occupant.DisplayName, &reservedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan slot: %w", err)
		}
		record.Key.SessionID = sessionID
		record.Occupant.ReservedAt = parseTime(reservedAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list slots: %w", s.mapper.MapError(err))
	}
	return records, nil
}

// SwapSlot conditionally replaces the occupant of a slot.
func (s *Store) SwapSlot(ctx context.Context, key persistence.SlotKey, expected, next *persistence.Occupant) error {
	var (
		affected int64
		err      error
	)
	switch {
	case expected == nil && next == nil:
		return s.expectAbsent(ctx,
			`SELECT 1 FROM slots WHERE session_id = ? AND team = ? AND slot_index = ?`,
			key.SessionID, key.Team, key.Index)
	case expected == nil:
		affected, err = s.exec(ctx, `
			INSERT INTO slots (session_id, team, slot_index, user_id, display_name, reserved_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id, team, slot_index) DO NOTHING
		`, key.SessionID, key.Team, key.Index, next.UserID, next.DisplayName, formatTime(next.ReservedAt))
	case next == nil:
		affected, err = s.exec(ctx, `
			DELETE FROM slots
			WHERE session_id = ? AND team = ? AND slot_index = ? AND user_id = ?
		`, key.SessionID, key.Team, key.Index, expected.UserID)
	default:
		affected, err = s.exec(ctx, `
			UPDATE slots SET user_id = ?, display_name = ?, reserved_at = ?
			WHERE session_id = ? AND team = ? AND slot_index = ? AND user_id = ?
		`, next.UserID, next.DisplayName, formatTime(next.ReservedAt), key.SessionID, key.Team, key.Index, expected.UserID)
	}
	if err != nil {
		return fmt.Errorf("sqlite: swap slot %s/%s/%d: %w", key.SessionID, key.Team, key.Index, err)
	}
	if affected == 0 {
		return persistence.ErrConditionFailed
	}
	return nil
}

// GetPointer retrieves the pointer stored under key.
func (s *Store) GetPointer(ctx context.Context, key persistence.PointerKey) (persistence.Pointer, error) {
	var (
		pointer    persistence.Pointer
		reservedAt string
	)
	err := s.pool.DB().QueryRowContext(ctx, `
		SELECT session_id, team, slot_index, session_label, display_name, reserved_at
		FROM reservation_pointers WHERE user_id = ? AND scope_session_id = ?
	`, key.UserID, key.SessionID).Scan(
		&pointer.SessionID, &pointer.Team, &pointer.SlotIndex, &pointer.SessionLabel, &pointer.DisplayName, &reservedAt,
	)
	if err != nil {
		return persistence.Pointer{}, s.mapper.MapError(err)
	}
	pointer.ReservedAt = parseTime(reservedAt)
	return pointer, nil
}

// SwapPointer conditionally replaces the pointer stored under key.
func (s *Store) SwapPointer(ctx context.Context, key persistence.PointerKey, expected, next *persistence.Pointer) error {
	var (
		affected int64
		err      error
	)
	switch {
	case expected == nil && next == nil:
		return s.expectAbsent(ctx,
			`SELECT 1 FROM reservation_pointers WHERE user_id = ? AND scope_session_id = ?`,
			key.UserID, key.SessionID)
	case expected == nil:
		affected, err = s.exec(ctx, `
			INSERT INTO reservation_pointers
				(user_id, scope_session_id, session_id, team, slot_index, session_label, display_name, reserved_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id, scope_session_id) DO NOTHING
		`, key.UserID, key.SessionID, next.SessionID, next.Team, next.SlotIndex, next.SessionLabel, next.DisplayName, formatTime(next.ReservedAt))
	case next == nil:
		affected, err = s.exec(ctx, `
			DELETE FROM reservation_pointers
			WHERE user_id = ? AND scope_session_id = ? AND session_id = ? AND team = ? AND slot_index = ?
		`, key.UserID, key.SessionID, expected.SessionID, expected.Team, expected.SlotIndex)
	default:
		affected, err = s.exec(ctx, `
			UPDATE reservation_pointers
			SET session_id = ?, team = ?, slot_index = ?, session_label = ?, display_name = ?, reserved_at = ?
			WHERE user_id = ? AND scope_session_id = ? AND session_id = ? AND team = ? AND slot_index = ?
		`, next.SessionID, next.Team, next.SlotIndex, next.SessionLabel, next.DisplayName, formatTime(next.ReservedAt),
			key.UserID, key.SessionID, expected.SessionID, expected.Team, expected.SlotIndex)
	}
	if err != nil {
		return fmt.Errorf("sqlite: swap pointer %s: %w", key.UserID, err)
	}
	if affected == 0 {
		return persistence.ErrConditionFailed
	}
	return nil
}

func (s *Store) expectAbsent(ctx context.Context, query string, args ...any) error {
	var found int
	err := s.pool.DB().QueryRowContext(ctx, query, args...).Scan(&found)
	switch mapped := s.mapper.MapError(err); {
	case errors.Is(mapped, persistence.ErrNotFound):
		return nil
	case mapped != nil:
		return fmt.Errorf("sqlite: check absent: %w", mapped)
	default:
		return persistence.ErrConditionFailed
	}
}

// PutProfile inserts or replaces a profile.
func (s *Store) PutProfile(ctx context.Context, profile persistence.Profile) error {
	_, err := s.exec(ctx, `
		INSERT INTO profiles (user_id, name, email) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET name = excluded.name, email = excluded.email
	`, profile.UserID, profile.Name, profile.Email)
	if err != nil {
		return fmt.Errorf("sqlite: put profile %s: %w", profile.UserID, err)
	}
	return nil
}

// GetProfile retrieves a profile by user ID.
func (s *Store) GetProfile(ctx context.Context, userID string) (persistence.Profile, error) {
	profile := persistence.Profile{UserID: userID}
	err := s.pool.DB().QueryRowContext(ctx, `SELECT name, email FROM profiles WHERE user_id = ?`, userID).
		Scan(&profile.Name, &profile.Email)
	if err != nil {
		return persistence.Profile{}, s.mapper.MapError(err)
	}
	return profile, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/slot-reservations/internal/persistence"
	"github.com/example/slot-reservations/internal/roster"
)

const (
	defaultEvent  = "Football Session"
	defaultTime   = "Not specified"
	statusActive  = "active"
	dateLayout    = "2006-01-02"
	cacheCapacity = 256
)

// SessionService reads sessions from the catalog and normalises their layout.
type SessionService struct {
	catalog         persistence.SessionCatalog
	cache           *sessionCache
	defaultCapacity int
	logger          *slog.Logger
}

// NewSessionService constructs a session service. A non-positive cacheTTL
// disables caching of session details.
func NewSessionService(catalog persistence.SessionCatalog, defaultCapacity int, cacheTTL time.Duration, now func() time.Time) *SessionService {
	return NewSessionServiceWithLogger(catalog, defaultCapacity, cacheTTL, now, nil)
}

// NewSessionServiceWithLogger constructs a session service with a specified logger.
func NewSessionServiceWithLogger(catalog persistence.SessionCatalog, defaultCapacity int, cacheTTL time.Duration, now func() time.Time, logger *slog.Logger) *SessionService {
	if defaultCapacity <= 0 {
		defaultCapacity = roster.DefaultSlotCapacity
	}
	return &SessionService{
		catalog:         catalog,
		cache:           newSessionCache(cacheTTL, cacheCapacity, now),
		defaultCapacity: defaultCapacity,
		logger:          defaultLogger(logger),
	}
}

func (s *SessionService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SessionService", operation, attrs...)
}

// ListActiveSessions returns active sessions ordered by date then ID.
func (s *SessionService) ListActiveSessions(ctx context.Context) (sessions []SessionDetails, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ListActiveSessions")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list sessions", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "sessions listed", "count", len(sessions))
	}()

	var records []persistence.Session
	records, err = s.catalog.ListSessions(ctx)
	if err != nil {
		err = &CatalogError{Op: "list sessions", Err: err}
		return
	}

	for _, record := range records {
		if record.Status != statusActive {
			continue
		}
		details, normErr := s.normalize(record)
		if normErr != nil {
			// One malformed entry should not hide the others.
			logger.WarnContext(ctx, "skipping session with invalid teams", "session_id", record.ID, "error", normErr)
			continue
		}
		sessions = append(sessions, details)
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].Date == sessions[j].Date {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].Date < sessions[j].Date
	})
	return sessions, nil
}

// GetSessionDetails resolves one session. The catalog is read with the
// identifier as given first, then with its roster.SessionKey form, and finally
// by matching the key against every catalog entry. Details are cached by key.
func (s *SessionService) GetSessionDetails(ctx context.Context, id string) (details SessionDetails, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}

	key := roster.SessionKey(id)
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}

	logger := s.loggerWith(ctx, "GetSessionDetails", "session_id", id)
	defer func() {
		if err != nil && !errors.Is(err, ErrNotFound) {
			logger.ErrorContext(ctx, "failed to load session", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if strings.TrimSpace(key) == "" {
		err = ErrNotFound
		return
	}

	var record persistence.Session
	record, err = s.lookup(ctx, id, key)
	if errors.Is(err, persistence.ErrNotFound) {
		err = ErrNotFound
		return
	}
	if err != nil {
		err = &CatalogError{Op: "get session", Err: err}
		return
	}

	if record.Status == "" {
		record.Status = statusActive
	}
	details, err = s.normalize(record)
	if err != nil {
		err = &CatalogError{Op: "normalize teams", Err: err}
		return
	}

	s.cache.Store(key, details)
	return details, nil
}

func (s *SessionService) lookup(ctx context.Context, id, key string) (persistence.Session, error) {
	candidates := []string{id}
	if key != id {
		candidates = append(candidates, key)
	}
	for _, candidate := range candidates {
		record, err := s.catalog.GetSession(ctx, candidate)
		if !errors.Is(err, persistence.ErrNotFound) {
			return record, err
		}
	}

	records, err := s.catalog.ListSessions(ctx)
	if err != nil {
		return persistence.Session{}, err
	}
	for _, record := range records {
		if roster.SessionKey(record.ID) == key {
			return record, nil
		}
	}
	return persistence.Session{}, persistence.ErrNotFound
}

// Invalidate drops cached details for a session.
func (s *SessionService) Invalidate(id string) {
	s.cache.Invalidate(roster.SessionKey(id))
}

func (s *SessionService) normalize(record persistence.Session) (SessionDetails, error) {
	teams, err := roster.NormalizeTeams(record.Teams, s.defaultCapacity)
	if err != nil {
		return SessionDetails{}, err
	}

	details := SessionDetails{
		ID:        record.ID,
		Key:       roster.SessionKey(record.ID),
		Event:     strings.TrimSpace(record.Event),
		Date:      strings.TrimSpace(record.Date),
		Time:      strings.TrimSpace(record.Time),
		Status:    record.Status,
		CreatedAt: record.CreatedAt,
		Teams:     teams,
	}
	if details.Event == "" {
		details.Event = defaultEvent
	}
	if details.Time == "" {
		details.Time = defaultTime
	}
	if details.Date == "" && !record.CreatedAt.IsZero() {
		details.Date = record.CreatedAt.UTC().Format(dateLayout)
	}
	return details, nil
}

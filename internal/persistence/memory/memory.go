// Package memory provides an in-process persistence backend. Every
// conditional write runs under a single mutex.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/example/slot-reservations/internal/persistence"
)

// Storage implements persistence.Store in memory.
type Storage struct {
	mu       sync.RWMutex
	sessions map[string]persistence.Session
	slots    map[persistence.SlotKey]persistence.Occupant
	pointers map[persistence.PointerKey]persistence.Pointer
	profiles map[string]persistence.Profile
}

var _ persistence.Store = (*Storage)(nil)

// Open returns an empty Storage.
func Open() *Storage {
	return &Storage{
		sessions: make(map[string]persistence.Session),
		slots:    make(map[persistence.SlotKey]persistence.Occupant),
		pointers: make(map[persistence.PointerKey]persistence.Pointer),
		profiles: make(map[string]persistence.Profile),
	}
}

// Close is a no-op.
func (s *Storage) Close() error {
	return nil
}

// Ping always succeeds.
func (s *Storage) Ping(context.Context) error {
	return nil
}

// PutSession inserts or replaces a catalog entry.
func (s *Storage) PutSession(ctx context.Context, session persistence.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = cloneSession(session)
	return nil
}

// ListSessions returns every session ordered by ID.
func (s *Storage) ListSessions(ctx context.Context) ([]persistence.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]persistence.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, cloneSession(session))
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
	return sessions, nil
}

// GetSession retrieves a session by key.
func (s *Storage) GetSession(ctx context.Context, id string) (persistence.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return cloneSession(session), nil
}

// ListSlots returns the reserved slots of a session ordered by team and index.
func (s *Storage) ListSlots(ctx context.Context, sessionID string) ([]persistence.SlotRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []persistence.SlotRecord
	for key, occupant := range s.slots {
		if key.SessionID != sessionID {
			continue
		}
		records = append(records, persistence.SlotRecord{Key: key, Occupant: occupant})
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Key.Team == records[j].Key.Team {
			return records[i].Key.Index < records[j].Key.Index
		}
		return records[i].Key.Team < records[j].Key.Team
	})
	return records, nil
}

// SwapSlot conditionally replaces the occupant of a slot.
func (s *Storage) SwapSlot(ctx context.Context, key persistence.SlotKey, expected, next *persistence.Occupant) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.slots[key]
	switch {
	case expected == nil && ok:
		return persistence.ErrConditionFailed
	case expected != nil && (!ok || current.UserID != expected.UserID):
		return persistence.ErrConditionFailed
	}

	if next == nil {
		delete(s.slots, key)
		return nil
	}
	s.slots[key] = *next
	return nil
}

// GetPointer retrieves the pointer stored under key.
func (s *Storage) GetPointer(ctx context.Context, key persistence.PointerKey) (persistence.Pointer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pointer, ok := s.pointers[key]
	if !ok {
		return persistence.Pointer{}, persistence.ErrNotFound
	}
	return pointer, nil
}

// SwapPointer conditionally replaces the pointer stored under key.
func (s *Storage) SwapPointer(ctx context.Context, key persistence.PointerKey, expected, next *persistence.Pointer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.pointers[key]
	switch {
	case expected == nil && ok:
		return persistence.ErrConditionFailed
	case expected != nil && (!ok || !current.SameSlot(*expected)):
		return persistence.ErrConditionFailed
	}

	if next == nil {
		delete(s.pointers, key)
		return nil
	}
	s.pointers[key] = *next
	return nil
}

// PutProfile inserts or replaces a profile.
func (s *Storage) PutProfile(ctx context.Context, profile persistence.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles[profile.UserID] = profile
	return nil
}

// GetProfile retrieves a profile by user ID.
func (s *Storage) GetProfile(ctx context.Context, userID string) (persistence.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return persistence.Profile{}, persistence.ErrNotFound
	}
	return profile, nil
}

func cloneSession(session persistence.Session) persistence.Session {
	clone := session
	if session.Teams != nil {
		clone.Teams = append([]byte(nil), session.Teams...)
	}
	return clone
}

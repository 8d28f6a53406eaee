package persistence

import "context"

// SessionCatalog resolves sessions and their team layout.
type SessionCatalog interface {
	ListSessions(ctx context.Context) ([]Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
}

// SlotStore is the authoritative table of slot occupants.
type SlotStore interface {
	ListSlots(ctx context.Context, sessionID string) ([]SlotRecord, error)
	// SwapSlot replaces the occupant of key with next only if the stored
	// occupant belongs to expected.UserID, or the slot is empty when expected
	// is nil. A nil next empties the slot. ErrConditionFailed reports a
	// mismatch.
	SwapSlot(ctx context.Context, key SlotKey, expected, next *Occupant) error
}

// PointerStore keeps one reservation pointer per pointer key.
type PointerStore interface {
	GetPointer(ctx context.Context, key PointerKey) (Pointer, error)
	// SwapPointer replaces the pointer only if the stored one references the
	// same slot as expected, or no pointer exists when expected is nil. A nil
	// next deletes the pointer.
	SwapPointer(ctx context.Context, key PointerKey, expected, next *Pointer) error
}

// ProfileStore looks up user profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (Profile, error)
}

// Store bundles every contract a backend provides.
type Store interface {
	SessionCatalog
	SlotStore
	PointerStore
	ProfileStore
	PutSession(ctx context.Context, session Session) error
	PutProfile(ctx context.Context, profile Profile) error
	Close() error
}

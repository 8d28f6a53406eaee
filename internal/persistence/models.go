package persistence

import (
	"encoding/json"
	"time"
)

// SlotKey addresses one slot of one team within a session.
type SlotKey struct {
	SessionID string
	Team      string
	Index     int
}

// Occupant is the record stored in a reserved slot.
type Occupant struct {
	UserID      string
	DisplayName string
	ReservedAt  time.Time
}

// SlotRecord pairs a reserved slot with its occupant.
type SlotRecord struct {
	Key      SlotKey
	Occupant Occupant
}

// PointerKey addresses a user's reservation pointer. SessionID is empty when
// pointers are scoped to the user across all sessions.
type PointerKey struct {
	UserID    string
	SessionID string
}

// Pointer is the denormalised record of the slot a user currently holds.
type Pointer struct {
	SessionID    string
	Team         string
	SlotIndex    int
	SessionLabel string
	DisplayName  string
	ReservedAt   time.Time
}

// SameSlot reports whether both pointers reference the same session, team and index.
func (p Pointer) SameSlot(other Pointer) bool {
	return p.SessionID == other.SessionID && p.Team == other.Team && p.SlotIndex == other.SlotIndex
}

// Session is a catalog entry. Teams holds the raw team data as stored.
type Session struct {
	ID        string
	Event     string
	Date      string
	Time      string
	Status    string
	CreatedAt time.Time
	Teams     json.RawMessage
}

// Profile carries the user-maintained display data.
type Profile struct {
	UserID string
	Name   string
	Email  string
}

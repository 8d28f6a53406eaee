package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/slot-reservations/internal/persistence"
	"github.com/example/slot-reservations/internal/roster"
)

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID      string
	DisplayName string
	Email       string
}

// SessionDetails is a catalog entry with defaults applied and teams normalised.
// ID is the catalog identifier; Key is its roster.SessionKey form used for slot,
// pointer and event keys.
type SessionDetails struct {
	ID        string
	Key       string
	Event     string
	Date      string
	Time      string
	Status    string
	CreatedAt time.Time
	Teams     []roster.TeamLayout
}

// Team returns the layout of the named team.
func (d SessionDetails) Team(name string) (roster.TeamLayout, bool) {
	for _, team := range d.Teams {
		if team.Name == name {
			return team, true
		}
	}
	return roster.TeamLayout{}, false
}

// Reservation identifies the slot a user holds.
type Reservation struct {
	SessionID  string
	Team       string
	SlotIndex  int
	ReservedAt time.Time
}

// SlotView is one slot as presented to a user.
type SlotView struct {
	Index       int
	Reserved    bool
	Mine        bool
	UserID      string
	DisplayName string
	ReservedAt  time.Time
}

// TeamView is one team's slots and occupancy count.
type TeamView struct {
	Name     string
	Capacity int
	Occupied int
	Slots    []SlotView
}

// View is the reconciled state of one session for one user. It is produced by
// Reconciler.Reconcile and updated in place by the Coordinator.
type View struct {
	Session     SessionDetails
	UserID      string
	DisplayName string
	Teams       []TeamView
	Current     *Reservation
	Pointer     *persistence.Pointer
	Consistent  bool
	Stale       bool
	LoadedAt    time.Time
}

func (v *View) team(name string) *TeamView {
	for i := range v.Teams {
		if v.Teams[i].Name == name {
			return &v.Teams[i]
		}
	}
	return nil
}

// markStale records that the stored state may differ from the view.
func (v *View) markStale() {
	v.Stale = true
	v.Consistent = false
}

// PointerScope decides how reservation pointers are keyed.
type PointerScope string

const (
	// PointerScopeUser keeps one pointer per user across all sessions.
	PointerScopeUser PointerScope = "user"
	// PointerScopeSession keeps one pointer per user and session.
	PointerScopeSession PointerScope = "session"
)

// ParsePointerScope validates a configured scope. Empty selects PointerScopeUser.
func ParsePointerScope(value string) (PointerScope, error) {
	switch PointerScope(strings.ToLower(strings.TrimSpace(value))) {
	case "", PointerScopeUser:
		return PointerScopeUser, nil
	case PointerScopeSession:
		return PointerScopeSession, nil
	default:
		return "", fmt.Errorf("unknown pointer scope %q", value)
	}
}

// Key returns the pointer key for a user viewing a session.
func (s PointerScope) Key(userID, sessionID string) persistence.PointerKey {
	if s == PointerScopeSession {
		return persistence.PointerKey{UserID: userID, SessionID: sessionID}
	}
	return persistence.PointerKey{UserID: userID}
}

// SlotEventType names a slot change published to live views.
type SlotEventType string

const (
	SlotReserved SlotEventType = "slot_reserved"
	SlotReleased SlotEventType = "slot_released"
	SlotRepaired SlotEventType = "slot_repaired"
)

// SlotEvent describes a change to one slot.
type SlotEvent struct {
	Type        SlotEventType
	SessionID   string
	Team        string
	SlotIndex   int
	DisplayName string
	At          time.Time
}

// EventPublisher fans slot events out to interested clients.
type EventPublisher interface {
	Publish(ctx context.Context, event SlotEvent)
}

// MetricsRecorder records the outcome and latency of reservation operations.
type MetricsRecorder interface {
	RecordOperation(ctx context.Context, operation, outcome string, elapsed time.Duration)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, SlotEvent) {}

type nopRecorder struct{}

func (nopRecorder) RecordOperation(context.Context, string, string, time.Duration) {}

package testfixtures

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/slot-reservations/internal/application"
	"github.com/example/slot-reservations/internal/persistence"
)

var (
	sessionCounter uint64
	userCounter    uint64
)

var referenceTime = time.Date(2025, time.May, 10, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// DefaultTeamsJSON is the layout used by session fixtures unless overridden:
// Team A with three slots followed by Team B with five.
const DefaultTeamsJSON = `{"Team A": {"slotCount": 3}, "Team B": {"slotCount": 5}}`

// ----------------------------- Session fixtures -----------------------------

// SessionFixture represents a deterministic catalog entry.
type SessionFixture struct {
	ID        string
	Event     string
	Date      string
	Time      string
	Status    string
	CreatedAt time.Time
	Teams     string
}

// SessionOption configures the generated session fixture.
type SessionOption func(*SessionFixture)

// NewSessionFixture returns a deterministic active session with optional overrides.
func NewSessionFixture(opts ...SessionOption) SessionFixture {
	idx := atomic.AddUint64(&sessionCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := SessionFixture{
		ID:        fmt.Sprintf("session-%03d", idx),
		Event:     "Saturday Football",
		Date:      created.Format("2006-01-02"),
		Time:      "10:00",
		Status:    "active",
		CreatedAt: created,
		Teams:     DefaultTeamsJSON,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSessionID overrides the session identifier.
func WithSessionID(id string) SessionOption {
	return func(f *SessionFixture) {
		f.ID = id
	}
}

// WithSessionEvent overrides the event label.
func WithSessionEvent(event string) SessionOption {
	return func(f *SessionFixture) {
		f.Event = event
	}
}

// WithSessionDate overrides the date.
func WithSessionDate(date string) SessionOption {
	return func(f *SessionFixture) {
		f.Date = date
	}
}

// WithSessionStatus overrides the status.
func WithSessionStatus(status string) SessionOption {
	return func(f *SessionFixture) {
		f.Status = status
	}
}

// WithSessionTeams overrides the raw team data. An empty string stores no team data.
func WithSessionTeams(raw string) SessionOption {
	return func(f *SessionFixture) {
		f.Teams = raw
	}
}

// WithSessionCreatedAt overrides the creation timestamp.
func WithSessionCreatedAt(t time.Time) SessionOption {
	return func(f *SessionFixture) {
		f.CreatedAt = t
	}
}

// Persistence converts the fixture into a catalog record.
func (f SessionFixture) Persistence() persistence.Session {
	var teams json.RawMessage
	if f.Teams != "" {
		teams = json.RawMessage(f.Teams)
	}
	return persistence.Session{
		ID:        f.ID,
		Event:     f.Event,
		Date:      f.Date,
		Time:      f.Time,
		Status:    f.Status,
		CreatedAt: f.CreatedAt,
		Teams:     teams,
	}
}

// ------------------------------ User fixtures ------------------------------

// UserFixture represents a deterministic authenticated user and profile.
type UserFixture struct {
	ID          string
	Email       string
	DisplayName string
	ProfileName string
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a deterministic user fixture with optional overrides.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	fixture := UserFixture{
		ID:          id,
		Email:       fmt.Sprintf("%s@example.com", id),
		DisplayName: fmt.Sprintf("User %03d", idx),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserID overrides the identifier.
func WithUserID(id string) UserOption {
	return func(f *UserFixture) {
		f.ID = id
	}
}

// WithUserDisplayName overrides the identity display name.
func WithUserDisplayName(name string) UserOption {
	return func(f *UserFixture) {
		f.DisplayName = name
	}
}

// WithUserProfileName sets the profile name, which takes precedence over the
// identity display name.
func WithUserProfileName(name string) UserOption {
	return func(f *UserFixture) {
		f.ProfileName = name
	}
}

// Principal converts the fixture into the authenticated caller.
func (f UserFixture) Principal() application.Principal {
	return application.Principal{UserID: f.ID, DisplayName: f.DisplayName, Email: f.Email}
}

// Profile converts the fixture into a stored profile.
func (f UserFixture) Profile() persistence.Profile {
	return persistence.Profile{UserID: f.ID, Name: f.ProfileName, Email: f.Email}
}

// Package roster holds the storage-independent model of a session's teams and
// slots together with the pure planning steps used during reconciliation.
package roster

import (
	"regexp"
	"time"
)

const (
	// DefaultSlotCapacity is applied to teams whose capacity is not declared.
	DefaultSlotCapacity = 8
	// MaxSlotCapacity bounds the capacity of a single team.
	MaxSlotCapacity = 1024
)

// DefaultTeamNames are used when a session has no team data at all.
var DefaultTeamNames = []string{"Team A", "Team B", "Team C"}

var whitespaceRun = regexp.MustCompile(`\s+`)

// SessionKey converts a session identifier into the key used by every store.
// Runs of whitespace are replaced by a single dash.
func SessionKey(id string) string {
	return whitespaceRun.ReplaceAllString(id, "-")
}

// Occupant is the record written into a reserved slot.
type Occupant struct {
	UserID      string
	DisplayName string
	ReservedAt  time.Time
}

// TeamLayout describes a team and its fixed slot capacity.
type TeamLayout struct {
	Name     string
	Capacity int
}

// TeamSlots is the occupancy of one team. Nil entries are empty slots and the
// slice length equals the team capacity.
type TeamSlots struct {
	Name  string
	Slots []*Occupant
}

// Occupied counts the non-empty slots.
func (t TeamSlots) Occupied() int {
	count := 0
	for _, slot := range t.Slots {
		if slot != nil {
			count++
		}
	}
	return count
}

// DefaultTeams returns the layout used for uninitialised sessions.
func DefaultTeams(capacity int) []TeamLayout {
	if capacity <= 0 {
		capacity = DefaultSlotCapacity
	}
	teams := make([]TeamLayout, 0, len(DefaultTeamNames))
	for _, name := range DefaultTeamNames {
		teams = append(teams, TeamLayout{Name: name, Capacity: capacity})
	}
	return teams
}

// EmptyGrid builds all-empty slot arrays for the layout, preserving team order.
func EmptyGrid(layout []TeamLayout) []TeamSlots {
	grid := make([]TeamSlots, 0, len(layout))
	for _, team := range layout {
		grid = append(grid, TeamSlots{Name: team.Name, Slots: make([]*Occupant, team.Capacity)})
	}
	return grid
}

// PointerRef identifies the slot a reservation pointer refers to.
type PointerRef struct {
	SessionID string
	Team      string
	SlotIndex int
}

// SameSlot reports whether both references name the same session, team and index.
func (p PointerRef) SameSlot(other PointerRef) bool {
	return p.SessionID == other.SessionID && p.Team == other.Team && p.SlotIndex == other.SlotIndex
}

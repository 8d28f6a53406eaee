package roster

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionKey(t *testing.T) {
	cases := map[string]string{
		"Sat 10 May":        "Sat-10-May",
		"Sat   10\tMay":     "Sat-10-May",
		"already-normal":    "already-normal",
		"":                  "",
		"trailing space ":   "trailing-space-",
	}
	for in, want := range cases {
		assert.Equal(t, want, SessionKey(in), "input %q", in)
	}
}

func TestNormalizeTeams(t *testing.T) {
	t.Run("missing data falls back to default teams", func(t *testing.T) {
		for _, raw := range []string{"", "null", "  ", "{}", "[]"} {
			teams, err := NormalizeTeams([]byte(raw), 0)
			require.NoError(t, err, "raw %q", raw)
			require.Len(t, teams, 3)
			assert.Equal(t, TeamLayout{Name: "Team A", Capacity: DefaultSlotCapacity}, teams[0])
			assert.Equal(t, "Team C", teams[2].Name)
		}
	})

	t.Run("object keys keep declaration order", func(t *testing.T) {
		raw := `{"Zebras": {"slotCount": 5}, "Ants": 3, "Moles": null}`
		teams, err := NormalizeTeams([]byte(raw), 6)
		require.NoError(t, err)
		assert.Equal(t, []TeamLayout{
			{Name: "Zebras", Capacity: 5},
			{Name: "Ants", Capacity: 3},
			{Name: "Moles", Capacity: 6},
		}, teams)
	})

	t.Run("capacity precedence", func(t *testing.T) {
		raw := `{
			"Declared": {"slotCount": 4, "slots": [null, null]},
			"Capacity": {"capacity": 2},
			"ZeroDeclared": {"slotCount": 0, "slots": [null, null, null]},
			"FromArray": {"slots": [null, {"userId": "u1"}]},
			"FromKeyed": {"slots": {"11": {"userId": "u1"}}},
			"KeyedBelowDefault": {"slots": {"1": {"userId": "u1"}}},
			"BareArray": [null, null, null, null, null]
		}`
		teams, err := NormalizeTeams([]byte(raw), 8)
		require.NoError(t, err)
		got := map[string]int{}
		for _, team := range teams {
			got[team.Name] = team.Capacity
		}
		assert.Equal(t, map[string]int{
			"Declared":          4,
			"Capacity":          2,
			"ZeroDeclared":      3,
			"FromArray":         2,
			"FromKeyed":         12,
			"KeyedBelowDefault": 8,
			"BareArray":         5,
		}, got)
		assert.Equal(t, "Declared", teams[0].Name)
		assert.Equal(t, "BareArray", teams[len(teams)-1].Name)
	})

	t.Run("array shape", func(t *testing.T) {
		raw := `[{"name": "Red", "slotCount": 2}, {"name": "Blue"}]`
		teams, err := NormalizeTeams([]byte(raw), 7)
		require.NoError(t, err)
		assert.Equal(t, []TeamLayout{{Name: "Red", Capacity: 2}, {Name: "Blue", Capacity: 7}}, teams)
	})

	t.Run("invalid data", func(t *testing.T) {
		cases := map[string]string{
			"scalar":            `42`,
			"malformed":         `{"Team A": `,
			"negative":          `{"Team A": -1}`,
			"negative declared": `{"Team A": {"slotCount": -2}}`,
			"duplicate":         `[{"name": "A"}, {"name": "A"}]`,
			"empty name":        `[{"name": "  "}]`,
			"bad slot key":      `{"Team A": {"slots": {"first": null}}}`,
			"string capacity":   `{"Team A": "eight"}`,
			"huge capacity":     `{"Team A": 4611686018427387904}`,
			"over maximum":      `{"Team A": {"slotCount": 1025}}`,
			"huge slot key":     `{"Team A": {"slots": {"9223372036854775806": null}}}`,
			"array over max":    `[{"name": "Red", "capacity": 5000}]`,
		}
		for name, raw := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := NormalizeTeams([]byte(raw), 8)
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidLayout), "got %v", err)
			})
		}
	})
}

func TestNormalizeTeamsAcceptsMaximumCapacity(t *testing.T) {
	teams, err := NormalizeTeams([]byte(`{"Team A": 1024}`), 8)
	require.NoError(t, err)
	assert.Equal(t, MaxSlotCapacity, teams[0].Capacity)

	_, err = NormalizeTeams(nil, MaxSlotCapacity+1)
	assert.ErrorIs(t, err, ErrInvalidLayout)
}

func TestEmptyGrid(t *testing.T) {
	grid := EmptyGrid([]TeamLayout{{Name: "A", Capacity: 2}, {Name: "B", Capacity: 0}})
	require.Len(t, grid, 2)
	assert.Len(t, grid[0].Slots, 2)
	assert.Empty(t, grid[1].Slots)
	assert.Zero(t, grid[0].Occupied())
}

package roster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func occupant(userID string) *Occupant {
	return &Occupant{UserID: userID, DisplayName: userID}
}

func TestScanCandidates(t *testing.T) {
	teams := []TeamSlots{
		{Name: "Team B", Slots: []*Occupant{nil, occupant("u1"), occupant("u2")}},
		{Name: "Team A", Slots: []*Occupant{occupant("u1"), nil}},
	}

	got := ScanCandidates(teams, "u1")
	require.Len(t, got, 2)
	assert.Equal(t, "Team B", got[0].Team)
	assert.Equal(t, 1, got[0].SlotIndex)
	assert.Equal(t, 0, got[0].TeamOrder)
	assert.Equal(t, "Team A", got[1].Team)
	assert.Equal(t, 0, got[1].SlotIndex)

	assert.Empty(t, ScanCandidates(teams, "nobody"))
	assert.Empty(t, ScanCandidates(teams, ""))
}

func TestResolveDuplicatesKeepsFirstInScanOrder(t *testing.T) {
	teams := []TeamSlots{
		{Name: "Team A", Slots: []*Occupant{nil, nil, occupant("u1")}},
		{Name: "Team B", Slots: []*Occupant{occupant("u1")}},
		{Name: "Team C", Slots: []*Occupant{occupant("u1"), occupant("u1")}},
	}

	for i := 0; i < 3; i++ {
		primary, removals := ResolveDuplicates(ScanCandidates(teams, "u1"))
		require.NotNil(t, primary)
		assert.Equal(t, "Team A", primary.Team)
		assert.Equal(t, 2, primary.SlotIndex)
		require.Len(t, removals, 3)
		assert.Equal(t, "Team B", removals[0].Team)
		assert.Equal(t, 1, removals[2].SlotIndex)
	}

	primary, removals := ResolveDuplicates(nil)
	assert.Nil(t, primary)
	assert.Nil(t, removals)
}

func TestDecidePointer(t *testing.T) {
	here := &Candidate{Team: "Team A", SlotIndex: 2}
	samePointer := &PointerRef{SessionID: "s1", Team: "Team A", SlotIndex: 2}
	otherSlot := &PointerRef{SessionID: "s1", Team: "Team B", SlotIndex: 0}
	otherSession := &PointerRef{SessionID: "s2", Team: "Team A", SlotIndex: 2}

	cases := []struct {
		name    string
		primary *Candidate
		current *PointerRef
		want    PointerAction
	}{
		{"absent with candidate", here, nil, PointerCreate},
		{"absent without candidate", nil, nil, PointerKeep},
		{"same session other slot", here, otherSlot, PointerOverwrite},
		{"same session no candidate", nil, otherSlot, PointerDelete},
		{"other session with candidate", here, otherSession, PointerOverwrite},
		{"other session no candidate", nil, otherSession, PointerKeep},
		{"matching", here, samePointer, PointerKeep},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DecidePointer("s1", tc.primary, tc.current))
		})
	}
}

func TestPlanReconciliation(t *testing.T) {
	teams := []TeamSlots{
		{Name: "Team A", Slots: []*Occupant{occupant("u1"), nil}},
		{Name: "Team B", Slots: []*Occupant{occupant("u1"), occupant("u2")}},
	}

	plan := PlanReconciliation("s1", teams, "u1", nil)
	require.NotNil(t, plan.Primary)
	assert.Equal(t, "Team A", plan.Primary.Team)
	assert.Len(t, plan.Removals, 1)
	assert.Equal(t, PointerCreate, plan.Pointer)
	assert.True(t, plan.Changes())

	settled := PlanReconciliation("s1", []TeamSlots{teams[0]}, "u1", &PointerRef{SessionID: "s1", Team: "Team A", SlotIndex: 0})
	assert.False(t, settled.Changes())
	assert.Equal(t, "keep", settled.Pointer.String())
}
